package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/smiict/course-api/internal/models"
)

const couponColumns = `id, code, description, discount_type, discount_value, min_amount, max_discount, usage_limit, used_count, user_limit, is_active, valid_from, valid_until, created_by, created_at, updated_at`

// CouponRepository provides database access for discount coupons.
type CouponRepository struct {
	db *sqlx.DB
}

// NewCouponRepository creates a new instance of CouponRepository.
func NewCouponRepository(db *sqlx.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByCode returns a coupon by its code. Matching is case-insensitive;
// codes are stored upper-cased.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE code = $1 LIMIT 1`, couponColumns)
	var coupon models.Coupon
	if err := r.db.GetContext(ctx, &coupon, query, strings.ToUpper(strings.TrimSpace(code))); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find coupon by code: %w", err)
	}
	return &coupon, nil
}

// FindByID returns a coupon by identifier.
func (r *CouponRepository) FindByID(ctx context.Context, id string) (*models.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE id = $1 LIMIT 1`, couponColumns)
	var coupon models.Coupon
	if err := r.db.GetContext(ctx, &coupon, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find coupon by id: %w", err)
	}
	return &coupon, nil
}

// Create inserts a new coupon. The code is normalized to upper case.
func (r *CouponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	if coupon.ID == "" {
		coupon.ID = uuid.NewString()
	}
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	now := time.Now().UTC()
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = now
	}
	coupon.UpdatedAt = now

	const query = `INSERT INTO coupons (id, code, description, discount_type, discount_value, min_amount, max_discount, usage_limit, used_count, user_limit, is_active, valid_from, valid_until, created_by, created_at, updated_at)
        VALUES (:id, :code, :description, :discount_type, :discount_value, :min_amount, :max_discount, :usage_limit, :used_count, :user_limit, :is_active, :valid_from, :valid_until, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, coupon); err != nil {
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

// Update persists changes to a coupon. used_count is never written here;
// it only moves through the redemption transaction.
func (r *CouponRepository) Update(ctx context.Context, coupon *models.Coupon) error {
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	coupon.UpdatedAt = time.Now().UTC()
	const query = `UPDATE coupons SET code = :code, description = :description, discount_type = :discount_type, discount_value = :discount_value, min_amount = :min_amount, max_discount = :max_discount, usage_limit = :usage_limit, user_limit = :user_limit, is_active = :is_active, valid_from = :valid_from, valid_until = :valid_until, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, coupon); err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	return nil
}

// SetActive toggles a coupon on or off.
func (r *CouponRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE coupons SET is_active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set coupon active: %w", err)
	}
	return nil
}

// Delete removes a coupon row.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	return nil
}

// CountUsageByUser returns how many times a user has redeemed a coupon.
func (r *CouponRepository) CountUsageByUser(ctx context.Context, couponID, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, couponID, userID); err != nil {
		return 0, fmt.Errorf("count coupon usage: %w", err)
	}
	return count, nil
}

// ListUsages returns the redemption history of a coupon.
func (r *CouponRepository) ListUsages(ctx context.Context, couponID string) ([]models.CouponUsage, error) {
	const query = `SELECT id, coupon_id, user_id, application_id, discount_amount, used_at FROM coupon_usages WHERE coupon_id = $1 ORDER BY used_at DESC`
	var usages []models.CouponUsage
	if err := r.db.SelectContext(ctx, &usages, query, couponID); err != nil {
		return nil, fmt.Errorf("list coupon usages: %w", err)
	}
	return usages, nil
}

// List returns coupons based on filters with total count.
func (r *CouponRepository) List(ctx context.Context, filter models.CouponFilter) ([]models.Coupon, int, error) {
	baseQuery := `FROM coupons WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(code LIKE $%d OR LOWER(description) LIKE $%d)", len(args)+1, len(args)+2))
		args = append(args, "%"+strings.ToUpper(filter.Search)+"%", "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"code":       true,
		"created_at": true,
		"valid_from": true,
		"used_count": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", couponColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var coupons []models.Coupon
	if err := r.db.SelectContext(ctx, &coupons, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count coupons: %w", err)
	}

	return coupons, total, nil
}
