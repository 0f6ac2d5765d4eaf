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

const applicationColumns = `id, user_id, course_id, status, applied_at, payment_status, payment_reference, paid_at, coupon_id, original_price, discount_amount, final_price`

// ApplicationRepository provides database access for course applications
// and owns the payment reconciliation transaction.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository creates a new instance of ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// FindByID returns an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by id: %w", err)
	}
	return &app, nil
}

// FindByReference returns the application holding a payment reference.
func (r *ApplicationRepository) FindByReference(ctx context.Context, reference string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE payment_reference = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, reference); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by reference: %w", err)
	}
	return &app, nil
}

// FindByUserAndCourse returns an existing application for a user/course pair.
func (r *ApplicationRepository) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE user_id = $1 AND course_id = $2 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by user and course: %w", err)
	}
	return &app, nil
}

// FindDetailByID returns an application joined with its user, course and coupon.
func (r *ApplicationRepository) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	const query = `SELECT a.id, a.user_id, a.course_id, a.status, a.applied_at, a.payment_status, a.payment_reference,
            a.paid_at, a.coupon_id, a.original_price, a.discount_amount, a.final_price,
            u.full_name AS user_name, u.email AS user_email, c.title AS course_title, cp.code AS coupon_code
        FROM applications a
        JOIN users u ON u.id = a.user_id
        JOIN courses c ON c.id = a.course_id
        LEFT JOIN coupons cp ON cp.id = a.coupon_id
        WHERE a.id = $1 LIMIT 1`
	var detail models.ApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application detail: %w", err)
	}
	return &detail, nil
}

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.AppliedAt.IsZero() {
		app.AppliedAt = time.Now().UTC()
	}
	const query = `INSERT INTO applications (id, user_id, course_id, status, applied_at, payment_status, original_price, discount_amount, final_price)
        VALUES (:id, :user_id, :course_id, :status, :applied_at, :payment_status, :original_price, :discount_amount, :final_price)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// UpdateStatus sets the review status of an application.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error {
	const query = `UPDATE applications SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	return nil
}

// UpdatePricing persists the price snapshot taken at payment initialization.
func (r *ApplicationRepository) UpdatePricing(ctx context.Context, id string, couponID *string, original, discount, final float64) error {
	const query = `UPDATE applications SET coupon_id = $2, original_price = $3, discount_amount = $4, final_price = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, couponID, original, discount, final); err != nil {
		return fmt.Errorf("update application pricing: %w", err)
	}
	return nil
}

// SetReference records the gateway reference after a session was created.
func (r *ApplicationRepository) SetReference(ctx context.Context, id, reference string) error {
	const query = `UPDATE applications SET payment_reference = $2, payment_status = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, reference, models.PaymentStatusPending); err != nil {
		return fmt.Errorf("set payment reference: %w", err)
	}
	return nil
}

// MarkFailed records an authoritative gateway failure.
func (r *ApplicationRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `UPDATE applications SET payment_status = $2 WHERE id = $1 AND payment_status <> $3`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusFailed, models.PaymentStatusCompleted); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

// CompleteWithRedemption flips an application to completed and, when a coupon
// is attached, records its redemption in the same transaction. The conditional
// update guards against a concurrent verification completing first: only the
// caller that flips the row consumes the coupon. Returns true when this call
// performed the transition.
func (r *ApplicationRepository) CompleteWithRedemption(ctx context.Context, app *models.Application, paidAt time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE applications SET payment_status = $2, paid_at = $3 WHERE id = $1 AND payment_status <> $2`,
		app.ID, models.PaymentStatusCompleted, paidAt)
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete payment rows: %w", err)
	}
	if rows == 0 {
		// Already completed by an earlier verification.
		return false, tx.Commit()
	}

	if app.CouponID != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE coupons SET used_count = used_count + 1, updated_at = $2 WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`,
			*app.CouponID, paidAt)
		if err != nil {
			return false, fmt.Errorf("increment coupon usage: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO coupon_usages (id, coupon_id, user_id, application_id, discount_amount, used_at)
             VALUES ($1, $2, $3, $4, $5, $6)
             ON CONFLICT (coupon_id, application_id) DO NOTHING`,
			uuid.NewString(), *app.CouponID, app.UserID, app.ID, app.DiscountAmount, paidAt)
		if err != nil {
			return false, fmt.Errorf("record coupon usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit payment completion: %w", err)
	}
	return true, nil
}

// List returns applications joined with user and course data.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	baseQuery := `FROM applications a
        JOIN users u ON u.id = a.user_id
        JOIN courses c ON c.id = a.course_id
        LEFT JOIN coupons cp ON cp.id = a.coupon_id
        WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("a.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("a.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("a.payment_status = $%d", len(args)+1))
		args = append(args, filter.PaymentStatus)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"applied_at":  "a.applied_at",
		"paid_at":     "a.paid_at",
		"final_price": "a.final_price",
	}
	sortColumn, ok := allowedSorts[sortBy]
	if !ok {
		sortColumn = "a.applied_at"
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

	listQuery := fmt.Sprintf(`SELECT a.id, a.user_id, a.course_id, a.status, a.applied_at, a.payment_status, a.payment_reference,
            a.paid_at, a.coupon_id, a.original_price, a.discount_amount, a.final_price,
            u.full_name AS user_name, u.email AS user_email, c.title AS course_title, cp.code AS coupon_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, baseQuery, sortColumn, sortOrder, pageSize, offset)

	var apps []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	return apps, total, nil
}

// PaymentStats aggregates payment totals for the admin dashboard.
func (r *ApplicationRepository) PaymentStats(ctx context.Context) (*models.PaymentStats, error) {
	const query = `SELECT
            COUNT(*) FILTER (WHERE payment_status = 'completed') AS completed_count,
            COUNT(*) FILTER (WHERE payment_status = 'pending') AS pending_count,
            COUNT(*) FILTER (WHERE payment_status = 'failed') AS failed_count,
            COALESCE(SUM(final_price) FILTER (WHERE payment_status = 'completed'), 0) AS total_revenue,
            COALESCE(SUM(discount_amount) FILTER (WHERE payment_status = 'completed'), 0) AS total_discounts
        FROM applications`
	var stats models.PaymentStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("payment stats: %w", err)
	}
	return &stats, nil
}
