package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smiict/course-api/internal/middleware"
	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/internal/service"
)

type stubCouponRepo struct {
	coupon  *models.Coupon
	created *models.Coupon
}

func (s *stubCouponRepo) FindByCode(_ context.Context, code string) (*models.Coupon, error) {
	if s.coupon == nil || s.coupon.Code != code {
		return nil, sql.ErrNoRows
	}
	return s.coupon, nil
}

func (s *stubCouponRepo) FindByID(context.Context, string) (*models.Coupon, error) {
	if s.coupon == nil {
		return nil, sql.ErrNoRows
	}
	return s.coupon, nil
}

func (s *stubCouponRepo) Create(_ context.Context, coupon *models.Coupon) error {
	s.created = coupon
	return nil
}

func (s *stubCouponRepo) Update(context.Context, *models.Coupon) error  { return nil }
func (s *stubCouponRepo) SetActive(context.Context, string, bool) error { return nil }
func (s *stubCouponRepo) Delete(context.Context, string) error          { return nil }

func (s *stubCouponRepo) CountUsageByUser(context.Context, string, string) (int, error) {
	return 0, nil
}

func (s *stubCouponRepo) ListUsages(context.Context, string) ([]models.CouponUsage, error) {
	return nil, nil
}

func (s *stubCouponRepo) List(context.Context, models.CouponFilter) ([]models.Coupon, int, error) {
	if s.coupon == nil {
		return nil, 0, nil
	}
	return []models.Coupon{*s.coupon}, 1, nil
}

type stubCourseCatalog struct {
	course *models.Course
}

func (s *stubCourseCatalog) FindByID(context.Context, string) (*models.Course, error) {
	if s.course == nil {
		return nil, sql.ErrNoRows
	}
	return s.course, nil
}

func (s *stubCourseCatalog) Create(context.Context, *models.Course) error { return nil }
func (s *stubCourseCatalog) Update(context.Context, *models.Course) error { return nil }
func (s *stubCourseCatalog) Delete(context.Context, string) error         { return nil }

func (s *stubCourseCatalog) List(context.Context, models.CourseFilter) ([]models.Course, int, error) {
	return nil, 0, nil
}

func newCouponHandlerForTest(repo *stubCouponRepo, course *models.Course) *CouponHandler {
	coupons := service.NewCouponService(repo, nil)
	courses := service.NewCourseService(&stubCourseCatalog{course: course}, nil, nil, 0, nil)
	return NewCouponHandler(coupons, courses)
}

func activeTestCoupon() *models.Coupon {
	return &models.Coupon{
		ID:            "coupon-1",
		Code:          "WELCOME10",
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: 10,
		IsActive:      true,
		ValidFrom:     time.Now().Add(-time.Hour),
		UserLimit:     1,
	}
}

func TestCouponHandlerValidate(t *testing.T) {
	repo := &stubCouponRepo{coupon: activeTestCoupon()}
	handler := newCouponHandlerForTest(repo, &models.Course{ID: "course-1", Title: "Data Analysis", Price: 500})

	c, recorder := paymentTestContext(t, http.MethodPost, "/coupons/validate", `{"code":"welcome10","course_id":"course-1"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})

	handler.Validate(c)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
	var envelope struct {
		Data couponValidation `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.Valid {
		t.Fatalf("expected a valid coupon, got reason %q", envelope.Data.Reason)
	}
	if envelope.Data.DiscountAmount != 50 || envelope.Data.FinalAmount != 450 {
		t.Fatalf("unexpected amounts: %+v", envelope.Data)
	}
}

func TestCouponHandlerValidateUnknownCode(t *testing.T) {
	handler := newCouponHandlerForTest(&stubCouponRepo{}, &models.Course{ID: "course-1", Price: 500})

	c, recorder := paymentTestContext(t, http.MethodPost, "/coupons/validate", `{"code":"NOPE","course_id":"course-1"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})

	handler.Validate(c)

	// Rejections come back as a 200 answer, not an error.
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
	var envelope struct {
		Data couponValidation `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Valid {
		t.Fatalf("expected an invalid coupon")
	}
	if envelope.Data.Reason == "" {
		t.Fatalf("expected a rejection reason")
	}
}

func TestCouponHandlerValidateUnknownCourse(t *testing.T) {
	handler := newCouponHandlerForTest(&stubCouponRepo{coupon: activeTestCoupon()}, nil)

	c, recorder := paymentTestContext(t, http.MethodPost, "/coupons/validate", `{"code":"WELCOME10","course_id":"missing"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})

	handler.Validate(c)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestCouponHandlerValidateRequiresAuth(t *testing.T) {
	handler := newCouponHandlerForTest(&stubCouponRepo{}, nil)

	c, recorder := paymentTestContext(t, http.MethodPost, "/coupons/validate", `{"code":"WELCOME10","course_id":"course-1"}`)

	handler.Validate(c)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestCouponHandlerCreate(t *testing.T) {
	repo := &stubCouponRepo{}
	handler := newCouponHandlerForTest(repo, nil)

	c, recorder := paymentTestContext(t, http.MethodPost, "/admin/coupons",
		`{"code":"launch25","discount_type":"percentage","discount_value":25}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Create(c)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", recorder.Code, recorder.Body.String())
	}
	if repo.created == nil {
		t.Fatalf("expected the coupon to be stored")
	}
	if !strings.EqualFold(repo.created.Code, "LAUNCH25") {
		t.Fatalf("unexpected stored code: %s", repo.created.Code)
	}
}

func TestCouponHandlerToggleRequiresActiveField(t *testing.T) {
	handler := newCouponHandlerForTest(&stubCouponRepo{coupon: activeTestCoupon()}, nil)

	c, recorder := paymentTestContext(t, http.MethodPut, "/admin/coupons/coupon-1/toggle", `{}`)
	c.Params = append(c.Params, gin.Param{Key: "id", Value: "coupon-1"})

	handler.Toggle(c)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
