package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/smiict/course-api/internal/models"
	appErrors "github.com/smiict/course-api/pkg/errors"
	"github.com/smiict/course-api/pkg/export"
)

// ReportFormat selects the export encoding.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

type reportApplicationRepository interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	PaymentStats(ctx context.Context) (*models.PaymentStats, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfDatasetRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ReportService renders admin payment reports.
type ReportService struct {
	apps   reportApplicationRepository
	csv    datasetRenderer
	pdf    pdfDatasetRenderer
	logger *zap.Logger
}

// NewReportService creates a ReportService.
func NewReportService(apps reportApplicationRepository, csv datasetRenderer, pdf pdfDatasetRenderer, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{apps: apps, csv: csv, pdf: pdf, logger: logger}
}

// Stats returns aggregated payment figures for the dashboard.
func (s *ReportService) Stats(ctx context.Context) (*models.PaymentStats, error) {
	stats, err := s.apps.PaymentStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute payment stats")
	}
	return stats, nil
}

// PaymentsExport renders the payment ledger in the requested format.
// The listing is capped at a single large page; reports are meant for
// back-office use, not bulk data extraction.
func (s *ReportService) PaymentsExport(ctx context.Context, status models.PaymentStatus, format ReportFormat) ([]byte, string, error) {
	filter := models.ApplicationFilter{
		PaymentStatus: status,
		Page:          1,
		PageSize:      100,
		SortBy:        "paid_at",
		SortOrder:     "DESC",
	}
	apps, _, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}

	dataset := export.Dataset{
		Headers: []string{"Reference", "Student", "Email", "Course", "Original", "Discount", "Paid", "Coupon", "Status", "Paid At"},
	}
	for _, app := range apps {
		ref, coupon, paidAt := "", "", ""
		if app.PaymentReference != nil {
			ref = *app.PaymentReference
		}
		if app.CouponCode != nil {
			coupon = *app.CouponCode
		}
		if app.PaidAt != nil {
			paidAt = app.PaidAt.Format("2006-01-02 15:04")
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Reference": ref,
			"Student":   app.UserName,
			"Email":     app.UserEmail,
			"Course":    app.CourseTitle,
			"Original":  fmt.Sprintf("%.2f", app.OriginalPrice),
			"Discount":  fmt.Sprintf("%.2f", app.DiscountAmount),
			"Paid":      fmt.Sprintf("%.2f", app.FinalPrice),
			"Coupon":    coupon,
			"Status":    string(app.PaymentStatus),
			"Paid At":   paidAt,
		})
	}

	switch format {
	case ReportFormatCSV:
		out, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return out, "payments.csv", nil
	case ReportFormatPDF:
		title := "Payment Report"
		if status != "" {
			title = fmt.Sprintf("Payment Report (%s)", status)
		}
		out, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return out, "payments.pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
}
