package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/pkg/export"
)

type mockReportAppRepo struct {
	apps   []models.ApplicationDetail
	stats  *models.PaymentStats
	filter models.ApplicationFilter
}

func (m *mockReportAppRepo) List(_ context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	m.filter = filter
	return m.apps, len(m.apps), nil
}

func (m *mockReportAppRepo) PaymentStats(context.Context) (*models.PaymentStats, error) {
	return m.stats, nil
}

func reportFixture() *mockReportAppRepo {
	ref := "PAY_ABCDEF1234"
	code := "WELCOME10"
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &mockReportAppRepo{
		apps: []models.ApplicationDetail{
			{
				Application: models.Application{
					ID:               "app-1",
					PaymentStatus:    models.PaymentStatusCompleted,
					PaymentReference: &ref,
					PaidAt:           &paidAt,
					OriginalPrice:    500,
					DiscountAmount:   50,
					FinalPrice:       450,
				},
				UserName:    "Ada Obi",
				UserEmail:   "ada@example.com",
				CourseTitle: "Data Analysis",
				CouponCode:  &code,
			},
		},
		stats: &models.PaymentStats{CompletedCount: 1, TotalRevenue: 450, TotalDiscounts: 50},
	}
}

func TestPaymentsExportCSV(t *testing.T) {
	repo := reportFixture()
	svc := NewReportService(repo, export.NewCSVExporter(), export.NewPDFExporter(), nil)

	out, filename, err := svc.PaymentsExport(context.Background(), "", ReportFormatCSV)
	require.NoError(t, err)
	require.Equal(t, "payments.csv", filename)

	body := string(out)
	require.Contains(t, body, "PAY_ABCDEF1234")
	require.Contains(t, body, "Ada Obi")
	require.Contains(t, body, "WELCOME10")
	require.Contains(t, body, "450.00")
	require.True(t, strings.HasPrefix(body, "Reference,"))
}

func TestPaymentsExportPDF(t *testing.T) {
	repo := reportFixture()
	svc := NewReportService(repo, export.NewCSVExporter(), export.NewPDFExporter(), nil)

	out, filename, err := svc.PaymentsExport(context.Background(), models.PaymentStatusCompleted, ReportFormatPDF)
	require.NoError(t, err)
	require.Equal(t, "payments.pdf", filename)
	require.NotEmpty(t, out)
	require.Equal(t, models.PaymentStatusCompleted, repo.filter.PaymentStatus)
}

func TestPaymentsExportUnknownFormat(t *testing.T) {
	svc := NewReportService(reportFixture(), export.NewCSVExporter(), export.NewPDFExporter(), nil)

	_, _, err := svc.PaymentsExport(context.Background(), "", ReportFormat("xlsx"))
	require.Error(t, err)
}

func TestReportStats(t *testing.T) {
	svc := NewReportService(reportFixture(), export.NewCSVExporter(), export.NewPDFExporter(), nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.CompletedCount)
	require.Equal(t, 450.0, stats.TotalRevenue)
}
