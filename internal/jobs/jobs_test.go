package jobs

import (
	"context"
	"testing"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/notifier"
	"greenos-alerts/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func seedJobAlert(t *testing.T, repo *repository.MemoryAlertsRepo, farmID, status, severity string, createdAt time.Time) {
	t.Helper()
	ruleID := uuid.NewString()
	require.NoError(t, repo.CreateAlert(context.Background(), &domain.Alert{
		AlertID:        uuid.NewString(),
		FarmID:         farmID,
		AlertRuleID:    &ruleID,
		SensorID:       "sensor-1",
		Severity:       severity,
		Title:          "PH alert on Tank A pH probe",
		TriggeredValue: decimal.NewFromFloat(7.5),
		Status:         status,
		CreatedAt:      createdAt,
	}))
}

func TestRetentionJobDeletesOldResolved(t *testing.T) {
	alertsRepo := repository.NewMemoryAlertsRepo()
	now := time.Now()

	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusResolved, domain.SeverityWarning, now.Add(-120*24*time.Hour))
	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusResolved, domain.SeverityWarning, now.Add(-10*24*time.Hour))
	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusActive, domain.SeverityWarning, now.Add(-120*24*time.Hour))

	job := NewRetentionJob(alertsRepo, 90*24*time.Hour, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	// 只删超期的 resolved，active 不动
	_, total, err := alertsRepo.ListAlerts(context.Background(), "farm-1", repository.AlertFilters{}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestExpiryJobExpiresStaleOpenAlerts(t *testing.T) {
	alertsRepo := repository.NewMemoryAlertsRepo()
	now := time.Now()

	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusActive, domain.SeverityWarning, now.Add(-40*24*time.Hour))
	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusAcknowledged, domain.SeverityWarning, now.Add(-35*24*time.Hour))
	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusActive, domain.SeverityWarning, now.Add(-1*24*time.Hour))
	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusResolved, domain.SeverityWarning, now.Add(-40*24*time.Hour))

	job := NewExpiryJob(alertsRepo, 30*24*time.Hour, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	expired, _, err := alertsRepo.ListAlerts(context.Background(), "farm-1",
		repository.AlertFilters{Status: domain.AlertStatusExpired}, 1, 50)
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	// 近期 active 与已 resolved 的不受影响
	active, _, err := alertsRepo.ListAlerts(context.Background(), "farm-1",
		repository.AlertFilters{Status: domain.AlertStatusActive}, 1, 50)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestStaleSensorJobNotifies(t *testing.T) {
	sensorsRepo := repository.NewMemorySensorsRepo()
	now := time.Now()
	staleAt := now.Add(-30 * time.Minute)
	freshAt := now.Add(-1 * time.Minute)

	sensorsRepo.PutSensor(domain.Sensor{
		SensorID: "stale-1", FarmID: "farm-1", Name: "EC probe",
		SensorType: domain.SensorTypeEC, IsActive: true, LastReadingAt: &staleAt,
	})
	sensorsRepo.PutSensor(domain.Sensor{
		SensorID: "fresh-1", FarmID: "farm-1", Name: "pH probe",
		SensorType: domain.SensorTypePH, IsActive: true, LastReadingAt: &freshAt,
	})
	// 停用的不巡检
	sensorsRepo.PutSensor(domain.Sensor{
		SensorID: "off-1", FarmID: "farm-1", Name: "old probe",
		SensorType: domain.SensorTypePH, IsActive: false, LastReadingAt: &staleAt,
	})

	rec := &recordingPublisher{}
	job := NewStaleSensorJob(sensorsRepo, rec, 15*time.Minute, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, rec.recipients, 1)
	assert.Equal(t, "farm-1", rec.recipients[0])
}

func TestReportJobWritesWorkbook(t *testing.T) {
	alertsRepo := repository.NewMemoryAlertsRepo()
	now := time.Now()

	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusActive, domain.SeverityCritical, now.Add(-1*time.Hour))
	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusResolved, domain.SeverityWarning, now.Add(-2*time.Hour))
	seedJobAlert(t, alertsRepo, "farm-2", domain.AlertStatusActive, domain.SeverityInfo, now.Add(-3*time.Hour))
	// 窗口外
	seedJobAlert(t, alertsRepo, "farm-1", domain.AlertStatusActive, domain.SeverityInfo, now.Add(-48*time.Hour))

	job := NewReportJob(alertsRepo, t.TempDir(), 24*time.Hour, zap.NewNop())
	path, err := job.Run(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Alert Summary")
	require.NoError(t, err)
	require.Len(t, rows, 3) // 表头 + 两个农场

	assert.Equal(t, []string{"Farm ID", "Total", "Info", "Warning", "Critical", "Active", "Resolved"}, rows[0])
	assert.Equal(t, "farm-1", rows[1][0])
	assert.Equal(t, "2", rows[1][1])
	assert.Equal(t, "farm-2", rows[2][0])
}

type recordingPublisher struct {
	notifier.NopPublisher
	recipients []string
}

func (r *recordingPublisher) NotifyUser(_ context.Context, recipientID string, _ interface{}) {
	r.recipients = append(r.recipients, recipientID)
}
