package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/repository"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ReportJob 生成按农场汇总的告警 Excel 日报
type ReportJob struct {
	alertsRepo repository.AlertsRepository
	logger     *zap.Logger

	outputDir string
	window    time.Duration
	now       func() time.Time
}

func NewReportJob(alertsRepo repository.AlertsRepository, outputDir string, window time.Duration, logger *zap.Logger) *ReportJob {
	return &ReportJob{
		alertsRepo: alertsRepo,
		logger:     logger,
		outputDir:  outputDir,
		window:     window,
		now:        time.Now,
	}
}

// farmSummary 单农场统计
type farmSummary struct {
	total    int
	info     int
	warning  int
	critical int
	active   int
	resolved int
}

// Run 生成一份报表，返回文件路径
func (j *ReportJob) Run(ctx context.Context) (string, error) {
	end := j.now()
	start := end.Add(-j.window)

	alerts, err := j.alertsRepo.ListAlertsCreatedBetween(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("failed to list alerts for report: %w", err)
	}

	// 按农场聚合（alerts 已按 farm_id 排序）
	summaries := map[string]*farmSummary{}
	farmOrder := []string{}
	for _, alert := range alerts {
		s, ok := summaries[alert.FarmID]
		if !ok {
			s = &farmSummary{}
			summaries[alert.FarmID] = s
			farmOrder = append(farmOrder, alert.FarmID)
		}
		s.total++
		switch alert.Severity {
		case domain.SeverityInfo:
			s.info++
		case domain.SeverityWarning:
			s.warning++
		case domain.SeverityCritical:
			s.critical++
		}
		switch alert.Status {
		case domain.AlertStatusActive:
			s.active++
		case domain.AlertStatusResolved:
			s.resolved++
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Alert Summary"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Farm ID", "Total", "Info", "Warning", "Critical", "Active", "Resolved"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return "", fmt.Errorf("failed to write report header: %w", err)
		}
	}

	for row, farmID := range farmOrder {
		s := summaries[farmID]
		values := []interface{}{farmID, s.total, s.info, s.warning, s.critical, s.active, s.resolved}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return "", fmt.Errorf("failed to write report row: %w", err)
			}
		}
	}

	filename := fmt.Sprintf("alert-report-%s.xlsx", end.Format("2006-01-02"))
	path := filepath.Join(j.outputDir, filename)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	j.logger.Info("Alert report generated",
		zap.String("path", path),
		zap.Int("farms", len(farmOrder)),
		zap.Int("alerts", len(alerts)),
	)
	return path, nil
}
