package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"greenos-alerts/internal/domain"
)

// MemoryAlertsRepo AlertsRepository 的内存实现（测试/无库模式）
type MemoryAlertsRepo struct {
	mu     sync.RWMutex
	alerts map[string]domain.Alert // alertID -> alert
}

func NewMemoryAlertsRepo() *MemoryAlertsRepo {
	return &MemoryAlertsRepo{
		alerts: map[string]domain.Alert{},
	}
}

func (r *MemoryAlertsRepo) CreateAlert(_ context.Context, alert *domain.Alert) error {
	if alert == nil {
		return fmt.Errorf("%w: alert is required", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.AlertID] = *alert
	return nil
}

// CreateAlertIfNoneSince 若规则在 since 之后无告警则插入（与 Postgres 单语句语义一致）
func (r *MemoryAlertsRepo) CreateAlertIfNoneSince(_ context.Context, alert *domain.Alert, since time.Time) (bool, error) {
	if alert == nil || alert.AlertRuleID == nil {
		return false, fmt.Errorf("%w: alert with rule is required", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.alerts {
		existing := r.alerts[id]
		if existing.AlertRuleID != nil && *existing.AlertRuleID == *alert.AlertRuleID && !existing.CreatedAt.Before(since) {
			return false, nil
		}
	}
	r.alerts[alert.AlertID] = *alert
	return true, nil
}

func (r *MemoryAlertsRepo) GetAlert(_ context.Context, farmID, alertID string) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	alert, ok := r.alerts[alertID]
	if !ok || alert.FarmID != farmID {
		return nil, fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}
	out := alert
	return &out, nil
}

func (r *MemoryAlertsRepo) ListAlerts(_ context.Context, farmID string, filters AlertFilters, page, size int) ([]*domain.Alert, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Alert, 0, len(r.alerts))
	for id := range r.alerts {
		alert := r.alerts[id]
		if alert.FarmID != farmID {
			continue
		}
		if filters.Status != "" && alert.Status != filters.Status {
			continue
		}
		if len(filters.Statuses) > 0 {
			matched := false
			for _, s := range filters.Statuses {
				if alert.Status == s {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if filters.Severity != "" && alert.Severity != filters.Severity {
			continue
		}
		if filters.SensorID != "" && alert.SensorID != filters.SensorID {
			continue
		}
		if filters.RuleID != "" && (alert.AlertRuleID == nil || *alert.AlertRuleID != filters.RuleID) {
			continue
		}
		if filters.StartTime != nil && alert.CreatedAt.Before(*filters.StartTime) {
			continue
		}
		if filters.EndTime != nil && alert.CreatedAt.After(*filters.EndTime) {
			continue
		}
		out := alert
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryAlertsRepo) GetRecentAlertForRule(_ context.Context, ruleID string, since time.Time) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Alert
	for id := range r.alerts {
		alert := r.alerts[id]
		if alert.AlertRuleID == nil || *alert.AlertRuleID != ruleID || alert.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || alert.CreatedAt.After(latest.CreatedAt) {
			out := alert
			latest = &out
		}
	}
	return latest, nil
}

func (r *MemoryAlertsRepo) UpdateAlert(_ context.Context, farmID, alertID string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[alertID]
	if !ok || alert.FarmID != farmID {
		return fmt.Errorf("%w: alert %s", domain.ErrNotFound, alertID)
	}
	for field, value := range updates {
		switch field {
		case "status":
			if s, ok := value.(string); ok {
				alert.Status = s
			}
		case "acknowledged_by":
			if value == nil {
				alert.AcknowledgedBy = nil
			} else if s, ok := value.(string); ok {
				alert.AcknowledgedBy = &s
			}
		case "acknowledged_at":
			if t, ok := value.(time.Time); ok {
				alert.AcknowledgedAt = &t
			}
		case "resolved_at":
			if t, ok := value.(time.Time); ok {
				alert.ResolvedAt = &t
			}
		case "notes":
			if value == nil {
				alert.Notes = nil
			} else if s, ok := value.(string); ok {
				alert.Notes = &s
			}
		}
	}
	r.alerts[alertID] = alert
	return nil
}

func (r *MemoryAlertsRepo) CountActiveAlerts(_ context.Context, farmID, severity string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for id := range r.alerts {
		alert := r.alerts[id]
		if alert.FarmID != farmID || alert.Status != domain.AlertStatusActive {
			continue
		}
		if severity != "" && alert.Severity != severity {
			continue
		}
		count++
	}
	return count, nil
}

func (r *MemoryAlertsRepo) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id := range r.alerts {
		alert := r.alerts[id]
		if alert.Status == domain.AlertStatusResolved && alert.CreatedAt.Before(cutoff) {
			delete(r.alerts, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *MemoryAlertsRepo) ExpireAlertsCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired int64
	for id := range r.alerts {
		alert := r.alerts[id]
		if alert.Status != domain.AlertStatusActive && alert.Status != domain.AlertStatusAcknowledged {
			continue
		}
		if alert.CreatedAt.Before(cutoff) {
			alert.Status = domain.AlertStatusExpired
			r.alerts[id] = alert
			expired++
		}
	}
	return expired, nil
}

func (r *MemoryAlertsRepo) ListAlertsCreatedBetween(_ context.Context, start, end time.Time) ([]*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.Alert{}
	for id := range r.alerts {
		alert := r.alerts[id]
		if alert.CreatedAt.Before(start) || !alert.CreatedAt.Before(end) {
			continue
		}
		c := alert
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FarmID != out[j].FarmID {
			return out[i].FarmID < out[j].FarmID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
