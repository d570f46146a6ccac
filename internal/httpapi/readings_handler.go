package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"greenos-alerts/internal/domain"
	"greenos-alerts/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReadingsHandler 读数上报与历史查询接口
type ReadingsHandler struct {
	ingest *service.IngestService
	logger *zap.Logger
}

func NewReadingsHandler(ingest *service.IngestService, logger *zap.Logger) *ReadingsHandler {
	return &ReadingsHandler{ingest: ingest, logger: logger}
}

type ingestRequest struct {
	SensorID   string      `json:"sensor_id"`
	Value      json.Number `json:"value"`
	RecordedAt *time.Time  `json:"recorded_at"`
}

// Ingest POST /api/v1/readings
func (h *ReadingsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpIngest) {
		writeError(w, fmt.Errorf("%w: role %s cannot ingest readings", domain.ErrForbidden, actor.Role))
		return
	}

	var req ingestRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid JSON body"))
		return
	}
	if req.SensorID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("sensor_id is required"))
		return
	}
	// json.Number 保留字面量，NaN/Inf 在此天然被拒绝
	value, err := decimal.NewFromString(req.Value.String())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("value must be a finite number"))
		return
	}

	var recordedAt time.Time
	if req.RecordedAt != nil {
		recordedAt = *req.RecordedAt
	}

	result, err := h.ingest.Ingest(r.Context(), actor.FarmID, req.SensorID, value, recordedAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(result))
}

// ListReadings GET /api/v1/sensors/{id}/readings
func (h *ReadingsHandler) ListReadings(w http.ResponseWriter, r *http.Request, sensorID string) {
	actor := ActorFromRequest(r)
	if !Allowed(actor, OpRead) {
		writeError(w, fmt.Errorf("%w: role %s cannot read readings", domain.ErrForbidden, actor.Role))
		return
	}

	q := r.URL.Query()
	var start, end *time.Time
	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid start_time"))
			return
		}
		start = &t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid end_time"))
			return
		}
		end = &t
	}
	limit := parseInt(q.Get("limit"), 100)

	readings, err := h.ingest.ListReadings(r.Context(), actor.FarmID, sensorID, start, end, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(readings))
}
