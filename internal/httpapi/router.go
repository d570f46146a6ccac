package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterRoutes 注册全部接口
func (r *Router) RegisterRoutes(
	readings *ReadingsHandler,
	rules *RulesHandler,
	alerts *AlertsHandler,
	policies *PoliciesHandler,
) {
	// 健康检查
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})

	// 读数上报
	r.Handle("/api/v1/readings", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		readings.Ingest(w, req)
	})

	// 传感器历史读数 /api/v1/sensors/{id}/readings
	r.Handle("/api/v1/sensors/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/sensors/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "readings" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		readings.ListReadings(w, req, parts[0])
	})

	// 告警规则
	r.Handle("/api/v1/alert-rules", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			rules.List(w, req)
		case http.MethodPost:
			rules.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/v1/alert-rules/", func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimPrefix(req.URL.Path, "/api/v1/alert-rules/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch req.Method {
		case http.MethodGet:
			rules.Get(w, req, id)
		case http.MethodPatch:
			rules.Update(w, req, id)
		case http.MethodDelete:
			rules.Delete(w, req, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// 告警
	r.Handle("/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alerts.List(w, req)
	})
	r.Handle("/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/alerts/")
		switch rest {
		case "active":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			alerts.Active(w, req)
			return
		case "count":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			alerts.Count(w, req)
			return
		}

		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			alerts.Get(w, req, parts[0])
		case len(parts) == 2 && parts[0] != "" && parts[1] == "acknowledge":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			alerts.Acknowledge(w, req, parts[0])
		case len(parts) == 2 && parts[0] != "" && parts[1] == "resolve":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			alerts.Resolve(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// 升级策略
	r.Handle("/api/v1/escalation-policies", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			policies.List(w, req)
		case http.MethodPost:
			policies.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/v1/escalation-policies/", func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimPrefix(req.URL.Path, "/api/v1/escalation-policies/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch req.Method {
		case http.MethodGet:
			policies.Get(w, req, id)
		case http.MethodDelete:
			policies.Delete(w, req, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}
