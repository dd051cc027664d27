// Package api 对外暴露的服务接口与 HTTP API
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"pagevitals/internal/logger"
	"pagevitals/internal/rules"
	"pagevitals/internal/session"
	"pagevitals/pkg/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"
)

// maxEventsBody 单次事件上报请求体上限
const maxEventsBody = 1 << 20

type server struct {
	svc Service
	log logger.Logger
}

// NewRouter 构建 HTTP 路由
func NewRouter(svc Service, l logger.Logger) http.Handler {
	if l == nil {
		l = logger.NewNop()
	}
	s := &server{svc: svc, log: l}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/targets", s.handleTargets)
	r.Post("/targets/{id}/attach", s.handleAttach)
	r.Get("/sessions", s.handleSessions)
	r.Post("/sessions", s.handleStartSession)
	r.Get("/sessions/{id}/snapshot", s.handleSnapshot)
	r.Delete("/sessions/{id}", s.handleStopSession)
	r.Post("/sessions/{id}/events", s.handleEvents)
	r.Post("/sessions/{id}/track", s.handleTrack)
	r.Put("/rules", s.handleRules)
	r.Handle("/metrics", promhttp.HandlerFor(svc.Metrics().Registry(), promhttp.HandlerOpts{}))
	return r
}

func (s *server) handleTargets(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListTargets(r.Context())
	if err != nil {
		s.fail(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) handleAttach(w http.ResponseWriter, r *http.Request) {
	id, err := s.svc.AttachTarget(r.Context(), model.TargetID(chi.URLParam(r, "id")))
	if err != nil {
		s.fail(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(id)})
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Sessions())
}

func (s *server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.svc.StartSession()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(id)})
}

func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(model.SessionID(chi.URLParam(r, "id")))
	if err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.StopSession(model.SessionID(chi.URLParam(r, "id"))); err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents 请求体为单条负载或负载数组，格式与页面脚本回传一致
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := model.SessionID(chi.URLParam(r, "id"))
	if _, err := s.svc.Snapshot(id); err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventsBody))
	if err != nil || !gjson.ValidBytes(body) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var payloads []string
	doc := gjson.ParseBytes(body)
	if doc.IsArray() {
		doc.ForEach(func(_, v gjson.Result) bool {
			payloads = append(payloads, v.Raw)
			return true
		})
	} else {
		payloads = append(payloads, doc.Raw)
	}

	accepted, rejected := 0, 0
	for _, p := range payloads {
		if err := s.svc.Ingest(id, p); err != nil {
			rejected++
			s.log.Debug("丢弃事件", "sessionID", string(id), "error", err)
			continue
		}
		accepted++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted, "rejected": rejected})
}

func (s *server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var data model.CustomAnalyticsData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.svc.Track(model.SessionID(chi.URLParam(r, "id")), data); err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRules(w http.ResponseWriter, r *http.Request) {
	var rs []rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.svc.LoadRules(rs)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Err(err, "请求处理失败")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	if errors.Is(err, session.ErrSessionNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
