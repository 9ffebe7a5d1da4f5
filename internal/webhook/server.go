// internal/webhook/server.go
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/sentinelops/internal/anomaly"
	"github.com/user/sentinelops/internal/ingest"
	"github.com/user/sentinelops/internal/state"
	"github.com/user/sentinelops/internal/stripe"
	"github.com/user/sentinelops/internal/types"
)

// maxPayloadBytes bounds a webhook body.
const maxPayloadBytes = 1 << 20

// Verifier checks a Stripe-Signature header and parses the event.
type Verifier interface {
	ConstructEvent(payload []byte, header string) (*stripe.Event, error)
}

// Ingester persists verified and invalid deliveries.
type Ingester interface {
	SaveVerified(ctx context.Context, ev *stripe.Event, signature string) (ingest.Outcome, error)
	SaveInvalid(ctx context.Context, payload []byte, signature, reason string)
}

// Anomalies is the anomaly read and lifecycle surface.
type Anomalies interface {
	List(ctx context.Context, q types.AnomalyQuery) ([]*types.Anomaly, error)
	Get(ctx context.Context, id types.AnomalyID) (*types.Anomaly, error)
	UpdateStatus(ctx context.Context, id types.AnomalyID, status types.AnomalyStatus) (*types.Anomaly, error)
}

// Pinger checks database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP surface: the Stripe webhook, the anomaly API, health
// checks and metrics.
type Server struct {
	verifier  Verifier
	ingester  Ingester
	anomalies Anomalies
	db        Pinger
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer creates a new Server. db may be nil, in which case /db-ping
// reports 503.
func NewServer(verifier Verifier, ingester Ingester, anomalies Anomalies, db Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		verifier:  verifier,
		ingester:  ingester,
		anomalies: anomalies,
		db:        db,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	for _, prefix := range []string{"", "/api/v1"} {
		s.mux.HandleFunc("GET "+prefix+"/health", s.handleHealth)
		s.mux.HandleFunc("GET "+prefix+"/db-ping", s.handleDBPing)
	}
	s.mux.HandleFunc("POST /api/v1/stripe/webhook", s.handleStripeWebhook)
	s.mux.HandleFunc("GET /api/v1/anomalies", s.handleListAnomalies)
	s.mux.HandleFunc("GET /api/v1/anomalies/open", s.handleOpenAnomalies)
	s.mux.HandleFunc("GET /api/v1/anomalies/{id}", s.handleGetAnomaly)
	s.mux.HandleFunc("PATCH /api/v1/anomalies/{id}", s.handlePatchAnomaly)
	s.mux.HandleFunc("POST /api/v1/anomalies/{id}/ack", s.handleTransition(types.StatusAcknowledged))
	s.mux.HandleFunc("POST /api/v1/anomalies/{id}/resolve", s.handleTransition(types.StatusResolved))
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDBPing(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("db ping failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"db": "ok"})
}

type webhookResponse struct {
	OK              bool   `json:"ok"`
	Saved           bool   `json:"saved,omitempty"`
	Deduped         bool   `json:"deduped,omitempty"`
	Invalid         bool   `json:"invalid,omitempty"`
	Reason          string `json:"reason,omitempty"`
	ProviderEventID string `json:"provider_event_id,omitempty"`
	EventType       string `json:"event_type,omitempty"`
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		writeError(w, http.StatusBadRequest, "Missing Stripe-Signature header")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ev, err := s.verifier.ConstructEvent(payload, signature)
	if err != nil {
		// Invalid deliveries are recorded and answered with 200.
		s.ingester.SaveInvalid(r.Context(), payload, signature, err.Error())
		writeJSON(w, http.StatusOK, webhookResponse{Invalid: true, Reason: err.Error()})
		return
	}

	outcome, err := s.ingester.SaveVerified(r.Context(), ev, signature)
	if err != nil {
		s.logger.Error("save webhook event failed", "provider_event_id", ev.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if outcome == ingest.Deduped {
		writeJSON(w, http.StatusOK, webhookResponse{OK: true, Deduped: true, ProviderEventID: ev.ID})
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{OK: true, Saved: true, ProviderEventID: ev.ID, EventType: ev.Type})
}

type anomalyList struct {
	Items []*types.Anomaly `json:"items"`
	Count int              `json:"count"`
}

func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}
	qs := r.URL.Query()
	if v := qs.Get("status"); v != "" {
		st, err := anomaly.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Invalid status: "+v)
			return
		}
		q.Status = st
	}
	if v := qs.Get("only_open"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "only_open must be a boolean")
			return
		}
		q.OnlyOpen = b
	}
	q.Sort = types.SortRecent
	if v := qs.Get("sort"); v != "" {
		q.Sort = types.AnomalySort(v)
	}
	s.list(w, r, q)
}

func (s *Server) handleOpenAnomalies(w http.ResponseWriter, r *http.Request) {
	q, ok := parseQuery(w, r)
	if !ok {
		return
	}
	q.OnlyOpen = true
	q.Sort = types.SortSeverityDesc
	s.list(w, r, q)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, q types.AnomalyQuery) {
	items, err := s.anomalies.List(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []*types.Anomaly{}
	}
	writeJSON(w, http.StatusOK, anomalyList{Items: items, Count: len(items)})
}

// parseQuery reads the parameters shared by both list endpoints.
func parseQuery(w http.ResponseWriter, r *http.Request) (types.AnomalyQuery, bool) {
	q := types.AnomalyQuery{Limit: anomaly.DefaultLimit}
	qs := r.URL.Query()
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > anomaly.MaxLimit {
			writeError(w, http.StatusUnprocessableEntity, "limit must be between 1 and 200")
			return q, false
		}
		q.Limit = n
	}
	if v := qs.Get("demo_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "demo_only must be a boolean")
			return q, false
		}
		q.DemoOnly = b
	}
	return q, true
}

func (s *Server) handleGetAnomaly(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	a, err := s.anomalies.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type statusUpdate struct {
	Status string `json:"status"`
}

func (s *Server) handlePatchAnomaly(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var body statusUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	st, err := anomaly.ParseStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid status: "+body.Status)
		return
	}
	s.transition(w, r, id, st)
}

func (s *Server) handleTransition(to types.AnomalyStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		s.transition(w, r, id, to)
	}
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, id types.AnomalyID, to types.AnomalyStatus) {
	a, err := s.anomalies.UpdateStatus(r.Context(), id, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func parseID(w http.ResponseWriter, r *http.Request) (types.AnomalyID, bool) {
	n, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || n <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "anomaly id must be a positive integer")
		return 0, false
	}
	return types.AnomalyID(n), true
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, state.ErrNotFound):
		writeError(w, http.StatusNotFound, "Anomaly not found")
	case errors.Is(err, anomaly.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, anomaly.ErrInvalidStatus), errors.Is(err, anomaly.ErrInvalidSort):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("anomaly request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
