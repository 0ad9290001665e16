// internal/admin/server.go
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
	"github.com/rovshanmuradov/rpc-balancer/internal/events"
)

// Picker выбор апстрима и кэшированный рейтинг
type Picker interface {
	Pick() (*endpoint.Endpoint, error)
	Ranking() []*endpoint.Endpoint
}

// Reranker внеплановое переранжирование
type Reranker interface {
	Rerank(ctx context.Context) ([]*endpoint.Endpoint, error)
}

// JournalReader последние диагностические события
type JournalReader interface {
	Recent(limit int) []events.Entry
}

// EndpointView представление эндпоинта в ответах
type EndpointView struct {
	ID                  endpoint.ID `json:"id"`
	URL                 string      `json:"url"`
	Kind                string      `json:"kind"`
	Liveness            string      `json:"liveness"`
	LatencyNs           *float64    `json:"latency_ns,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastError           string      `json:"last_error,omitempty"`
}

// Server служебный HTTP-интерфейс: метрики, рейтинг, готовность
type Server struct {
	router   *mux.Router
	srv      *http.Server
	picker   Picker
	reranker Reranker
	journal  JournalReader
	logger   *zap.Logger
}

// NewServer собирает маршруты. reranker может быть nil, тогда /rerank не регистрируется.
func NewServer(addr string, picker Picker, reranker Reranker, registry *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		picker:   picker,
		reranker: reranker,
		logger:   logger.Named("admin"),
	}

	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/ranking", s.handleRanking).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if reranker != nil {
		s.router.HandleFunc("/rerank", s.handleRerank).Methods(http.MethodPost)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// WithJournal публикует журнал диагностики на /events?limit=N
func (s *Server) WithJournal(j JournalReader) *Server {
	s.journal = j
	s.router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	return s
}

// Handler возвращает корневой обработчик
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run обслуживает запросы, пока ctx не отменен
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Admin server listening", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRanking(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, viewsOf(s.picker.Ranking()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ep, err := s.picker.Pick()
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "upstream": viewOf(ep)})
}

func (s *Server) handleRerank(w http.ResponseWriter, r *http.Request) {
	ranking, err := s.reranker.Rerank(r.Context())
	if err != nil {
		s.logger.Warn("Manual rerank failed", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, viewsOf(ranking))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	s.writeJSON(w, http.StatusOK, s.journal.Recent(limit))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func viewsOf(ranking []*endpoint.Endpoint) []EndpointView {
	out := make([]EndpointView, 0, len(ranking))
	for _, ep := range ranking {
		out = append(out, viewOf(ep))
	}
	return out
}

func viewOf(ep *endpoint.Endpoint) EndpointView {
	st := ep.Status()
	v := EndpointView{
		ID:                  ep.ID,
		URL:                 ep.URL,
		Kind:                ep.Kind.String(),
		Liveness:            st.Liveness.String(),
		ConsecutiveFailures: st.ConsecutiveFailures,
	}
	if st.HasLatency {
		latency := st.Latency
		v.LatencyNs = &latency
	}
	if st.LastError != nil {
		v.LastError = st.LastError.Error()
	}
	return v
}
