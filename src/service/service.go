// Package service implements the optional HTTP service which reports the
// state of a running session.
package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mosaicnetworks/rtcsession/src/negotiation"
	"github.com/mosaicnetworks/rtcsession/src/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// StatusInfo is the body of the /status endpoint.
type StatusInfo struct {
	Status          string `json:"status"`
	SessionID       string `json:"session_id,omitempty"`
	LatencyMs       int64  `json:"latency_ms"`
	Connected       bool   `json:"connected"`
	PendingRequests int    `json:"pending_requests"`
	Streams         int    `json:"streams"`
	ActiveLinks     int    `json:"active_links"`
}

// StreamInfo describes one registered stream in the /streams endpoint.
type StreamInfo struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	Kind        string `json:"kind"`
	ManifestURL string `json:"manifest_url,omitempty"`
	LinkState   string `json:"link_state"`
}

// Service serves the status of a session and its streams over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	session     *session.Session
	engine      *negotiation.Engine
	gatherer    prometheus.Gatherer
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService creates a Service. Metrics are read from gatherer, which may be
// nil to disable the /metrics endpoint.
func NewService(bindAddress string, s *session.Session, e *negotiation.Engine, gatherer prometheus.Gatherer, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		session:     s,
		engine:      e,
		gatherer:    gatherer,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the service's own mux, so
// that several clients can run in the same process.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering status API handlers")
	s.mux.HandleFunc("/status", s.makeHandler(s.GetStatus))
	s.mux.HandleFunc("/streams", s.makeHandler(s.GetStreams))
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API, for use by another server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call which returns when the
// service is closed.
func (s *Service) Serve() {
	s.Lock()
	s.server = &http.Server{Addr: s.bindAddress, Handler: s.mux}
	server := s.server
	s.Unlock()

	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving status API")

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Close shuts the server down if it is running.
func (s *Service) Close(ctx context.Context) error {
	s.Lock()
	server := s.server
	s.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// GetStatus ...
func (s *Service) GetStatus(w http.ResponseWriter, r *http.Request) {
	client := s.session.Client()

	info := StatusInfo{
		Status:          s.session.Status().String(),
		SessionID:       s.session.SessionID(),
		LatencyMs:       s.session.Latency().Milliseconds(),
		Connected:       client.Connected(),
		PendingRequests: client.PendingCount(),
		Streams:         len(s.engine.Streams()),
		ActiveLinks:     s.engine.ActiveLinks(),
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.logger.WithError(err).Error("Encoding status")
	}
}

// GetStreams ...
func (s *Service) GetStreams(w http.ResponseWriter, r *http.Request) {
	streams := s.engine.Streams()

	infos := make([]StreamInfo, 0, len(streams))
	for _, st := range streams {
		infos = append(infos, StreamInfo{
			ID:          st.ID(),
			Direction:   string(st.Direction()),
			Kind:        st.Kind().String(),
			ManifestURL: st.ManifestURL(),
			LinkState:   st.LinkState().String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(infos); err != nil {
		s.logger.WithError(err).Error("Encoding streams")
	}
}
