// Package api exposes the stored observations over HTTP for dashboards and
// other read-only collaborators. Reads may run concurrently with a pipeline
// writer; each response reflects the store at query time.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"gridpulse/internal/config"
	"gridpulse/internal/locations"
	"gridpulse/internal/storage"
)

// defaultHistoryHours is returned when the client omits the hours parameter.
const defaultHistoryHours = 24

// Server serves the query endpoints.
type Server struct {
	store  storage.QueryStore
	logger zerolog.Logger
	cfg    config.APIConfig
}

// NewServer wires a read-only store into the HTTP service.
func NewServer(cfg config.APIConfig, store storage.QueryStore, logger zerolog.Logger) *Server {
	return &Server{
		store:  store,
		logger: logger.With().Str("component", "api").Logger(),
		cfg:    cfg,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /latest", s.handleLatest)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /zones", s.handleZones)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("query service listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// observationResponse is the wire shape of one record. Price and load render
// as decimal strings; score and category stay null until scored.
type observationResponse struct {
	Timestamp         time.Time `json:"timestamp"`
	Zone              string    `json:"zone"`
	Price             string    `json:"price"`
	Load              string    `json:"load"`
	SentimentScore    *float64  `json:"sentiment_score"`
	SentimentCategory *string   `json:"sentiment_category"`
}

func toResponse(record storage.ObservationRecord) observationResponse {
	resp := observationResponse{
		Timestamp:      record.Timestamp.UTC(),
		Zone:           record.Zone,
		Price:          record.Price.String(),
		Load:           record.Load.String(),
		SentimentScore: record.SentimentScore,
	}
	if record.SentimentCategory != nil {
		category := string(*record.SentimentCategory)
		resp.SentimentCategory = &category
	}
	return resp
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": "gridpulse",
		"message": "use /latest, /history, or /zones",
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	zone, ok := s.resolveZone(w, r)
	if !ok {
		return
	}

	record, err := s.store.Latest(r.Context(), zone)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no data for zone "+zone)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(record))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	zone, ok := s.resolveZone(w, r)
	if !ok {
		return
	}

	hours := defaultHistoryHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "hours must be an integer")
			return
		}
		hours = parsed
	}

	records, err := s.store.History(r.Context(), zone, hours, time.Now().UTC())
	if errors.Is(err, storage.ErrInvalidRange) {
		s.writeError(w, http.StatusBadRequest, "hours must not be negative")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	responses := make([]observationResponse, len(records))
	for i, record := range records {
		responses[i] = toResponse(record)
	}
	s.writeJSON(w, http.StatusOK, responses)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.store.AllZones(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"zones": zones})
}

// resolveZone canonicalizes the zone query parameter, writing the error
// response itself when the parameter is missing or unknown.
func (s *Server) resolveZone(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("zone")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "zone parameter is required")
		return "", false
	}
	zone, ok := locations.Normalize(raw)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown zone "+raw)
		return "", false
	}
	return zone, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("query failed")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
