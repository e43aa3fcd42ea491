package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"askgive/internal/ai"
	"askgive/internal/pipeline"
	"askgive/internal/sheets"
	"askgive/internal/storage"
)

const maxUploadBytes = 20 << 20

type Server struct {
	db        *storage.DB
	processor *pipeline.ProcessingService
	syncer    *sheets.SyncService
	validate  *validator.Validate
	log       *zap.Logger
}

func New(db *storage.DB, processor *pipeline.ProcessingService, syncer *sheets.SyncService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		db:        db,
		processor: processor,
		syncer:    syncer,
		validate:  validator.New(),
		log:       log,
	}
}

func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/healthz", s.health)
	router.GET("/api/members", s.listMembers)
	router.GET("/api/members/:id", s.getMember)
	router.GET("/api/members/:id/matches", s.getMatches)
	router.POST("/api/members/:id/matches", s.recomputeMatches)
	router.POST("/api/roster/upload", s.uploadRoster)
	router.POST("/api/roster/sync", s.syncRoster)
	router.GET("/api/roster/export", s.exportRoster)
	router.GET("/api/imports", s.listImports)
	return s.logRequests(router)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sheets.ErrInvalidSheetURL),
		errors.Is(err, pipeline.ErrUnsupportedInput),
		errors.Is(err, pipeline.ErrUnreadableInput):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNoVerifiedMembers),
		errors.Is(err, pipeline.ErrEmptyRoster),
		errors.Is(err, ai.ErrNotConfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ai.ErrModel), errors.Is(err, sheets.ErrFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
