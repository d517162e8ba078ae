package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lorekeeper/segmenter/internal/config"
	"github.com/lorekeeper/segmenter/internal/event"
	"github.com/lorekeeper/segmenter/internal/log"
)

const (
	// maxEventBytes bounds a trigger payload. Events are small JSON
	// documents; anything larger is a client error.
	maxEventBytes = 1 << 20

	shutdownTimeout = 30 * time.Second
)

// ServeCmd creates the serve command: the segmentation trigger exposed
// as an HTTP endpoint.
func ServeCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the segmentation trigger over HTTP",
		Long: `Listen for trigger events on an HTTP endpoint.

POST /v1/segment takes the same JSON event the run command reads and
answers with the response JSON. /healthz and /metrics serve liveness
and Prometheus scrapes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := env.ConfigLoader.Load()
			if err != nil {
				return err
			}
			return newServer(env, cfg).listen(cmd.Context(), cfg.ListenAddr)
		},
	}
	return cmd
}

// server handles trigger events over HTTP. Each request builds its own
// store so per-event bucket overrides take effect.
type server struct {
	env    *Env
	cfg    config.Config
	logger zerolog.Logger
}

func newServer(env *Env, cfg config.Config) *server {
	return &server{
		env:    env,
		cfg:    cfg,
		logger: log.WithComponent("server"),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/v1/segment", s.handleSegment)
	return r
}

// listen serves until the context is cancelled, then shuts down
// gracefully.
func (s *server) listen(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

// handleSegment runs one segmentation for a posted trigger event.
func (s *server) handleSegment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read request body: %w", err))
		return
	}

	req, err := event.Parse(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := segmentEvent(r.Context(), s.env, s.cfg, req)
	if err != nil {
		s.logger.Error().Err(err).Str("source", req.AudioFilename).Msg("segmentation request failed")
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

func (s *server) writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if encodeErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encodeErr != nil {
		s.logger.Warn().Err(encodeErr).Msg("could not write error response")
	}
}
