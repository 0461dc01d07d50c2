package consumer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// StatusServer exposes consumer health and counters over HTTP
type StatusServer struct {
	echo     *echo.Echo
	consumer *Consumer
	cfg      *Config
}

type statusResponse struct {
	Queue   string `json:"queue"`
	AckMode string `json:"ack_mode"`
	Stats
}

func NewStatusServer(consumer *Consumer, cfg *Config) *StatusServer {
	srv := &StatusServer{echo: echo.New(), consumer: consumer, cfg: cfg}
	srv.echo.HideBanner = true
	srv.echo.HidePort = true
	srv.setupHandlers()
	return srv
}

func (s *StatusServer) setupHandlers() {
	s.echo.GET("/health", s.health)
	s.echo.GET("/stats", s.stats)
}

func (s *StatusServer) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *StatusServer) stats(c echo.Context) error {
	ackMode := "auto"
	if !s.cfg.AutoAck {
		ackMode = "manual"
	}
	return c.JSON(http.StatusOK, statusResponse{Queue: s.cfg.Queue.QueueName, AckMode: ackMode, Stats: s.consumer.Stats()})
}

func (s *StatusServer) Handler() http.Handler {
	return s.echo
}

// Run serves on cfg.StatusAddress until ctx is done
func (s *StatusServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Status endpoints listening on %s", s.cfg.StatusAddress)
		errCh <- s.echo.Start(s.cfg.StatusAddress)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Status server shutdown failed")
	}
	return ctx.Err()
}
