package admin

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Service wraps the admin router in a lifecycle.Service so Container can
// start and stop it alongside the rest of raftd, mirroring the teacher's
// own httpSrv.ListenAndServe/Shutdown pair in main.go.
type Service struct {
	addr   string
	logger *zap.Logger
	srv    *http.Server
}

// NewService builds an admin Service bound to addr, serving handler.
func NewService(addr string, handler http.Handler, logger *zap.Logger) *Service {
	return &Service{
		addr:   addr,
		logger: logger,
		srv:    &http.Server{Addr: addr, Handler: handler},
	}
}

func (s *Service) Name() string { return "admin-http" }

func (s *Service) Initialize(ctx context.Context) error {
	go func() {
		s.logger.Info("admin http server listening", zap.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin http server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Service) Finalize(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
