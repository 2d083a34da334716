// Package lifecycle gives the "service-lifecycle container" spec §6 names
// as an external collaborator a concrete shape, modeled on the explicit
// construct-start-defer-stop sequence in server/cmd/server/main.go's run().
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Service is one lifecycle-managed component. Initialize runs in
// registration order on startup; Finalize runs in reverse order on
// shutdown, and also when a later Initialize fails, but only for the
// services whose Initialize succeeded.
type Service interface {
	Name() string
	Initialize(ctx context.Context) error
	Finalize(ctx context.Context) error
}

// Container sequences a fixed list of Services the way the teacher's
// main() sequences database, repositories, scheduler, gRPC, and HTTP.
type Container struct {
	logger   *zap.Logger
	services []Service
	started  []Service // the prefix that actually initialized, for correct unwind on failure
}

// New creates an empty Container.
func New(logger *zap.Logger) *Container {
	return &Container{logger: logger}
}

// Register appends svc to the startup order.
func (c *Container) Register(svc Service) {
	c.services = append(c.services, svc)
}

// Start runs Initialize on every registered Service in order, stopping and
// unwinding what already started on the first error.
func (c *Container) Start(ctx context.Context) error {
	for _, svc := range c.services {
		c.logger.Info("initializing service", zap.String("service", svc.Name()))
		if err := svc.Initialize(ctx); err != nil {
			c.logger.Error("service initialize failed", zap.String("service", svc.Name()), zap.Error(err))
			c.unwind(ctx)
			return fmt.Errorf("lifecycle: %s: %w", svc.Name(), err)
		}
		c.started = append(c.started, svc)
	}
	return nil
}

// Stop finalizes every started Service in reverse order within a bounded
// shutdown window, matching the teacher's 15s HTTP shutdown grace period.
func (c *Container) Stop(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 15*time.Second)
	defer cancel()
	c.unwind(ctx)
}

func (c *Container) unwind(ctx context.Context) {
	for i := len(c.started) - 1; i >= 0; i-- {
		svc := c.started[i]
		if err := svc.Finalize(ctx); err != nil {
			c.logger.Warn("service finalize error", zap.String("service", svc.Name()), zap.Error(err))
		}
	}
	c.started = nil
}
