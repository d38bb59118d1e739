// Package lifecycle starts the bridge's services in order and stops them in
// reverse order on signal, error or context cancellation.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a long-running component. Start may block until the service ends
// or return at once after spawning its own goroutines; a nil return is never
// treated as a failure. Stop must make a blocking Start return.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// FuncService adapts a start/stop function pair. Either may be nil.
type FuncService struct {
	StartFn func(ctx context.Context) error
	StopFn  func(ctx context.Context) error
}

func (f *FuncService) Start(ctx context.Context) error {
	if f.StartFn == nil {
		return nil
	}
	return f.StartFn(ctx)
}

func (f *FuncService) Stop(ctx context.Context) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}

// Closer wraps a resource that only needs releasing at shutdown.
func Closer(fn func() error) Service {
	return &FuncService{StopFn: func(context.Context) error { return fn() }}
}

type namedService struct {
	name    string
	service Service
}

// Lifecycle owns the ordered service list.
type Lifecycle struct {
	log     *zap.Logger
	grace   time.Duration
	signals []os.Signal

	mu       sync.Mutex
	services []namedService
}

// New returns a Lifecycle that gives each Stop call up to grace.
func New(log *zap.Logger, grace time.Duration) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Lifecycle{log: log, grace: grace, signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM}}
}

// Add registers svc. Services start in the order they are added.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every service and blocks until a signal, a service failure or
// ctx cancellation, then stops all services in reverse order. It returns the
// first service failure, if any.
func (l *Lifecycle) Run(ctx context.Context) error {
	begin := time.Now()
	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	l.mu.Unlock()

	ctx, stopSignals := signal.NotifyContext(ctx, l.signals...)
	defer stopSignals()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(services))
	for _, ns := range services {
		ns := ns
		l.log.Info("starting service", zap.String("service", ns.name))
		go func() {
			svcStart := time.Now()
			if err := ns.service.Start(runCtx); err != nil {
				l.log.Error("service failed",
					zap.String("service", ns.name),
					zap.Duration("uptime", time.Since(svcStart)),
					zap.Error(err),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
	}
	l.log.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(begin)),
	)

	var runErr error
	select {
	case err := <-errCh:
		runErr = err
		l.log.Error("service error, shutting down", zap.Error(err))
	case <-ctx.Done():
		l.log.Info("shutdown requested", zap.Error(context.Cause(ctx)))
	}
	cancel()

	l.shutdown(services)
	l.log.Info("shutdown complete", zap.Duration("total_uptime", time.Since(begin)))
	return runErr
}

func (l *Lifecycle) shutdown(services []namedService) {
	begin := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.log.Info("stopping service", zap.String("service", ns.name))
		ctx, cancel := context.WithTimeout(context.Background(), l.grace)
		if err := ns.service.Stop(ctx); err != nil {
			l.log.Warn("service stop failed", zap.String("service", ns.name), zap.Error(err))
		}
		cancel()
		l.log.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.log.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(begin)))
}
