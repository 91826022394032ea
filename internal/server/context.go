package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/accountkeeper/internal/instrumentation"
	"github.com/teemow/accountkeeper/internal/keeper"
)

// ServerContext is the dependency container for tool handlers. All
// collaborators are injected; nothing here reaches for globals.
type ServerContext struct {
	ctx     context.Context
	cancel  context.CancelFunc
	manager *keeper.Manager
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context wired with the keeper and
// its observability collaborators. Nil metrics or audit arguments are
// replaced with no-op instances.
func NewServerContext(ctx context.Context, manager *keeper.Manager, logger *slog.Logger, metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	if audit == nil {
		audit = instrumentation.NewAuditLogger(logger)
	}

	return &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		manager: manager,
		logger:  logger,
		metrics: metrics,
		audit:   audit,
	}
}

// Context returns the server's lifetime context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Manager returns the credential lifecycle manager.
func (sc *ServerContext) Manager() *keeper.Manager {
	return sc.manager
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// Audit returns the audit logger.
func (sc *ServerContext) Audit() *instrumentation.AuditLogger {
	return sc.audit
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server's lifetime context. Idempotent.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
