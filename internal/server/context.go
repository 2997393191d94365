package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/fetch"
	"github.com/teemow/calmux/internal/google"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/logging"
	"github.com/teemow/calmux/internal/notify"
	"github.com/teemow/calmux/internal/operations"
)

// ServiceFactory creates the calendar service of an account.
type ServiceFactory func(ctx context.Context, account string) (calendar.Service, error)

// Options configures a ServerContext.
type Options struct {
	// DefaultAccount is used when a request names no account.
	DefaultAccount string

	// Accounts are the configured account names. Accounts with a stored
	// token are added automatically.
	Accounts []string

	TokenProvider google.TokenProvider

	// ClientOptions are passed to every calendar client created from a token.
	ClientOptions []calendar.ClientOption

	// NewService overrides how services are created, e.g. with fakes in tests.
	NewService ServiceFactory

	Operations operations.Config

	// MaxConcurrency bounds the calendars fetched in parallel per account.
	MaxConcurrency int

	Notifier notify.Publisher
	Metrics  *instrumentation.Metrics

	// AuditLogger records tool invocations. Nil disables auditing.
	AuditLogger *instrumentation.AuditLogger

	Logger *slog.Logger
}

// accountLister is implemented by token providers that can enumerate accounts.
type accountLister interface {
	ListAccounts() ([]string, error)
}

// ServerContext holds the context for the MCP server: the calendar services
// of every account and the operations running on them.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	defaultAccount string
	accounts       []string
	tokenProvider  google.TokenProvider
	newService     ServiceFactory
	notifier       notify.Publisher
	metrics        *instrumentation.Metrics
	auditLogger    *instrumentation.AuditLogger
	logger         *slog.Logger

	mu       sync.RWMutex
	services map[string]calendar.Service
	shutdown bool

	ops *operations.Operations
}

var _ operations.ClientProvider = (*ServerContext)(nil)

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, opts Options) (*ServerContext, error) {
	if opts.DefaultAccount == "" {
		opts.DefaultAccount = google.DefaultAccount
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewService == nil && opts.TokenProvider == nil {
		return nil, fmt.Errorf("either a token provider or a service factory is required")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:            shutdownCtx,
		cancel:         cancel,
		defaultAccount: opts.DefaultAccount,
		accounts:       opts.Accounts,
		tokenProvider:  opts.TokenProvider,
		newService:     opts.NewService,
		notifier:       opts.Notifier,
		metrics:        opts.Metrics,
		auditLogger:    opts.AuditLogger,
		logger:         opts.Logger,
		services:       make(map[string]calendar.Service),
	}
	if sc.newService == nil {
		clientOpts := append([]calendar.ClientOption{calendar.WithMetrics(opts.Metrics)}, opts.ClientOptions...)
		sc.newService = func(ctx context.Context, account string) (calendar.Service, error) {
			return calendar.NewClientForAccountWithProvider(ctx, account, opts.TokenProvider, clientOpts...)
		}
	}

	ops, err := operations.New(operations.Deps{
		Clients:  sc,
		Fetcher:  fetch.NewCoordinator(opts.MaxConcurrency, opts.Metrics, opts.Logger),
		Notifier: opts.Notifier,
		Metrics:  opts.Metrics,
		Logger:   opts.Logger,
	}, opts.Operations)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create operations: %w", err)
	}
	sc.ops = ops

	return sc, nil
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Operations returns the calendar operations.
func (sc *ServerContext) Operations() *operations.Operations {
	return sc.ops
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// DefaultAccount returns the account used when a request names none.
func (sc *ServerContext) DefaultAccount() string {
	return sc.defaultAccount
}

// Accounts returns the configured accounts plus every account with a stored
// token, default account first.
func (sc *ServerContext) Accounts() []string {
	out := []string{sc.defaultAccount}
	seen := map[string]bool{sc.defaultAccount: true}
	var extra []string
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			extra = append(extra, a)
		}
	}
	for _, a := range sc.accounts {
		add(a)
	}
	if l, ok := sc.tokenProvider.(accountLister); ok {
		stored, err := l.ListAccounts()
		if err != nil {
			sc.logger.Warn("failed to list stored accounts", logging.Err(err))
		}
		for _, a := range stored {
			add(a)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// HasToken reports whether account can be authenticated.
func (sc *ServerContext) HasToken(account string) bool {
	sc.mu.RLock()
	_, cached := sc.services[account]
	sc.mu.RUnlock()
	if cached {
		return true
	}
	return calendar.HasTokenForAccountWithProvider(account, sc.tokenProvider)
}

// Service returns the calendar service of account, creating and caching it on
// first use.
func (sc *ServerContext) Service(ctx context.Context, account string) (calendar.Service, error) {
	if account == "" {
		account = sc.defaultAccount
	}

	sc.mu.RLock()
	svc, ok := sc.services[account]
	shutdown := sc.shutdown
	sc.mu.RUnlock()
	if shutdown {
		return nil, errors.New("server is shutting down")
	}
	if ok {
		return svc, nil
	}

	if sc.tokenProvider != nil && !sc.tokenProvider.HasTokenForAccount(account) {
		return nil, errors.New(google.GetAuthenticationErrorMessage(account))
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if svc, ok := sc.services[account]; ok {
		return svc, nil
	}
	svc, err := sc.newService(sc.ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client for account %s: %w", account, err)
	}
	sc.services[account] = svc
	sc.logger.Debug("created calendar client", logging.Account(account))
	return svc, nil
}

// SetService sets the calendar service for a specific account
func (sc *ServerContext) SetService(account string, svc calendar.Service) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.services[account] = svc
}

// ForgetService drops the cached service of account, e.g. after a new token
// was saved.
func (sc *ServerContext) ForgetService(account string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.services, account)
}

// codeExchanger is implemented by token providers that can complete the
// OAuth flow.
type codeExchanger interface {
	SaveAuthCode(ctx context.Context, account, authCode string) error
}

// SaveAuthCode exchanges an authorization code for a token of account and
// drops cached state built with the previous token.
func (sc *ServerContext) SaveAuthCode(ctx context.Context, account, authCode string) error {
	if account == "" {
		account = sc.defaultAccount
	}
	ex, ok := sc.tokenProvider.(codeExchanger)
	if !ok {
		return errors.New("the configured token provider does not accept authorization codes")
	}
	if err := ex.SaveAuthCode(ctx, account, authCode); err != nil {
		return err
	}
	sc.ForgetService(account)
	sc.ops.Registry().Reset()
	sc.logger.Info("saved OAuth token", logging.Account(account))
	return nil
}

// NotifierHealthy reports the health of the change notifier. A notifier that
// cannot report health counts as healthy.
func (sc *ServerContext) NotifierHealthy() error {
	if h, ok := sc.notifier.(interface{ Healthy() error }); ok {
		return h.Healthy()
	}
	return nil
}

// Shutdown gracefully shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	sc.services = make(map[string]calendar.Service)

	if c, ok := sc.notifier.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close notifier: %w", err)
		}
	}
	return nil
}

// IsShutdown returns whether the server context is shutting down
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}
