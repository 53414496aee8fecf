// Package service implements the billing lifecycles: sales, purchases,
// expenditures, inventory and service reminders. Every mutation runs in one
// store transaction; side effects are handed to the dispatcher after commit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"billdesk/internal/cache"
	"billdesk/internal/document"
	"billdesk/internal/domain"
	"billdesk/internal/ledger"
	"billdesk/internal/notify"
	"billdesk/internal/observability"
	"billdesk/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Ledger     *ledger.Ledger
	Cache      cache.ReportCache
	Dispatcher *notify.Dispatcher
	Documents  *document.Renderer
	Messenger  notify.Messenger
	Metrics    *observability.Metrics
	Logger     *slog.Logger
	// Now returns the current instant; it is truncated to seconds.
	Now func() time.Time
	// Location defines the local calendar day for bill ids and daily lists.
	Location     *time.Location
	ReminderLead time.Duration
}

type Service struct {
	store        store.Store
	ledger       *ledger.Ledger
	cache        cache.ReportCache
	dispatcher   *notify.Dispatcher
	documents    *document.Renderer
	messenger    notify.Messenger
	metrics      *observability.Metrics
	logger       *slog.Logger
	clock        func() time.Time
	location     *time.Location
	reminderLead time.Duration
	validate     *validator.Validate
}

const defaultReminderLead = 364 * 24 * time.Hour

func New(st store.Store, opts Options) *Service {
	s := &Service{
		store:        st,
		ledger:       opts.Ledger,
		cache:        opts.Cache,
		dispatcher:   opts.Dispatcher,
		documents:    opts.Documents,
		messenger:    opts.Messenger,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		clock:        opts.Now,
		location:     opts.Location,
		reminderLead: opts.ReminderLead,
		validate:     newValidator(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.ledger == nil {
		s.ledger = ledger.New(s.now)
	}
	if s.cache == nil {
		s.cache = cache.NoopReportCache{}
	}
	if s.dispatcher == nil {
		s.dispatcher = notify.NewDispatcher(s.logger, s.metrics, 0, 0)
	}
	if s.messenger == nil {
		s.messenger = notify.LogMessenger{Logger: s.logger}
	}
	if s.reminderLead <= 0 {
		s.reminderLead = defaultReminderLead
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Second)
}

// dayWindow returns the local calendar day containing t as a UTC range.
func (s *Service) dayWindow(t time.Time) store.Range {
	local := t.In(s.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	return store.Range{From: start.UTC(), To: start.AddDate(0, 0, 1).UTC()}
}

// finish records the outcome of a lifecycle operation and, once it has
// committed, drops cached report figures.
func (s *Service) finish(ctx context.Context, op string, err error) error {
	s.metrics.ObserveOperation(op, outcome(err))
	if err != nil {
		if !isClientError(err) {
			s.logger.Error("operation failed", slog.String("operation", op), slog.Any("error", err))
		}
		return err
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("report cache invalidation failed", slog.String("operation", op), slog.Any("error", err))
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrValidation):
		return "invalid"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrConsistency):
		return "conflict"
	default:
		return "error"
	}
}

func isClientError(err error) bool {
	return errors.Is(err, store.ErrValidation) || errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConsistency)
}
