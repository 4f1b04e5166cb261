package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/alerts"
	"github.com/sudo-init-do/agrihub/internal/escrow"
	"github.com/sudo-init-do/agrihub/internal/logger"
	"github.com/sudo-init-do/agrihub/internal/messaging"
	"github.com/sudo-init-do/agrihub/internal/metrics"
	"github.com/sudo-init-do/agrihub/internal/negotiation"
	"github.com/sudo-init-do/agrihub/internal/store"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

var (
	ErrNotFound      = errors.New("nothing to update")
	ErrForbidden     = errors.New("not a participant in this work item")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrAlreadyRated  = errors.New("work item already rated")
)

// Service runs negotiation and payment actions against stored records.
type Service struct {
	store    store.Store
	items    workitem.Source
	notifier alerts.Notifier
	hub      messaging.Broadcaster
	metrics  *metrics.Metrics
	log      *logrus.Entry

	negotiation negotiation.Policy
	payment     escrow.Policy
	retries     uint64
	retryWait   time.Duration
	now         func() time.Time
}

type Option func(*Service)

func WithNotifier(n alerts.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithBroadcaster(b messaging.Broadcaster) Option {
	return func(s *Service) { s.hub = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNegotiationPolicy(p negotiation.Policy) Option {
	return func(s *Service) { s.negotiation = p }
}

func WithPaymentPolicy(p escrow.Policy) Option {
	return func(s *Service) { s.payment = p }
}

// WithConflictRetries sets how many times a write that lost a version race is
// recomputed, and the first wait between attempts.
func WithConflictRetries(n uint64, wait time.Duration) Option {
	return func(s *Service) {
		s.retries = n
		s.retryWait = wait
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, items workitem.Source, opts ...Option) *Service {
	s := &Service{
		store:       st,
		items:       items,
		notifier:    alerts.Nop{},
		log:         logger.NewSublogger("marketplace"),
		negotiation: negotiation.DefaultPolicy,
		payment:     escrow.DefaultPolicy,
		retries:     5,
		retryWait:   20 * time.Millisecond,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// participant loads the work item and the role userID plays on it.
func (s *Service) participant(ctx context.Context, userID string, category workitem.Category, id string) (*workitem.WorkItem, workitem.Role, error) {
	item, err := s.items.Get(ctx, category, id)
	if err != nil {
		if errors.Is(err, workitem.ErrNotFound) {
			return nil, "", fmt.Errorf("%s %s: %w", category, id, workitem.ErrNotFound)
		}
		return nil, "", err
	}
	role, ok := item.RoleOf(userID)
	if !ok || !category.Allows(role) {
		return nil, "", ErrForbidden
	}
	return item, role, nil
}

// allow checks that role is one of allowed.
func allow(role workitem.Role, allowed ...workitem.Role) error {
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not do this", ErrForbidden, role)
}

// update reads key, hands the decoded record (nil when absent) to apply and
// writes the result back when apply reports a change. A lost version race
// re-runs the whole read-apply-write cycle. It returns the record as stored
// (or as returned by apply when nothing was written) and its version.
func update[T any](ctx context.Context, s *Service, key string, apply func(cur *T) (T, bool, error)) (T, int64, error) {
	var (
		out     T
		version int64
	)
	op := func() error {
		rec, err := s.store.Get(ctx, key)
		var cur *T
		switch {
		case errors.Is(err, store.ErrNotFound):
			rec = store.Record{Key: key}
		case err != nil:
			return backoff.Permanent(err)
		default:
			cur = new(T)
			if err := json.Unmarshal(rec.Data, cur); err != nil {
				return backoff.Permanent(fmt.Errorf("decode %s: %w", key, err))
			}
		}

		next, changed, err := apply(cur)
		out, version = next, rec.Version
		if err != nil {
			return backoff.Permanent(err)
		}
		if !changed {
			return nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("encode %s: %w", key, err))
		}
		v, err := s.store.Put(ctx, key, data, rec.Version)
		if errors.Is(err, store.ErrConflict) {
			s.metrics.Conflict()
			s.log.WithField("key", key).Debug("Version conflict, recomputing")
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		version = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryWait
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, s.retries), ctx))
	return out, version, err
}

// load reads and decodes key; a missing record yields ErrNotFound.
func load[T any](ctx context.Context, s *Service, key string) (T, int64, error) {
	var out T
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return out, 0, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return out, 0, err
	}
	if err := json.Unmarshal(rec.Data, &out); err != nil {
		return out, 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, rec.Version, nil
}

// notify sends best-effort; the change it reports is already stored.
func (s *Service) notify(ctx context.Context, e alerts.Event) {
	if e.RecipientID == "" {
		return
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	if err := s.notifier.Notify(ctx, e); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"task": e.Type, "reference": e.Reference}).Warn("Failed to send notification")
	}
}

func (s *Service) broadcast(item *workitem.WorkItem, eventType string, data interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(item.Category, item.ID, eventType, data)
}

// other returns the participant that is not userID.
func other(item *workitem.WorkItem, userID string) string {
	if userID == item.RequesterID {
		return item.FulfillerID
	}
	return item.RequesterID
}
