package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/alerts"
	"github.com/sudo-init-do/agrihub/internal/escrow"
	"github.com/sudo-init-do/agrihub/internal/messaging"
	"github.com/sudo-init-do/agrihub/internal/negotiation"
	"github.com/sudo-init-do/agrihub/internal/store"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

// EnsurePayment creates the escrow record of a work item once its negotiation
// is closed. Later calls return the stored record.
func (s *Service) EnsurePayment(ctx context.Context, userID string, category workitem.Category, id string) (escrow.Payment, error) {
	item, _, err := s.participant(ctx, userID, category, id)
	if err != nil {
		return escrow.Payment{}, err
	}

	var outcome *negotiation.Negotiation
	n, _, err := load[negotiation.Negotiation](ctx, s, negotiation.Key(category, id))
	switch {
	case err == nil:
		outcome = &n
	case !errors.Is(err, ErrNotFound):
		return escrow.Payment{}, err
	}

	key := escrow.Key(escrow.FlowFor(category), id)
	var created bool
	p, version, err := update(ctx, s, key, func(cur *escrow.Payment) (escrow.Payment, bool, error) {
		next, err := s.payment.EnsurePayment(cur, *item, item.Counterparty(), outcome, s.now())
		created = cur == nil && err == nil
		return next, created, err
	})
	if err != nil {
		return escrow.Payment{}, fmt.Errorf("ensure payment %s: %w", key, err)
	}
	p.Version = version

	if created {
		s.log.WithFields(logrus.Fields{
			"work_item": id,
			"category":  category,
			"status":    p.Status,
			"amount":    p.AmountTotal,
		}).Info("Escrow created")
		s.broadcast(item, messaging.EventPaymentUpdated, p)
	}
	return p, nil
}

func (s *Service) GetPayment(ctx context.Context, userID string, category workitem.Category, id string) (escrow.Payment, error) {
	if _, _, err := s.participant(ctx, userID, category, id); err != nil {
		return escrow.Payment{}, err
	}
	p, version, err := load[escrow.Payment](ctx, s, escrow.Key(escrow.FlowFor(category), id))
	if err != nil {
		return escrow.Payment{}, err
	}
	p.Version = version
	return p, nil
}

// paymentAction describes one payment or settlement step.
type paymentAction struct {
	name  string
	roles []workitem.Role
	apply func(p escrow.Payment, now time.Time) (escrow.Payment, error)
	// after runs once the changed record is stored
	after func(ctx context.Context, item *workitem.WorkItem, p escrow.Payment)
}

// transact applies a to the stored payment. The unchanged record is returned
// alongside guard errors so callers can show the current state.
func (s *Service) transact(ctx context.Context, userID string, category workitem.Category, id string, a paymentAction) (escrow.Payment, error) {
	item, role, err := s.participant(ctx, userID, category, id)
	if err != nil {
		return escrow.Payment{}, err
	}
	if err := allow(role, a.roles...); err != nil {
		return escrow.Payment{}, err
	}
	return s.applyPayment(ctx, item, a, logrus.Fields{"by": role})
}

func (s *Service) applyPayment(ctx context.Context, item *workitem.WorkItem, a paymentAction, fields logrus.Fields) (escrow.Payment, error) {
	flow := escrow.FlowFor(item.Category)
	key := escrow.Key(flow, item.ID)

	var changed bool
	p, version, err := update(ctx, s, key, func(cur *escrow.Payment) (escrow.Payment, bool, error) {
		if cur == nil {
			return escrow.Payment{}, false, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		next, err := a.apply(*cur, s.now())
		changed = err == nil && len(next.History) != len(cur.History)
		return next, changed, err
	})
	p.Version = version
	s.metrics.Payment(string(flow), a.name, paymentResult(err, changed))
	if err != nil {
		return p, err
	}
	if !changed {
		return p, nil
	}

	s.log.WithFields(fields).WithFields(logrus.Fields{
		"work_item": item.ID,
		"category":  item.Category,
		"action":    a.name,
		"status":    p.Status,
		"amount":    payable(p),
	}).Info("Payment updated")
	if a.after != nil {
		a.after(ctx, item, p)
	}
	s.broadcast(item, messaging.EventPaymentUpdated, p)
	return p, nil
}

func paymentResult(err error, changed bool) string {
	var blocked *escrow.BlockedError
	switch {
	case errors.As(err, &blocked):
		return "blocked"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case err != nil:
		return "invalid"
	case !changed:
		return "noop"
	}
	return "ok"
}

// payable is what the payee receives on release.
func payable(p escrow.Payment) float64 {
	if p.Settlement.FinalPayableAmount != nil {
		return *p.Settlement.FinalPayableAmount
	}
	return p.AmountTotal
}

func (s *Service) MarkAdvancePaid(ctx context.Context, userID string, category workitem.Category, id, method string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "mark_advance_paid",
		roles: []workitem.Role{workitem.RoleFarmer},
		apply: func(p escrow.Payment, now time.Time) (escrow.Payment, error) {
			return escrow.MarkAdvancePaid(p, method, now)
		},
	})
}

func (s *Service) MarkWorkStarted(ctx context.Context, userID string, category workitem.Category, id string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "mark_work_started",
		roles: []workitem.Role{workitem.RoleFarmer, workitem.RoleLabourer},
		apply: escrow.MarkWorkStarted,
	})
}

func (s *Service) MarkMachinePaid(ctx context.Context, userID string, category workitem.Category, id, method string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "mark_machine_paid",
		roles: []workitem.Role{workitem.RoleFarmer},
		apply: func(p escrow.Payment, now time.Time) (escrow.Payment, error) {
			return escrow.MarkMachinePaid(p, method, now)
		},
	})
}

func (s *Service) MarkWorkCompleted(ctx context.Context, userID string, category workitem.Category, id string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "mark_work_completed",
		roles: []workitem.Role{workitem.RoleFarmer, workitem.RoleLabourer, workitem.RoleOwner},
		apply: escrow.MarkWorkCompleted,
		after: func(ctx context.Context, item *workitem.WorkItem, p escrow.Payment) {
			s.notify(ctx, alerts.Event{
				Type: alerts.TaskWorkCompleted, Reference: p.Key, WorkItemID: item.ID, Category: string(item.Category),
				RecipientID: p.PayerID,
			})
		},
	})
}

// MarkReleased pays the payee. Only the payer releases.
func (s *Service) MarkReleased(ctx context.Context, userID string, category workitem.Category, id, method string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "release",
		roles: []workitem.Role{workitem.RoleFarmer},
		apply: func(p escrow.Payment, now time.Time) (escrow.Payment, error) {
			return escrow.MarkReleased(p, method, now)
		},
		after: func(ctx context.Context, item *workitem.WorkItem, p escrow.Payment) {
			s.notify(ctx, alerts.Event{
				Type: alerts.TaskPaymentReleased, Reference: p.Key, WorkItemID: item.ID, Category: string(item.Category),
				RecipientID: p.PayeeID, ActorID: userID, Amount: payable(p),
			})
		},
	})
}

// MarkRefunded cancels the escrow. Either participant may call it.
func (s *Service) MarkRefunded(ctx context.Context, userID string, category workitem.Category, id string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "refund",
		roles: []workitem.Role{workitem.RoleFarmer, workitem.RoleLabourer, workitem.RoleOwner},
		apply: escrow.MarkRefunded,
		after: func(ctx context.Context, item *workitem.WorkItem, p escrow.Payment) {
			s.notify(ctx, alerts.Event{
				Type: alerts.TaskPaymentRefunded, Reference: p.Key, WorkItemID: item.ID, Category: string(item.Category),
				RecipientID: other(item, userID), ActorID: userID, Amount: p.AmountTotal,
			})
		},
	})
}
