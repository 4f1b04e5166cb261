package marketplace

import (
	"context"
	"time"

	"github.com/sudo-init-do/agrihub/internal/alerts"
	"github.com/sudo-init-do/agrihub/internal/escrow"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

// MarkCompletedByLabour starts the on-site settlement and hands out the QR reference.
func (s *Service) MarkCompletedByLabour(ctx context.Context, userID string, category workitem.Category, id string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "mark_completed_by_labour",
		roles: []workitem.Role{workitem.RoleLabourer},
		apply: escrow.MarkCompletedByLabour,
		after: func(ctx context.Context, item *workitem.WorkItem, p escrow.Payment) {
			s.notify(ctx, alerts.Event{
				Type: alerts.TaskWorkCompleted, Reference: p.Key, WorkItemID: item.ID, Category: string(item.Category),
				RecipientID: p.PayerID, ActorID: userID,
			})
		},
	})
}

func (s *Service) ConfirmSatisfied(ctx context.Context, userID string, category workitem.Category, id string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "confirm_satisfied",
		roles: []workitem.Role{workitem.RoleFarmer},
		apply: escrow.ConfirmSatisfied,
	})
}

func (s *Service) ReviseAmount(ctx context.Context, userID string, category workitem.Category, id string, amount float64, reason string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "revise_amount",
		roles: []workitem.Role{workitem.RoleFarmer},
		apply: func(p escrow.Payment, now time.Time) (escrow.Payment, error) {
			return escrow.ReviseAmount(p, amount, reason, now)
		},
		after: func(ctx context.Context, item *workitem.WorkItem, p escrow.Payment) {
			s.notify(ctx, alerts.Event{
				Type: alerts.TaskAmountRevised, Reference: p.Key, WorkItemID: item.ID, Category: string(item.Category),
				RecipientID: p.PayeeID, ActorID: userID, Amount: amount, Reason: reason,
			})
		},
	})
}

func (s *Service) AcceptRevision(ctx context.Context, userID string, category workitem.Category, id string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "accept_revision",
		roles: []workitem.Role{workitem.RoleLabourer},
		apply: escrow.AcceptRevision,
	})
}

// MarkPaid records the farmer's QR collection of the agreed amount.
func (s *Service) MarkPaid(ctx context.Context, userID string, category workitem.Category, id, method string) (escrow.Payment, error) {
	return s.transact(ctx, userID, category, id, paymentAction{
		name:  "mark_paid",
		roles: []workitem.Role{workitem.RoleFarmer},
		apply: func(p escrow.Payment, now time.Time) (escrow.Payment, error) {
			return escrow.MarkPaid(p, method, now)
		},
		after: func(ctx context.Context, item *workitem.WorkItem, p escrow.Payment) {
			s.notify(ctx, alerts.Event{
				Type: alerts.TaskPaymentCollected, Reference: p.Key, WorkItemID: item.ID, Category: string(item.Category),
				RecipientID: p.PayeeID, ActorID: userID, Amount: payable(p),
			})
		},
	})
}
