package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/alerts"
	"github.com/sudo-init-do/agrihub/internal/escrow"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

// Dispute is the hand-off record of a settlement the parties could not agree on.
type Dispute struct {
	ID         string                `json:"id"`
	WorkItemID string                `json:"work_item_id"`
	Category   workitem.Category     `json:"category"`
	PaymentKey string                `json:"payment_key"`
	RaisedBy   string                `json:"raised_by"`
	Reason     string                `json:"reason"`
	Status     DisputeStatus         `json:"status"`
	Resolution escrow.DisputeOutcome `json:"resolution,omitempty"`
	Amount     *float64              `json:"amount,omitempty"`
	Note       string                `json:"note,omitempty"`
	ResolvedBy string                `json:"resolved_by,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	ResolvedAt *time.Time            `json:"resolved_at,omitempty"`
}

func DisputeKey(jobID string) string {
	return "DISPUTE-" + jobID
}

// RaiseDispute is the labourer's answer to a revised amount they do not accept.
// The dispute record is written before the settlement is frozen, so a
// disputed payment always has a record admins can find. Raising again after a
// partial failure reuses the open record.
func (s *Service) RaiseDispute(ctx context.Context, userID string, category workitem.Category, id, reason string) (escrow.Payment, *Dispute, error) {
	item, role, err := s.participant(ctx, userID, category, id)
	if err != nil {
		return escrow.Payment{}, nil, err
	}
	if err := allow(role, workitem.RoleLabourer); err != nil {
		return escrow.Payment{}, nil, err
	}

	payKey := escrow.Key(escrow.FlowFor(category), id)
	cur, version, err := load[escrow.Payment](ctx, s, payKey)
	if err != nil {
		return escrow.Payment{}, nil, err
	}
	cur.Version = version
	if !disputed(cur) {
		if _, err := escrow.RaiseDispute(cur, reason, s.now()); err != nil {
			return cur, nil, err
		}
	}

	key := DisputeKey(id)
	d, _, err := update(ctx, s, key, func(rec *Dispute) (Dispute, bool, error) {
		if rec != nil && rec.Status == DisputeOpen {
			return *rec, false, nil
		}
		return s.newDispute(category, id, payKey, userID, reason), true, nil
	})
	if err != nil {
		return cur, nil, fmt.Errorf("open dispute %s: %w", key, err)
	}

	p, err := s.applyPayment(ctx, item, paymentAction{
		name: "raise_dispute",
		apply: func(p escrow.Payment, now time.Time) (escrow.Payment, error) {
			if disputed(p) {
				return p, nil
			}
			return escrow.RaiseDispute(p, reason, now)
		},
		after: func(ctx context.Context, _ *workitem.WorkItem, p escrow.Payment) {
			// Admins pick disputes up from the log stream and the resolve endpoint
			s.log.WithFields(logrus.Fields{"work_item": id, "dispute": d.ID, "reason": reason}).Warn("Dispute awaiting resolution")
			s.notify(ctx, alerts.Event{
				Type: alerts.TaskDisputeRaised, Reference: key, WorkItemID: id, Category: string(category),
				RecipientID: p.PayerID, ActorID: userID, Reason: reason,
			})
		},
	}, logrus.Fields{"by": role})
	return p, &d, err
}

func disputed(p escrow.Payment) bool {
	return p.Settlement.NegotiationStatus == escrow.SettlementDisputed
}

func (s *Service) newDispute(category workitem.Category, id, paymentKey, raisedBy, reason string) Dispute {
	return Dispute{
		ID:         uuid.New().String(),
		WorkItemID: id,
		Category:   category,
		PaymentKey: paymentKey,
		RaisedBy:   raisedBy,
		Reason:     reason,
		Status:     DisputeOpen,
		CreatedAt:  s.now(),
	}
}

func (s *Service) GetDispute(ctx context.Context, userID string, category workitem.Category, id string) (Dispute, error) {
	if _, _, err := s.participant(ctx, userID, category, id); err != nil {
		return Dispute{}, err
	}
	d, _, err := load[Dispute](ctx, s, DisputeKey(id))
	return d, err
}

// ResolveDispute applies an admin decision to the disputed payment. A release
// or refund closes the dispute record; a decision to take no action keeps it
// open with the admin's note. amount is only used by a release.
func (s *Service) ResolveDispute(ctx context.Context, adminID string, category workitem.Category, id string, outcome escrow.DisputeOutcome, amount float64, note string) (escrow.Payment, Dispute, error) {
	item, err := s.items.Get(ctx, category, id)
	if err != nil {
		return escrow.Payment{}, Dispute{}, err
	}

	p, err := s.applyPayment(ctx, item, paymentAction{
		name: "resolve_dispute",
		apply: func(p escrow.Payment, now time.Time) (escrow.Payment, error) {
			return escrow.ResolveDispute(p, outcome, amount, now)
		},
		after: func(ctx context.Context, item *workitem.WorkItem, p escrow.Payment) {
			for _, recipient := range []string{p.PayerID, p.PayeeID} {
				s.notify(ctx, alerts.Event{
					Type: alerts.TaskDisputeResolved, Reference: DisputeKey(id), WorkItemID: id, Category: string(category),
					RecipientID: recipient, ActorID: adminID, Amount: payable(p), Reason: string(outcome),
				})
			}
		},
	}, logrus.Fields{"by": "admin", "admin_id": adminID})
	if err != nil {
		return p, Dispute{}, err
	}

	key := DisputeKey(id)
	d, _, err := update(ctx, s, key, func(cur *Dispute) (Dispute, bool, error) {
		var next Dispute
		switch {
		case cur == nil:
			// Payments disputed before their record was stored
			next = s.newDispute(category, id, p.Key, p.PayeeID, p.Settlement.DisputeReason)
		case cur.Status == DisputeResolved:
			return *cur, false, nil
		default:
			next = *cur
		}
		next.Note = appendNote(next.Note, note)
		if outcome == escrow.ResolveNone {
			return next, cur == nil || next.Note != cur.Note, nil
		}
		now := s.now()
		next.Status = DisputeResolved
		next.Resolution = outcome
		next.ResolvedBy = adminID
		next.ResolvedAt = &now
		if outcome == escrow.ResolveRelease {
			next.Amount = &amount
		}
		return next, true, nil
	})
	if err != nil {
		return p, Dispute{}, fmt.Errorf("close dispute %s: %w", key, err)
	}
	return p, d, nil
}

func appendNote(notes, note string) string {
	switch {
	case note == "":
		return notes
	case notes == "":
		return note
	}
	return notes + "\n" + note
}
