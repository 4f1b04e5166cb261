package marketplace

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/alerts"
	"github.com/sudo-init-do/agrihub/internal/messaging"
	"github.com/sudo-init-do/agrihub/internal/negotiation"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

// NegotiationResult is the outcome of a negotiation action. Applied is false
// when the action was a no-op; View then shows the unchanged record.
type NegotiationResult struct {
	negotiation.View
	Applied bool `json:"applied"`
}

// GetNegotiation returns the display view, creating the record with the
// opening offer on first read.
func (s *Service) GetNegotiation(ctx context.Context, userID string, category workitem.Category, id string) (negotiation.View, error) {
	item, _, err := s.participant(ctx, userID, category, id)
	if err != nil {
		return negotiation.View{}, err
	}
	n, err := s.ensureNegotiation(ctx, item)
	if err != nil {
		return negotiation.View{}, err
	}
	return s.negotiation.View(n, s.now()), nil
}

func (s *Service) ensureNegotiation(ctx context.Context, item *workitem.WorkItem) (negotiation.Negotiation, error) {
	key := negotiation.Key(item.Category, item.ID)
	n, version, err := update(ctx, s, key, func(cur *negotiation.Negotiation) (negotiation.Negotiation, bool, error) {
		return negotiation.GetOrCreate(cur, key, item.BasePrice, item.Category.Opener(), s.now()), cur == nil, nil
	})
	if err != nil {
		return negotiation.Negotiation{}, fmt.Errorf("load negotiation %s: %w", key, err)
	}
	n.Version = version
	return n, nil
}

// CounterOffer appends an offer by the caller. Expired or exhausted
// negotiations are left as they are.
func (s *Service) CounterOffer(ctx context.Context, userID string, category workitem.Category, id string, amount float64, reason string) (NegotiationResult, error) {
	return s.negotiate(ctx, userID, category, id, "counter", func(n negotiation.Negotiation, role workitem.Role) (negotiation.Negotiation, bool) {
		if !s.negotiation.IsOpenForCounter(n, s.now()) {
			return n, false
		}
		return s.negotiation.CounterOffer(n, role, amount, reason, s.now())
	})
}

// Accept locks the displayed price and publishes it as the work item's price.
// After expiry that is the base price.
func (s *Service) Accept(ctx context.Context, userID string, category workitem.Category, id string) (NegotiationResult, error) {
	return s.negotiate(ctx, userID, category, id, "accept", func(n negotiation.Negotiation, role workitem.Role) (negotiation.Negotiation, bool) {
		return s.negotiation.Accept(n, role, s.now())
	})
}

func (s *Service) Reject(ctx context.Context, userID string, category workitem.Category, id string) (NegotiationResult, error) {
	return s.negotiate(ctx, userID, category, id, "reject", func(n negotiation.Negotiation, _ workitem.Role) (negotiation.Negotiation, bool) {
		return negotiation.Reject(n, s.now())
	})
}

func (s *Service) negotiate(ctx context.Context, userID string, category workitem.Category, id, action string,
	apply func(negotiation.Negotiation, workitem.Role) (negotiation.Negotiation, bool)) (NegotiationResult, error) {
	item, role, err := s.participant(ctx, userID, category, id)
	if err != nil {
		return NegotiationResult{}, err
	}

	key := negotiation.Key(category, id)
	var applied bool
	n, version, err := update(ctx, s, key, func(cur *negotiation.Negotiation) (negotiation.Negotiation, bool, error) {
		base := negotiation.GetOrCreate(cur, key, item.BasePrice, category.Opener(), s.now())
		next, ok := apply(base, role)
		applied = ok
		return next, ok || cur == nil, nil
	})
	if err != nil {
		return NegotiationResult{}, fmt.Errorf("%s negotiation %s: %w", action, key, err)
	}
	n.Version = version
	s.metrics.Negotiation(action, applied)

	result := NegotiationResult{View: s.negotiation.View(n, s.now()), Applied: applied}
	if !applied {
		return result, nil
	}

	log := s.log.WithFields(logrus.Fields{
		"work_item": id,
		"category":  category,
		"status":    n.Status,
		"rounds":    n.Rounds,
		"by":        role,
	})
	switch n.Status {
	case negotiation.StatusAgreed:
		// The listing must advertise what was agreed
		if err := s.items.UpdatePrice(ctx, category, id, *n.FinalPrice); err != nil {
			return result, fmt.Errorf("publish agreed price of %s %s: %w", category, id, err)
		}
		log.WithField("amount", *n.FinalPrice).Info("Negotiation agreed")
		s.notify(ctx, alerts.Event{
			Type: alerts.TaskNegotiationAgreed, Reference: key, WorkItemID: id, Category: string(category),
			RecipientID: other(item, userID), ActorID: userID, Amount: *n.FinalPrice,
		})
	case negotiation.StatusRejected:
		log.Info("Negotiation rejected")
		s.notify(ctx, alerts.Event{
			Type: alerts.TaskNegotiationRejected, Reference: key, WorkItemID: id, Category: string(category),
			RecipientID: other(item, userID), ActorID: userID, Amount: n.BasePrice,
		})
	default:
		last, _ := n.LastOffer()
		log.WithField("amount", last.Amount).Info("Counter offer recorded")
	}
	s.broadcast(item, messaging.EventNegotiationUpdated, result.View)
	return result, nil
}
