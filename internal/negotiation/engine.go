package negotiation

import (
	"math"
	"time"

	"github.com/sudo-init-do/agrihub/internal/workitem"
)

const initialOfferMessage = "Initial offer"

// Policy holds the protocol constants.
type Policy struct {
	MaxRounds    int
	ExpiryWindow time.Duration
	FairLow      float64
	FairHigh     float64
}

var DefaultPolicy = Policy{
	MaxRounds:    3,
	ExpiryWindow: 6 * time.Hour,
	FairLow:      600,
	FairHigh:     800,
}

// GetOrCreate returns existing untouched, or synthesizes a record whose only
// history entry is the base-price offer made by the opening party.
func GetOrCreate(existing *Negotiation, key string, basePrice float64, by workitem.Role, now time.Time) Negotiation {
	if existing != nil {
		return existing.clone()
	}
	return Negotiation{
		Key:       key,
		BasePrice: basePrice,
		History:   []Offer{{By: by, Amount: basePrice, Message: initialOfferMessage, At: now}},
		Rounds:    0,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func CounterOffer(n Negotiation, by workitem.Role, amount float64, reason string, now time.Time) (Negotiation, bool) {
	return DefaultPolicy.CounterOffer(n, by, amount, reason, now)
}

// CounterOffer appends an offer. It is a no-op unless the negotiation is
// pending, below the round cap and the amount is a usable number. Matching the
// previous amount does not accept.
func (p Policy) CounterOffer(n Negotiation, by workitem.Role, amount float64, reason string, now time.Time) (Negotiation, bool) {
	if n.Status != StatusPending || n.Rounds >= p.MaxRounds || !validAmount(amount) {
		return n, false
	}
	out := n.clone()
	out.History = append(out.History, Offer{By: by, Amount: amount, Message: reason, At: now})
	out.Rounds++
	out.UpdatedAt = now
	return out, true
}

const restoredMessage = "Restored to base price"

// Accept locks in the price the parties currently see. An expired
// negotiation has fallen back to the base price, so the base price is
// appended as the last offer before it is locked in.
func (p Policy) Accept(n Negotiation, by workitem.Role, now time.Time) (Negotiation, bool) {
	if !p.IsExpired(n, now) {
		return Accept(n, now)
	}
	out := n.clone()
	out.History = append(out.History, Offer{By: by, Amount: n.BasePrice, Message: restoredMessage, At: now})
	return Accept(out, now)
}

// Accept locks in the last offered amount. Either party may call it.
func Accept(n Negotiation, now time.Time) (Negotiation, bool) {
	last, ok := n.LastOffer()
	if !ok || n.Status != StatusPending {
		return n, false
	}
	out := n.clone()
	price := last.Amount
	out.FinalPrice = &price
	out.Status = StatusAgreed
	out.UpdatedAt = now
	return out, true
}

func Reject(n Negotiation, now time.Time) (Negotiation, bool) {
	if n.Status != StatusPending {
		return n, false
	}
	out := n.clone()
	out.Status = StatusRejected
	out.UpdatedAt = now
	return out, true
}

func IsExpired(n Negotiation, now time.Time) bool {
	return DefaultPolicy.IsExpired(n, now)
}

// IsExpired classifies a stale pending negotiation. It never mutates the record.
func (p Policy) IsExpired(n Negotiation, now time.Time) bool {
	return n.Status == StatusPending && now.Sub(n.UpdatedAt) > p.ExpiryWindow
}

func IsOpenForCounter(n Negotiation, now time.Time) bool {
	return DefaultPolicy.IsOpenForCounter(n, now)
}

func (p Policy) IsOpenForCounter(n Negotiation, now time.Time) bool {
	return n.Status == StatusPending && n.Rounds < p.MaxRounds && !p.IsExpired(n, now)
}

func ClassifyFairness(basePrice float64) Fairness {
	return DefaultPolicy.ClassifyFairness(basePrice)
}

// ClassifyFairness is a UI hint derived from the original base price only.
func (p Policy) ClassifyFairness(basePrice float64) Fairness {
	switch {
	case basePrice < p.FairLow:
		return FairnessLow
	case basePrice > p.FairHigh:
		return FairnessHigh
	}
	return FairnessFair
}

func validAmount(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
