package negotiation

import (
	"time"

	"github.com/sudo-init-do/agrihub/internal/workitem"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAgreed   Status = "agreed"
	StatusRejected Status = "rejected"
)

// Offer is one entry of the bargaining history.
type Offer struct {
	By      workitem.Role `json:"by"`
	Amount  float64       `json:"amount"`
	Message string        `json:"message,omitempty"`
	At      time.Time     `json:"at"`
}

// Negotiation is the price exchange attached to a single work item.
// Rounds counts offers after the initial one, so Rounds == len(History)-1.
type Negotiation struct {
	Key        string    `json:"key"`
	BasePrice  float64   `json:"base_price"`
	History    []Offer   `json:"history"`
	Rounds     int       `json:"rounds"`
	Status     Status    `json:"status"`
	FinalPrice *float64  `json:"final_price,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Version is stamped by the store on every write.
	Version int64 `json:"-"`
}

// Key derives the storage key; jobs and machine requests never collide.
func Key(category workitem.Category, id string) string {
	if category == workitem.CategoryMachine {
		return "machine:" + id
	}
	return "job:" + id
}

// LastOffer returns the most recent history entry.
func (n Negotiation) LastOffer() (Offer, bool) {
	if len(n.History) == 0 {
		return Offer{}, false
	}
	return n.History[len(n.History)-1], true
}

// clone copies the history so callers never share a backing array with the
// record they passed in.
func (n Negotiation) clone() Negotiation {
	out := n
	out.History = append([]Offer(nil), n.History...)
	if n.FinalPrice != nil {
		v := *n.FinalPrice
		out.FinalPrice = &v
	}
	return out
}

type Fairness string

const (
	FairnessLow  Fairness = "low"
	FairnessFair Fairness = "fair"
	FairnessHigh Fairness = "high"
)
