package negotiation

import "time"

// View is what a client renders for a negotiation at a given moment.
// An expired negotiation displays the base price again; storage is untouched.
type View struct {
	Negotiation
	CurrentPrice    float64  `json:"current_price"`
	Expired         bool     `json:"expired"`
	OpenForCounter  bool     `json:"open_for_counter"`
	RoundsRemaining int      `json:"rounds_remaining"`
	Fairness        Fairness `json:"fairness"`
}

func (p Policy) View(n Negotiation, now time.Time) View {
	v := View{
		Negotiation:    n.clone(),
		Expired:        p.IsExpired(n, now),
		OpenForCounter: p.IsOpenForCounter(n, now),
		Fairness:       p.ClassifyFairness(n.BasePrice),
	}
	if n.Status == StatusPending {
		v.RoundsRemaining = max(p.MaxRounds-n.Rounds, 0)
	}
	switch {
	case n.FinalPrice != nil:
		v.CurrentPrice = *n.FinalPrice
	case v.Expired:
		v.CurrentPrice = n.BasePrice
	default:
		if last, ok := n.LastOffer(); ok {
			v.CurrentPrice = last.Amount
		} else {
			v.CurrentPrice = n.BasePrice
		}
	}
	return v
}
