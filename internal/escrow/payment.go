package escrow

import (
	"fmt"
	"math"
	"time"

	"github.com/sudo-init-do/agrihub/internal/negotiation"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

// Policy holds the split fractions.
type Policy struct {
	AdvanceFraction float64
	DepositFraction float64
}

var DefaultPolicy = Policy{
	AdvanceFraction: 0.40,
	DepositFraction: 0.20,
}

func EnsurePayment(existing *Payment, item workitem.WorkItem, counterpartyID string, outcome *negotiation.Negotiation, now time.Time) (Payment, error) {
	return DefaultPolicy.EnsurePayment(existing, item, counterpartyID, outcome, now)
}

// EnsurePayment returns existing unchanged, otherwise creates the record with
// amounts frozen from the agreed price (or the base price when nothing was
// negotiated). An outcome that is still pending or was rejected is refused.
func (pol Policy) EnsurePayment(existing *Payment, item workitem.WorkItem, counterpartyID string, outcome *negotiation.Negotiation, now time.Time) (Payment, error) {
	if existing != nil {
		return existing.clone(), nil
	}
	if outcome != nil {
		switch outcome.Status {
		case negotiation.StatusPending:
			return Payment{}, fmt.Errorf("%w: %s", ErrNegotiationOpen, outcome.Key)
		case negotiation.StatusRejected:
			return Payment{}, fmt.Errorf("%w: %s", ErrNegotiationRejected, outcome.Key)
		}
	}

	price := item.BasePrice
	if outcome != nil && outcome.FinalPrice != nil {
		price = *outcome.FinalPrice
	}
	if counterpartyID == "" {
		counterpartyID = item.Counterparty()
	}

	flow := FlowFor(item.Category)
	p := Payment{
		Key:        Key(flow, item.ID),
		WorkItemID: item.ID,
		Flow:       flow,
		PayerID:    item.RequesterID,
		PayeeID:    counterpartyID,
		Status:     StatusPending,
		Settlement: Settlement{PaymentStatus: Unpaid},
		CreatedAt:  now,
	}

	switch flow {
	case FlowLabour:
		p.AmountTotal = price
		p.AdvanceAmount = math.Round(price * pol.AdvanceFraction)
		p.BalanceAmount = p.AmountTotal - p.AdvanceAmount
		total := p.AmountTotal
		p.Settlement.FinalPayableAmount = &total
	case FlowMachine:
		p.AmountTotal = price * ParseDurationQuantity(item.Duration)
		if item.Deposit != nil && *item.Deposit > 0 {
			p.DepositAmount = *item.Deposit
		} else {
			p.DepositAmount = math.Round(p.AmountTotal * pol.DepositFraction)
		}
	}
	p.record("Escrow created", now)
	return p, nil
}

// MarkAdvancePaid: labour pending -> advance_paid.
func MarkAdvancePaid(p Payment, method string, now time.Time) (Payment, error) {
	if p.Flow != FlowLabour {
		return p, fmt.Errorf("%w: advance payment on %s flow", ErrWrongFlow, p.Flow)
	}
	return transition(p, "mark advance paid", StatusPending, StatusAdvancePaid, method, "Advance paid", now)
}

// MarkWorkStarted: labour advance_paid -> held.
func MarkWorkStarted(p Payment, now time.Time) (Payment, error) {
	if p.Flow != FlowLabour {
		return p, fmt.Errorf("%w: work start on %s flow", ErrWrongFlow, p.Flow)
	}
	return transition(p, "mark work started", StatusAdvancePaid, StatusHeld, "", "Work started, balance held in escrow", now)
}

// MarkMachinePaid: machine pending -> held, rental and deposit together.
func MarkMachinePaid(p Payment, method string, now time.Time) (Payment, error) {
	if p.Flow != FlowMachine {
		return p, fmt.Errorf("%w: machine payment on %s flow", ErrWrongFlow, p.Flow)
	}
	return transition(p, "mark machine paid", StatusPending, StatusHeld, method, "Rental and deposit paid, held in escrow", now)
}

func MarkWorkCompleted(p Payment, now time.Time) (Payment, error) {
	return transition(p, "mark work completed", StatusHeld, StatusCompleted, "", "Work completed", now)
}

// MarkReleased pays out. A labour payment also needs the settlement agreed.
func MarkReleased(p Payment, method string, now time.Time) (Payment, error) {
	label := "Payment released to labourer"
	if p.Flow == FlowMachine {
		label = "Rental released to owner, deposit returned"
	} else if p.Status == StatusCompleted && p.Settlement.NegotiationStatus != SettlementAgreed {
		return p, blockedOnSettlement("release payment", p.Settlement)
	}
	return transition(p, "release", StatusCompleted, StatusReleased, method, label, now)
}

// MarkRefunded is the escape hatch from any non-terminal status.
func MarkRefunded(p Payment, now time.Time) (Payment, error) {
	if p.Status.Terminal() {
		return p, &TransitionError{Action: "refund", From: p.Status}
	}
	out := p.clone()
	out.Status = StatusRefunded
	out.record("Payment refunded", now)
	return out, nil
}

func transition(p Payment, action string, from, to Status, method, label string, now time.Time) (Payment, error) {
	if p.Status != from {
		return p, &TransitionError{Action: action, From: p.Status}
	}
	out := p.clone()
	out.Status = to
	if method != "" {
		out.Method = method
	}
	out.record(label, now)
	return out, nil
}

// CanFinalize gates the job-completion and rating step.
func CanFinalize(p Payment) error {
	switch p.Flow {
	case FlowMachine:
		if p.Status == StatusCompleted || p.Status == StatusReleased {
			return nil
		}
		return &BlockedError{Action: "finalize", WaitingOn: workitem.RoleOwner, Reason: "rental not completed"}
	default:
		if p.Settlement.PaymentStatus == Paid {
			return nil
		}
		return &BlockedError{Action: "finalize", WaitingOn: workitem.RoleFarmer, Reason: "payment not marked paid"}
	}
}
