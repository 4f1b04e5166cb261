package escrow

import (
	"fmt"
	"math"
	"time"

	"github.com/sudo-init-do/agrihub/internal/workitem"
)

// DisputeOutcome is what the dispute resolver hands back.
type DisputeOutcome string

const (
	ResolveRelease DisputeOutcome = "release"
	ResolveRefund  DisputeOutcome = "refund"
	ResolveNone    DisputeOutcome = "none"
)

// QRRef is the payment-collection handle shown after the labourer finishes.
func QRRef(jobID string) string {
	return "QR-" + jobID
}

// MarkCompletedByLabour opens the settlement: the farmer now has to review.
// Marking twice leaves the record unchanged.
func MarkCompletedByLabour(p Payment, now time.Time) (Payment, error) {
	if err := settlementOpen(p, "mark work completed"); err != nil {
		return p, err
	}
	if p.Settlement.WorkCompletedByLabour {
		return p, nil
	}
	out := p.clone()
	out.Settlement.WorkCompletedByLabour = true
	out.Settlement.QRRef = QRRef(p.WorkItemID)
	out.Settlement.NegotiationStatus = SettlementPendingFarmer
	out.record("Labourer marked work completed", now)
	return out, nil
}

// ConfirmSatisfied confirms the pre-existing amount as the final payable.
func ConfirmSatisfied(p Payment, now time.Time) (Payment, error) {
	const action = "confirm satisfaction"
	if err := settlementOpen(p, action); err != nil {
		return p, err
	}
	if p.Settlement.NegotiationStatus != SettlementPendingFarmer {
		return p, settlementGuard(action, p.Settlement)
	}
	out := p.clone()
	total := p.AmountTotal
	out.Settlement.FarmerSatisfaction = Satisfied
	out.Settlement.FinalPayableAmount = &total
	out.Settlement.NegotiationStatus = SettlementAgreed
	out.record("Farmer confirmed satisfaction", now)
	return out, nil
}

// ReviseAmount is the not-satisfied branch: the labourer has to answer.
func ReviseAmount(p Payment, amount float64, reason string, now time.Time) (Payment, error) {
	const action = "revise amount"
	if err := settlementOpen(p, action); err != nil {
		return p, err
	}
	if p.Settlement.NegotiationStatus != SettlementPendingFarmer {
		return p, settlementGuard(action, p.Settlement)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return p, fmt.Errorf("%w: revised amount %v", ErrInvalidAmount, amount)
	}
	out := p.clone()
	out.Settlement.FarmerSatisfaction = NotSatisfied
	out.Settlement.RevisedAmount = &amount
	out.Settlement.RevisedReason = reason
	out.Settlement.FinalPayableAmount = nil
	out.Settlement.NegotiationStatus = SettlementPendingLabour
	out.record(fmt.Sprintf("Farmer proposed revised amount %.2f", amount), now)
	return out, nil
}

func AcceptRevision(p Payment, now time.Time) (Payment, error) {
	const action = "accept revised amount"
	if err := settlementOpen(p, action); err != nil {
		return p, err
	}
	if p.Settlement.NegotiationStatus != SettlementPendingLabour {
		return p, settlementGuard(action, p.Settlement)
	}
	out := p.clone()
	out.Settlement.FinalPayableAmount = copyFloat(p.Settlement.RevisedAmount)
	out.Settlement.NegotiationStatus = SettlementAgreed
	out.record("Labourer accepted revised amount", now)
	return out, nil
}

// RaiseDispute ends the settlement exchange; only ResolveDispute moves it on.
func RaiseDispute(p Payment, reason string, now time.Time) (Payment, error) {
	const action = "raise dispute"
	if err := settlementOpen(p, action); err != nil {
		return p, err
	}
	if p.Settlement.NegotiationStatus != SettlementPendingLabour {
		return p, settlementGuard(action, p.Settlement)
	}
	out := p.clone()
	out.Settlement.DisputeReason = reason
	out.Settlement.NegotiationStatus = SettlementDisputed
	out.record("Labourer raised a dispute", now)
	return out, nil
}

// MarkPaid is the farmer's "scan QR and mark paid" action.
func MarkPaid(p Payment, method string, now time.Time) (Payment, error) {
	const action = "mark paid"
	if p.Flow != FlowLabour {
		return p, fmt.Errorf("%w: %s on %s flow", ErrWrongFlow, action, p.Flow)
	}
	if p.Status == StatusRefunded {
		return p, &TransitionError{Action: action, From: p.Status}
	}
	if p.Settlement.PaymentStatus == Paid {
		return p, nil
	}
	if p.Settlement.NegotiationStatus != SettlementAgreed {
		return p, blockedOnSettlement(action, p.Settlement)
	}
	out := p.clone()
	out.Settlement.PaymentStatus = Paid
	if method != "" {
		out.Method = method
	}
	out.record("Payment collected via "+out.Settlement.QRRef, now)
	return out, nil
}

// ResolveDispute applies the external resolver's decision to a disputed settlement.
func ResolveDispute(p Payment, outcome DisputeOutcome, amount float64, now time.Time) (Payment, error) {
	const action = "resolve dispute"
	if p.Settlement.NegotiationStatus != SettlementDisputed {
		return p, &TransitionError{Action: action, From: p.Status}
	}
	switch outcome {
	case ResolveRelease:
		if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
			return p, fmt.Errorf("%w: resolved amount %v", ErrInvalidAmount, amount)
		}
		out := p.clone()
		out.Settlement.FinalPayableAmount = &amount
		out.Settlement.NegotiationStatus = SettlementAgreed
		out.record(fmt.Sprintf("Dispute resolved, payable amount %.2f", amount), now)
		return out, nil
	case ResolveRefund:
		return MarkRefunded(p, now)
	case ResolveNone:
		out := p.clone()
		out.record("Dispute closed without action", now)
		return out, nil
	}
	return p, fmt.Errorf("unknown dispute outcome %q", outcome)
}

func settlementOpen(p Payment, action string) error {
	if p.Flow != FlowLabour {
		return fmt.Errorf("%w: %s on %s flow", ErrWrongFlow, action, p.Flow)
	}
	if p.Status.Terminal() {
		return &TransitionError{Action: action, From: p.Status}
	}
	return nil
}

// settlementGuard explains why a settlement step is not the current one.
func settlementGuard(action string, s Settlement) error {
	if s.NegotiationStatus == SettlementAgreed {
		return &TransitionError{Action: action, From: Status("settlement_" + string(s.NegotiationStatus))}
	}
	return blockedOnSettlement(action, s)
}

func blockedOnSettlement(action string, s Settlement) *BlockedError {
	switch s.NegotiationStatus {
	case SettlementNotStarted:
		return &BlockedError{Action: action, WaitingOn: workitem.RoleLabourer, Reason: "work not marked completed"}
	case SettlementPendingFarmer:
		return &BlockedError{Action: action, WaitingOn: workitem.RoleFarmer, Reason: "farmer review pending"}
	case SettlementPendingLabour:
		return &BlockedError{Action: action, WaitingOn: workitem.RoleLabourer, Reason: "revised amount awaiting labourer"}
	case SettlementDisputed:
		return &BlockedError{Action: action, Reason: "dispute awaiting resolution"}
	}
	return &BlockedError{Action: action, Reason: "settlement in unexpected state"}
}
