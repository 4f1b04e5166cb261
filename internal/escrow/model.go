package escrow

import (
	"time"

	"github.com/sudo-init-do/agrihub/internal/workitem"
)

// Flow discriminates the two payment variants sharing one record type.
type Flow string

const (
	FlowLabour  Flow = "labour"
	FlowMachine Flow = "machine"
)

func FlowFor(c workitem.Category) Flow {
	if c == workitem.CategoryMachine {
		return FlowMachine
	}
	return FlowLabour
}

type Status string

const (
	StatusPending     Status = "pending"
	StatusAdvancePaid Status = "advance_paid" // labour only
	StatusHeld        Status = "held"
	StatusCompleted   Status = "completed"
	StatusReleased    Status = "released"
	StatusRefunded    Status = "refunded"
)

func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

type Satisfaction string

const (
	Satisfied    Satisfaction = "satisfied"
	NotSatisfied Satisfaction = "not_satisfied"
)

// SettlementStatus tracks who has to act next in the on-site settlement.
type SettlementStatus string

const (
	SettlementNotStarted    SettlementStatus = ""
	SettlementPendingLabour SettlementStatus = "pending_labour"
	SettlementPendingFarmer SettlementStatus = "pending_farmer"
	SettlementAgreed        SettlementStatus = "agreed"
	SettlementDisputed      SettlementStatus = "disputed"
)

type CollectionStatus string

const (
	Unpaid CollectionStatus = "unpaid"
	Paid   CollectionStatus = "paid"
)

// Settlement is the on-site completion and satisfaction exchange of a labour job.
type Settlement struct {
	WorkCompletedByLabour bool             `json:"work_completed_by_labour"`
	QRRef                 string           `json:"qr_ref,omitempty"`
	FarmerSatisfaction    Satisfaction     `json:"farmer_satisfaction,omitempty"`
	FinalPayableAmount    *float64         `json:"final_payable_amount,omitempty"`
	RevisedAmount         *float64         `json:"revised_amount,omitempty"`
	RevisedReason         string           `json:"revised_reason,omitempty"`
	DisputeReason         string           `json:"dispute_reason,omitempty"`
	NegotiationStatus     SettlementStatus `json:"negotiation_status,omitempty"`
	PaymentStatus         CollectionStatus `json:"payment_status"`
}

// Entry is one audit line.
type Entry struct {
	At    time.Time `json:"at"`
	Label string    `json:"label"`
}

// Payment is the escrow record of one work item.
type Payment struct {
	Key        string `json:"key"`
	WorkItemID string `json:"work_item_id"`
	Flow       Flow   `json:"flow"`
	PayerID    string `json:"payer_id"`
	PayeeID    string `json:"payee_id"`

	AmountTotal   float64 `json:"amount_total"`
	AdvanceAmount float64 `json:"advance_amount,omitempty"` // labour
	BalanceAmount float64 `json:"balance_amount,omitempty"` // labour
	DepositAmount float64 `json:"deposit_amount,omitempty"` // machine

	Status     Status     `json:"status"`
	Method     string     `json:"method,omitempty"`
	History    []Entry    `json:"history"` // newest first
	Settlement Settlement `json:"settlement"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Version int64 `json:"-"`
}

// Key derives the storage key of a work item's payment.
func Key(flow Flow, workItemID string) string {
	if flow == FlowMachine {
		return "PAY-M-" + workItemID
	}
	return "PAY-L-" + workItemID
}

func (p Payment) clone() Payment {
	out := p
	out.History = append([]Entry(nil), p.History...)
	out.Settlement.FinalPayableAmount = copyFloat(p.Settlement.FinalPayableAmount)
	out.Settlement.RevisedAmount = copyFloat(p.Settlement.RevisedAmount)
	return out
}

// record prepends an audit entry and refreshes UpdatedAt.
func (p *Payment) record(label string, now time.Time) {
	p.History = append([]Entry{{At: now, Label: label}}, p.History...)
	p.UpdatedAt = now
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
