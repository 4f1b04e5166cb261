package alerts

import (
	"fmt"
	"time"
)

// Task type constants
const (
	TaskNegotiationAgreed   = "notify:negotiation_agreed"
	TaskNegotiationRejected = "notify:negotiation_rejected"
	TaskWorkCompleted       = "notify:work_completed"
	TaskAmountRevised       = "notify:amount_revised"
	TaskPaymentReleased     = "notify:payment_released"
	TaskPaymentRefunded     = "notify:payment_refunded"
	TaskPaymentCollected    = "notify:payment_collected"
	TaskDisputeRaised       = "notify:dispute_raised"
	TaskDisputeResolved     = "notify:dispute_resolved"
)

// Event is the payload of every notification task.
type Event struct {
	Type        string    `json:"type"`
	Reference   string    `json:"reference"` // negotiation or payment key
	WorkItemID  string    `json:"work_item_id"`
	Category    string    `json:"category"`
	RecipientID string    `json:"recipient_id"`
	ActorID     string    `json:"actor_id,omitempty"`
	Amount      float64   `json:"amount,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// Envelope is the rendered text of an event
type Envelope struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (e Event) Envelope() Envelope {
	switch e.Type {
	case TaskNegotiationAgreed:
		return Envelope{"Price agreed", fmt.Sprintf("The price for %s %s was agreed at %.2f.", e.Category, e.WorkItemID, e.Amount)}
	case TaskNegotiationRejected:
		return Envelope{"Negotiation closed", fmt.Sprintf("The negotiation for %s %s was rejected. The listed price of %.2f stands.", e.Category, e.WorkItemID, e.Amount)}
	case TaskWorkCompleted:
		return Envelope{"Work completed", fmt.Sprintf("Work on %s %s was marked complete. Please review it.", e.Category, e.WorkItemID)}
	case TaskAmountRevised:
		return Envelope{"Amount revised", fmt.Sprintf("The farmer proposed %.2f for %s %s: %s", e.Amount, e.Category, e.WorkItemID, e.Reason)}
	case TaskPaymentReleased:
		return Envelope{"Payment released", fmt.Sprintf("%.2f was released to you for %s %s.", e.Amount, e.Category, e.WorkItemID)}
	case TaskPaymentRefunded:
		return Envelope{"Payment refunded", fmt.Sprintf("The escrow for %s %s was refunded.", e.Category, e.WorkItemID)}
	case TaskPaymentCollected:
		return Envelope{"Payment collected", fmt.Sprintf("%.2f was collected for %s %s.", e.Amount, e.Category, e.WorkItemID)}
	case TaskDisputeRaised:
		return Envelope{"Dispute raised", fmt.Sprintf("A dispute was raised on %s %s: %s", e.Category, e.WorkItemID, e.Reason)}
	case TaskDisputeResolved:
		return Envelope{"Dispute resolved", fmt.Sprintf("The dispute on %s %s was resolved: %s", e.Category, e.WorkItemID, e.Reason)}
	}
	return Envelope{"Update", fmt.Sprintf("There is an update on %s %s.", e.Category, e.WorkItemID)}
}

// Notification is one in-app inbox item
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Reference string     `json:"reference"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}
