package workitem

import (
	"errors"
	"fmt"
)

// Category separates labour jobs from machine-rental requests.
type Category string

const (
	CategoryLabour  Category = "labour"
	CategoryMachine Category = "machine"
)

// Role is a party in a negotiation or payment. The set is closed; use ParseRole
// at the boundary.
type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleLabourer Role = "labourer"
	RoleOwner    Role = "owner"
)

var (
	ErrUnknownCategory = errors.New("unknown work item category")
	ErrUnknownRole     = errors.New("unknown party role")
	ErrNotFound        = errors.New("work item not found")
)

// ParseCategory accepts the canonical names plus the "job" alias used in urls.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "labour", "job":
		return CategoryLabour, nil
	case "machine":
		return CategoryMachine, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleFarmer, RoleLabourer, RoleOwner:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// UnmarshalText keeps roles read back from stored records inside the closed set.
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Allows reports whether role may take part in a deal of this category:
// farmer/labourer for labour, farmer/owner for machines.
func (c Category) Allows(r Role) bool {
	switch c {
	case CategoryLabour:
		return r == RoleFarmer || r == RoleLabourer
	case CategoryMachine:
		return r == RoleFarmer || r == RoleOwner
	}
	return false
}

// Fulfiller is the role on the other side of the farmer.
func (c Category) Fulfiller() Role {
	if c == CategoryMachine {
		return RoleOwner
	}
	return RoleLabourer
}

// Opener is the role whose posted price becomes the initial offer.
func (c Category) Opener() Role {
	if c == CategoryMachine {
		return RoleOwner
	}
	return RoleFarmer
}

// WorkItem is a posted job or machine-rental request.
type WorkItem struct {
	ID          string   `json:"id" yaml:"id"`
	Category    Category `json:"category" yaml:"category"`
	BasePrice   float64  `json:"base_price" yaml:"base_price"`
	RequesterID string   `json:"requester_id" yaml:"requester_id"` // farmer
	FulfillerID string   `json:"fulfiller_id" yaml:"fulfiller_id"` // labourer or machine owner
	Status      string   `json:"status" yaml:"status,omitempty"`

	// Machine requests only.
	Duration string   `json:"duration,omitempty" yaml:"duration,omitempty"`
	Deposit  *float64 `json:"deposit,omitempty" yaml:"deposit,omitempty"`
}

// RoleOf maps a user id to the role it plays on this item.
func (w WorkItem) RoleOf(userID string) (Role, bool) {
	switch userID {
	case "":
		return "", false
	case w.RequesterID:
		return RoleFarmer, true
	case w.FulfillerID:
		return w.Category.Fulfiller(), true
	}
	return "", false
}

// Counterparty returns the fulfilling party id.
func (w WorkItem) Counterparty() string {
	return w.FulfillerID
}
