package models

import "time"

// IntentKind identifies the kind of thing a payment settles
type IntentKind string

const (
	IntentKindTicket     IntentKind = "ticket"
	IntentKindShop       IntentKind = "shop"
	IntentKindQuote      IntentKind = "quote"
	IntentKindDeposit    IntentKind = "deposit"
	IntentKindMembership IntentKind = "membership"
	IntentKindDonation   IntentKind = "donation"
	IntentKindUnassigned IntentKind = "unassigned"
)

// MatchableIntentKinds are the kinds the candidate matcher searches and Attach accepts
var MatchableIntentKinds = []IntentKind{
	IntentKindTicket,
	IntentKindShop,
	IntentKindQuote,
	IntentKindDeposit,
}

// Valid reports whether k is a known kind
func (k IntentKind) Valid() bool {
	switch k {
	case IntentKindTicket, IntentKindShop, IntentKindQuote, IntentKindDeposit,
		IntentKindMembership, IntentKindDonation, IntentKindUnassigned:
		return true
	}
	return false
}

// Matchable reports whether k is one of MatchableIntentKinds
func (k IntentKind) Matchable() bool {
	for _, m := range MatchableIntentKinds {
		if m == k {
			return true
		}
	}
	return false
}

// PaymentIntent is the common view over every payable entity
type PaymentIntent struct {
	Kind      IntentKind `json:"kind"`
	ID        uint       `json:"id"`
	UserID    *uint      `json:"user_id,omitempty"`
	Amount    int64      `json:"amount"`
	Status    string     `json:"status"`
	Ref       *string    `json:"ref,omitempty"`
	Label     string     `json:"label,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Pointer returns the "kind:id" pointer for the intent
func (i PaymentIntent) Pointer() EntityPointer {
	return EntityPointer{Kind: i.Kind, ID: i.ID}
}

// Intent is implemented by every entity a payment can settle
type Intent interface {
	TableName() string
	ToIntent() PaymentIntent
}
