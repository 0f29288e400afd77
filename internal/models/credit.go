package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit ledger entry_type enums.
const (
	CreditEntryUsage          = "usage"
	CreditEntryRefund         = "refund"
	CreditEntryMonthlyDeposit = "monthly_deposit"
	CreditEntryPurchase       = "purchase"
)

type CreditLedger struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	EntryType string    `json:"entry_type"`
	Amount    int       `json:"amount"`
	Reference *string   `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
