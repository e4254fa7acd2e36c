package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStatus is the settlement state of a wallet ledger entry.
type LedgerStatus string

const (
	LedgerStatusPending LedgerStatus = "pending"
	LedgerStatusSuccess LedgerStatus = "success"
	LedgerStatusFailed  LedgerStatus = "failed"
)

var ledgerTransitions = map[LedgerStatus][]LedgerStatus{
	LedgerStatusPending: {LedgerStatusSuccess, LedgerStatusFailed},
	LedgerStatusSuccess: {},
	LedgerStatusFailed:  {},
}

// Ledger entry types.
const (
	LedgerTypeEscrowPayment = "escrow_payment"
)

func ParseLedgerStatus(s string) (LedgerStatus, error) {
	st := LedgerStatus(s)
	if _, ok := ledgerTransitions[st]; !ok {
		return "", fmt.Errorf("unknown ledger status %q", s)
	}
	return st, nil
}

func (s LedgerStatus) Valid() bool {
	_, ok := ledgerTransitions[s]
	return ok
}

func (s LedgerStatus) IsFinal() bool {
	next, ok := ledgerTransitions[s]
	return ok && len(next) == 0
}

func CheckLedgerTransition(from, to LedgerStatus) error {
	for _, s := range ledgerTransitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid ledger transition from %s to %s", from, to)
}

func (s LedgerStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown ledger status %q", string(s))
	}
	return json.Marshal(string(s))
}

func (s *LedgerStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseLedgerStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s *LedgerStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into LedgerStatus", src)
	}
	st, err := ParseLedgerStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s LedgerStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown ledger status %q", string(s))
	}
	return string(s), nil
}

// LedgerEntry is one monetary movement. Reference is globally unique: one
// entry per external payment reference.
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Status    LedgerStatus    `json:"status"`
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Narration string          `json:"narration"`
	Verified  bool            `json:"verified"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
