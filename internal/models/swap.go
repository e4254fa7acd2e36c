package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SwapStatus is the lifecycle state of a swap offer. Only the values below
// exist; parsing anything else fails.
type SwapStatus string

const (
	SwapStatusPending   SwapStatus = "pending"
	SwapStatusAccepted  SwapStatus = "accepted"
	SwapStatusRejected  SwapStatus = "rejected"
	SwapStatusExpired   SwapStatus = "expired"
	SwapStatusCompleted SwapStatus = "completed"
)

// swapTransitions is the whole transition graph: from -> allowed targets.
var swapTransitions = map[SwapStatus][]SwapStatus{
	SwapStatusPending:   {SwapStatusAccepted, SwapStatusRejected, SwapStatusExpired},
	SwapStatusAccepted:  {SwapStatusCompleted},
	SwapStatusRejected:  {},
	SwapStatusExpired:   {},
	SwapStatusCompleted: {},
}

// SwapStatuses returns every known status.
func SwapStatuses() []SwapStatus {
	return []SwapStatus{
		SwapStatusPending, SwapStatusAccepted, SwapStatusRejected,
		SwapStatusExpired, SwapStatusCompleted,
	}
}

func ParseSwapStatus(s string) (SwapStatus, error) {
	st := SwapStatus(s)
	if _, ok := swapTransitions[st]; !ok {
		return "", fmt.Errorf("unknown swap status %q", s)
	}
	return st, nil
}

func (s SwapStatus) Valid() bool {
	_, ok := swapTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s SwapStatus) IsTerminal() bool {
	next, ok := swapTransitions[s]
	return ok && len(next) == 0
}

func (s SwapStatus) String() string { return string(s) }

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to SwapStatus) bool {
	for _, s := range swapTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckSwapTransition returns an error for any edge outside the graph. Every
// status write in the repositories calls it before touching storage.
func CheckSwapTransition(from, to SwapStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid swap transition from %s to %s", from, to)
	}
	return nil
}

func (s SwapStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown swap status %q", string(s))
	}
	return json.Marshal(string(s))
}

func (s *SwapStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseSwapStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Scan implements sql.Scanner so rows carrying an unknown status fail to load.
func (s *SwapStatus) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into SwapStatus", src)
	}
	st, err := ParseSwapStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s SwapStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown swap status %q", string(s))
	}
	return string(s), nil
}

type Swap struct {
	ID                 uuid.UUID       `json:"id"`
	FromUserID         uuid.UUID       `json:"fromUser"`
	ToUserID           uuid.UUID       `json:"toUser"`
	OfferingProductID  uuid.UUID       `json:"offeringProduct"`
	RequestedProductID uuid.UUID       `json:"requestedProduct"`
	Message            *string         `json:"message,omitempty"`
	ExtraPayment       decimal.Decimal `json:"extraPayment"`
	Status             SwapStatus      `json:"status"`
	SettledReference   *string         `json:"settledReference,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}
