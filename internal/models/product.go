package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product carries the listing fields the swap engine reads plus the escrow
// fields written by payment reconciliation.
type Product struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          uuid.UUID       `json:"owner_id"`
	Title            string          `json:"title"`
	Price            decimal.Decimal `json:"price"`
	IsInEscrow       bool            `json:"is_in_escrow"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	BuyerID          *uuid.UUID      `json:"buyer_id,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
