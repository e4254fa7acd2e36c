package dto

import "github.com/shopspring/decimal"

// CreateSwapRequest: тело POST /api/swaps.
type CreateSwapRequest struct {
	OfferingProductID  string           `json:"offeringProductId"`
	RequestedProductID string           `json:"requestedProductId"`
	Message            *string          `json:"message,omitempty"`
	ExtraPayment       *decimal.Decimal `json:"extraPayment,omitempty"`
}
