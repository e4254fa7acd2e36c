// Package payments parses and authenticates payment gateway callbacks.
package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	GatewayPaystack = "paystack"

	// EventChargeSuccess is the only event that settles escrow.
	EventChargeSuccess = "charge.success"
)

var (
	ErrSignatureMissing = errors.New("signature header is missing")
	ErrSignatureInvalid = errors.New("signature does not match body")
)

// SignatureHeader returns the header carrying the body signature for gateway.
func SignatureHeader(gateway string) string {
	if gateway == "" {
		return ""
	}
	return "X-" + strings.ToUpper(gateway[:1]) + gateway[1:] + "-Signature"
}

// Sign returns the hex HMAC-SHA512 of body under secret.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha512.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks signature against the HMAC-SHA512 of body. The
// comparison is constant-time.
func VerifySignature(secret string, body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return ErrSignatureInvalid
	}
	h := hmac.New(sha512.New, []byte(secret))
	h.Write(body)
	if !hmac.Equal(got, h.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

type Callback struct {
	Event string       `json:"event"`
	Data  CallbackData `json:"data"`
}

type CallbackData struct {
	Reference string           `json:"reference"`
	Amount    int64            `json:"amount"` // minor units (kobo, cents)
	Currency  string           `json:"currency"`
	Channel   string           `json:"channel"`
	Status    string           `json:"status"`
	PaidAt    string           `json:"paid_at"`
	Metadata  CallbackMetadata `json:"metadata"`
	Customer  CallbackCustomer `json:"customer"`
}

type CallbackMetadata struct {
	ProductID string `json:"productId"`
	BuyerID   string `json:"buyerId"`
}

type CallbackCustomer struct {
	Email string `json:"email"`
}

// Settlement is the validated subset of a charge.success callback.
type Settlement struct {
	Reference string
	ProductID uuid.UUID
	BuyerID   uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	Channel   string
	Email     string
}

func ParseCallback(body []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}
	if cb.Event == "" {
		return nil, errors.New("callback has no event")
	}
	return &cb, nil
}

// IsSettlement reports whether the callback should change escrow state.
func (c *Callback) IsSettlement() bool {
	return c.Event == EventChargeSuccess
}

// Settlement extracts the fields escrow needs. Metadata ids must be uuids.
func (c *Callback) Settlement() (*Settlement, error) {
	d := c.Data
	ref := strings.TrimSpace(d.Reference)
	if ref == "" {
		return nil, errors.New("data.reference is missing")
	}
	if d.Metadata.ProductID == "" {
		return nil, errors.New("data.metadata.productId is missing")
	}
	if d.Metadata.BuyerID == "" {
		return nil, errors.New("data.metadata.buyerId is missing")
	}
	productID, err := uuid.Parse(d.Metadata.ProductID)
	if err != nil {
		return nil, fmt.Errorf("data.metadata.productId: %w", err)
	}
	buyerID, err := uuid.Parse(d.Metadata.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("data.metadata.buyerId: %w", err)
	}
	if d.Amount < 0 {
		return nil, errors.New("data.amount is negative")
	}
	return &Settlement{
		Reference: ref,
		ProductID: productID,
		BuyerID:   buyerID,
		Amount:    decimal.New(d.Amount, -2),
		Currency:  d.Currency,
		Channel:   d.Channel,
		Email:     d.Customer.Email,
	}, nil
}
