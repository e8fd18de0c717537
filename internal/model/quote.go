package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStatus represents the current state of a quote.
type QuoteStatus string

const (
	QuoteStatusDraft           QuoteStatus = "draft"
	QuoteStatusHITLPending     QuoteStatus = "hitl_pending"
	QuoteStatusInReview        QuoteStatus = "in_review"
	QuoteStatusApproved        QuoteStatus = "approved"
	QuoteStatusEscalated       QuoteStatus = "escalated"
	QuoteStatusRejected        QuoteStatus = "rejected"
	QuoteStatusAwaitingPayment QuoteStatus = "awaiting_payment"
	QuoteStatusPaid            QuoteStatus = "paid"
	QuoteStatusConverted       QuoteStatus = "converted"
)

// TurnaroundType is the selected delivery speed tier.
type TurnaroundType string

const (
	TurnaroundStandard TurnaroundType = "standard"
	TurnaroundRush     TurnaroundType = "rush"
	TurnaroundSameDay  TurnaroundType = "same_day"
)

// Quote is a pricing request in progress.
type Quote struct {
	ID                 string          `json:"id"`
	CustomerRef        string          `json:"customer_ref"`
	SourceLanguage     string          `json:"source_language"`
	TargetLanguage     string          `json:"target_language"`
	LanguageMultiplier decimal.Decimal `json:"language_multiplier"`
	DocumentType       string          `json:"document_type"`
	IntendedUse        string          `json:"intended_use"`

	Subtotal           decimal.Decimal `json:"subtotal"`
	CertificationTotal decimal.Decimal `json:"certification_total"`
	SurchargeTotal     decimal.Decimal `json:"surcharge_total"`
	DiscountTotal      decimal.Decimal `json:"discount_total"`
	RushFee            decimal.Decimal `json:"rush_fee"`
	DeliveryFee        decimal.Decimal `json:"delivery_fee"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	Total              decimal.Decimal `json:"total"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	BalanceDue         decimal.Decimal `json:"balance_due"`

	// Surcharge/discount definitions; "flat" or "percent" with the raw value.
	// Totals above are the evaluated results.
	SurchargeKind  string          `json:"surcharge_kind,omitempty"`
	SurchargeValue decimal.Decimal `json:"surcharge_value"`
	DiscountKind   string          `json:"discount_kind,omitempty"`
	DiscountValue  decimal.Decimal `json:"discount_value"`

	Turnaround     TurnaroundType `json:"turnaround"`
	DeliveryOption string         `json:"delivery_option"`
	Status         QuoteStatus    `json:"status"`
	Version        int            `json:"version"`

	BillingAddress  *Address `json:"billing_address,omitempty"`
	ShippingAddress *Address `json:"shipping_address,omitempty"`

	Documents []Document      `json:"documents,omitempty"`
	Groups    []DocumentGroup `json:"groups,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Address is a point-in-time address snapshot attached to a quote.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Terminal reports whether the quote has reached a state that permits no
// further transitions.
func (s QuoteStatus) Terminal() bool {
	switch s {
	case QuoteStatusPaid, QuoteStatusConverted, QuoteStatusRejected, QuoteStatusEscalated:
		return true
	}
	return false
}
