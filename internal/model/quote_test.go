package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteStatusTerminal(t *testing.T) {
	tests := []struct {
		status   QuoteStatus
		terminal bool
	}{
		{QuoteStatusDraft, false},
		{QuoteStatusHITLPending, false},
		{QuoteStatusInReview, false},
		{QuoteStatusApproved, false},
		{QuoteStatusAwaitingPayment, false},
		{QuoteStatusEscalated, true},
		{QuoteStatusRejected, true},
		{QuoteStatusPaid, true},
		{QuoteStatusConverted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}
