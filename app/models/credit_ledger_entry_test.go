package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidLedgerReason(t *testing.T) {
	for _, reason := range []string{
		LedgerReasonPurchase, LedgerReasonUsage, LedgerReasonAdminAdd,
		LedgerReasonAdminSubtract, LedgerReasonRefund, LedgerReasonExpiration,
	} {
		assert.True(t, ValidLedgerReason(reason), reason)
	}
	assert.False(t, ValidLedgerReason("bonus"))
	assert.False(t, ValidLedgerReason(""))
}

func TestIsConsumption(t *testing.T) {
	assert.True(t, IsConsumption(LedgerReasonUsage))
	assert.True(t, IsConsumption(LedgerReasonAdminSubtract))
	assert.True(t, IsConsumption(LedgerReasonExpiration))
	assert.False(t, IsConsumption(LedgerReasonPurchase))
	assert.False(t, IsConsumption(LedgerReasonRefund))
}

func TestLedgerEntryCheckChain(t *testing.T) {
	good := &CreditLedgerEntry{BalanceBefore: 5, Delta: 3, BalanceAfter: 8}
	assert.NoError(t, good.CheckChain())

	broken := &CreditLedgerEntry{ID: 7, BalanceBefore: 5, Delta: 3, BalanceAfter: 9}
	assert.Error(t, broken.CheckChain())
}
