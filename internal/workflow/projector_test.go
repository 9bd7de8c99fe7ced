package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestSafeDualWriteStatusProjectsBothVocabularies(t *testing.T) {
	p := NewProjectorAt(fixedClock())
	res := p.SafeDualWriteStatus(EntityOrder, "ord-101", OrderDispatched, "Awaiting fulfilment", OrderApproved, TransitionContext{
		UpdatedBy: "ops-7",
		Reason:    "courier picked up",
		Source:    "shipping-webhook",
	})

	require.True(t, res.Validation.Valid)
	require.Equal(t, map[string]any{"status": "Dispatched"}, res.LegacyUpdate)
	require.Equal(t, OrderDispatched, res.UnifiedUpdate["unified_status"])
	require.Equal(t, fixedClock()(), res.UnifiedUpdate["unified_status_updated_at"])

	require.Equal(t, "Awaiting fulfilment", res.AuditLog.PrevLegacy)
	require.Equal(t, OrderApproved, res.AuditLog.PrevUnified)
	require.Equal(t, "Dispatched", res.AuditLog.NewLegacy)
	require.Equal(t, OrderDispatched, res.AuditLog.NewUnified)
	require.Equal(t, "ops-7", res.AuditLog.UpdatedBy)
}

func TestSafeDualWriteStatusPRFieldNames(t *testing.T) {
	p := NewProjectorAt(fixedClock())
	res := p.SafeDualWriteStatus(EntityPurchaseRequisition, "ord-101", PRSiteApproved, "Pending site approval", PRPendingSiteApproval, TransitionContext{UpdatedBy: "site-admin-2", Reason: "approved"})

	require.True(t, res.Validation.Valid)
	require.Contains(t, res.LegacyUpdate, "pr_status")
	require.Contains(t, res.UnifiedUpdate, "unified_pr_status")
	require.Contains(t, res.UnifiedUpdate, "unified_pr_status_updated_at")
}

func TestSafeDualWriteStatusInvalidNeverThrows(t *testing.T) {
	p := NewProjectorAt(fixedClock())
	res := p.SafeDualWriteStatus(EntityInvoice, "inv-9", InvoiceRaised, "Paid", InvoicePaid, TransitionContext{UpdatedBy: "x", Reason: "y"})

	require.False(t, res.Validation.Valid)
	require.NotEmpty(t, res.Validation.Reason)
	require.Nil(t, res.LegacyUpdate)
	require.Nil(t, res.UnifiedUpdate)
}

func TestSafeDualWriteStatusDeterministic(t *testing.T) {
	p := NewProjectorAt(fixedClock())
	tc := TransitionContext{UpdatedBy: "ops", Reason: "resync"}
	first := p.SafeDualWriteStatus(EntitySuborder, "sub-3", SuborderShipped, "Awaiting fulfilment", SuborderCreated, tc)
	second := p.SafeDualWriteStatus(EntitySuborder, "sub-3", SuborderShipped, "Awaiting fulfilment", SuborderCreated, tc)

	require.Equal(t, first, second)
}
