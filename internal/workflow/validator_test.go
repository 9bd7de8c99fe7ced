package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateStatusTransitionForwardSteps(t *testing.T) {
	steps := []struct {
		from string
		to   string
	}{
		{OrderPendingApproval, OrderApproved},
		{OrderApproved, OrderDispatched},
		{OrderDispatched, OrderDelivered},
	}
	for _, step := range steps {
		v := ValidateStatusTransition(EntityOrder, step.from, step.to)
		require.True(t, v.Valid, "%s -> %s should be valid: %s", step.from, step.to, v.Reason)
		require.Empty(t, v.Warnings)
	}
}

func TestValidateStatusTransitionNoSkip(t *testing.T) {
	v := ValidateStatusTransition(EntityOrder, OrderPendingApproval, OrderDelivered)
	require.False(t, v.Valid)
	require.Contains(t, v.Reason, OrderApproved)
	require.Contains(t, v.Reason, OrderDispatched)
}

func TestValidateStatusTransitionBackwardsAlwaysInvalid(t *testing.T) {
	cases := []struct {
		entity EntityType
		from   string
		to     string
	}{
		{EntityShipment, ShipmentDelivered, ShipmentInTransit},
		{EntityInvoice, InvoicePaid, InvoiceRaised},
		{EntityIndent, IndentClosed, IndentInProgress},
		{EntityOrder, OrderDelivered, OrderApproved},
	}
	for _, tc := range cases {
		v := ValidateStatusTransition(tc.entity, tc.from, tc.to)
		require.False(t, v.Valid, "%s %s -> %s must be invalid", tc.entity, tc.from, tc.to)
	}
}

func TestValidateStatusTransitionForwardOnlyMonotone(t *testing.T) {
	// Exhaustive: every strictly backwards pair on every chain is invalid.
	for _, entity := range []EntityType{
		EntityOrder, EntityPurchaseRequisition, EntityPurchaseOrder,
		EntityShipment, EntitySuborder, EntityGRN, EntityInvoice,
		EntityPayment, EntityVendorIndent, EntityIndent,
	} {
		c := chains[entity]
		for i, from := range c.ordered {
			for j, to := range c.ordered {
				if j >= i {
					continue
				}
				v := ValidateStatusTransition(entity, from, to)
				require.False(t, v.Valid, "%s %s -> %s", entity, from, to)
			}
		}
	}
}

func TestValidateStatusTransitionCreation(t *testing.T) {
	v := ValidateStatusTransition(EntityGRN, "", GRNDraft)
	require.True(t, v.Valid)

	v = ValidateStatusTransition(EntityGRN, "", GRNApproved)
	require.False(t, v.Valid)
	require.Contains(t, v.Reason, GRNDraft)
}

func TestValidateStatusTransitionSideTerminals(t *testing.T) {
	// Rejection and cancellation are reachable from any non-terminal state.
	v := ValidateStatusTransition(EntityOrder, OrderDispatched, OrderCancelled)
	require.True(t, v.Valid)

	v = ValidateStatusTransition(EntityShipment, ShipmentInTransit, ShipmentFailed)
	require.True(t, v.Valid)

	// But not from a terminal state.
	v = ValidateStatusTransition(EntityOrder, OrderDelivered, OrderCancelled)
	require.False(t, v.Valid)

	v = ValidateStatusTransition(EntityOrder, OrderRejected, OrderCancelled)
	require.False(t, v.Valid)

	// And nothing leaves a side terminal.
	v = ValidateStatusTransition(EntityShipment, ShipmentReturned, ShipmentShipped)
	require.False(t, v.Valid)
}

func TestValidateStatusTransitionIdempotentResubmit(t *testing.T) {
	for _, entity := range []EntityType{EntityOrder, EntityGRN, EntityPayment} {
		for _, s := range Statuses(entity) {
			v := ValidateStatusTransition(entity, s, s)
			require.True(t, v.Valid, "%s %s -> %s", entity, s, s)
			require.NotEmpty(t, v.Warnings)
		}
	}
}

func TestValidateStatusTransitionUnknownInputs(t *testing.T) {
	v := ValidateStatusTransition(EntityType("WAREHOUSE"), "", "CREATED")
	require.False(t, v.Valid)

	v = ValidateStatusTransition(EntityOrder, OrderApproved, "TELEPORTED")
	require.False(t, v.Valid)

	v = ValidateStatusTransition(EntityOrder, "LOST", OrderApproved)
	require.False(t, v.Valid)
}
