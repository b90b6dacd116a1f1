package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []OrderStatus{
	OrderPending, OrderConfirmed, OrderPreparing, OrderReady, OrderOnWay, OrderDelivered, OrderCancelled,
}

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]OrderStatus]bool{
		{OrderPending, OrderConfirmed}:   true,
		{OrderConfirmed, OrderPreparing}: true,
		{OrderPreparing, OrderReady}:     true,
		{OrderReady, OrderOnWay}:         true,
		{OrderOnWay, OrderDelivered}:     true,
		{OrderPending, OrderCancelled}:   true,
		{OrderConfirmed, OrderCancelled}: true,
		{OrderPreparing, OrderCancelled}: true,
		{OrderReady, OrderCancelled}:     true,
		{OrderOnWay, OrderCancelled}:     true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]OrderStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
			err := CheckTransition(from, to)
			if want {
				assert.NoError(t, err)
				continue
			}
			var ite *InvalidTransitionError
			require.ErrorAs(t, err, &ite, "%s -> %s", from, to)
			assert.Equal(t, from, ite.From)
			assert.Equal(t, to, ite.To)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
		}
	}
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	for _, s := range allStatuses {
		if s.Terminal() {
			assert.Empty(t, s.Successors(), s)
		} else {
			assert.Contains(t, s.Successors(), OrderCancelled, s)
		}
	}
}

func TestSuccessorsReturnsCopy(t *testing.T) {
	got := OrderPending.Successors()
	got[0] = OrderDelivered
	assert.True(t, OrderPending.CanTransitionTo(OrderConfirmed))
	assert.False(t, OrderPending.CanTransitionTo(OrderDelivered))
}

func TestAssignmentTarget(t *testing.T) {
	want := map[OrderStatus]OrderStatus{
		OrderPending:   OrderConfirmed,
		OrderConfirmed: OrderConfirmed,
		OrderPreparing: OrderPreparing,
		OrderReady:     OrderReady,
	}
	for from, to := range want {
		got, err := AssignmentTarget(from)
		require.NoError(t, err)
		assert.Equal(t, to, got, from)
	}
	for _, s := range []OrderStatus{OrderOnWay, OrderDelivered, OrderCancelled} {
		_, err := AssignmentTarget(s)
		assert.ErrorIs(t, err, ErrInvalidTransition, s)
	}
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus("on_way")
	require.NoError(t, err)
	assert.Equal(t, OrderOnWay, s)

	_, err = ParseOrderStatus("shipped")
	assert.Error(t, err)
	_, err = ParseOrderStatus("")
	assert.Error(t, err)
}

func TestNeedsDriver(t *testing.T) {
	assert.True(t, OrderOnWay.NeedsDriver())
	assert.True(t, OrderDelivered.NeedsDriver())
	assert.False(t, OrderReady.NeedsDriver())
	assert.False(t, OrderCancelled.NeedsDriver())
}

func TestEveryStatusHasMessage(t *testing.T) {
	for _, s := range allStatuses {
		assert.NotEqual(t, string(s), s.Message(), s)
	}
	assert.Equal(t, "bogus", OrderStatus("bogus").Message())
}
