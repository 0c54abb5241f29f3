package models

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	testCases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderPending, OrderOpen, true},
		{OrderPending, OrderExecuted, true},
		{OrderPending, OrderRejected, true},
		{OrderPending, OrderCancelled, false},
		{OrderOpen, OrderPartFilled, true},
		{OrderOpen, OrderExecuted, true},
		{OrderOpen, OrderCancelled, true},
		{OrderOpen, OrderRejected, false},
		{OrderPartFilled, OrderExecuted, true},
		{OrderPartFilled, OrderCancelled, true},
		{OrderPartFilled, OrderOpen, false},
		{OrderExecuted, OrderCancelled, false},
		{OrderCancelled, OrderOpen, false},
		{OrderRejected, OrderExecuted, false},
	}

	for _, tc := range testCases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderExecuted, OrderCancelled, OrderRejected}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []OrderStatus{OrderPending, OrderOpen, OrderPartFilled}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestSideSign(t *testing.T) {
	if OrderSideBuy.Sign() != 1 {
		t.Errorf("BUY sign = %v, want 1", OrderSideBuy.Sign())
	}
	if OrderSideSell.Sign() != -1 {
		t.Errorf("SELL sign = %v, want -1", OrderSideSell.Sign())
	}
}
