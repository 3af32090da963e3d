package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryKey_Less(t *testing.T) {
	keys := []InventoryKey{
		{ProductID: "p2", ShopID: "s1", Size: "M"},
		{ProductID: "p1", ShopID: "s2", Size: "L"},
		{ProductID: "p1", ShopID: "s1", Size: "M"},
		{ProductID: "p1", ShopID: "s1", Size: "L"},
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	assert.Equal(t, []InventoryKey{
		{ProductID: "p1", ShopID: "s1", Size: "L"},
		{ProductID: "p1", ShopID: "s1", Size: "M"},
		{ProductID: "p1", ShopID: "s2", Size: "L"},
		{ProductID: "p2", ShopID: "s1", Size: "M"},
	}, keys)

	k := InventoryKey{ProductID: "p1", ShopID: "s1", Size: "M"}
	assert.False(t, k.Less(k))
	assert.Equal(t, "p1/s1/M", k.String())
}

func TestValidateCart(t *testing.T) {
	good := CartLine{ProductID: "p1", ShopID: "s1", Size: "M", Quantity: 1, UnitPrice: 1000}

	tests := []struct {
		name   string
		userID string
		lines  []CartLine
		field  string
	}{
		{name: "empty user", userID: "", lines: []CartLine{good}, field: "userId"},
		{name: "empty cart", userID: "u1", lines: nil, field: "lines"},
		{name: "zero quantity", userID: "u1", lines: []CartLine{good, {ProductID: "p2", ShopID: "s1", Size: "M", Quantity: 0}}, field: "quantity"},
		{name: "negative price", userID: "u1", lines: []CartLine{{ProductID: "p2", ShopID: "s1", Size: "M", Quantity: 1, UnitPrice: -1}}, field: "unitPrice"},
		{name: "quantity above ceiling", userID: "u1", lines: []CartLine{{ProductID: "p2", ShopID: "s1", Size: "M", Quantity: MaxLineQuantity + 1}}, field: "quantity"},
		{name: "overflowing quantity", userID: "u1", lines: []CartLine{{ProductID: "p2", ShopID: "s1", Size: "M", Quantity: math.MaxInt, UnitPrice: 1}}, field: "quantity"},
		{name: "price above ceiling", userID: "u1", lines: []CartLine{{ProductID: "p2", ShopID: "s1", Size: "M", Quantity: 1, UnitPrice: math.MaxInt64}}, field: "unitPrice"},
		{name: "missing shop", userID: "u1", lines: []CartLine{{ProductID: "p2", Size: "M", Quantity: 1}}, field: "shopId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCart(tt.userID, tt.lines)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	require.NoError(t, ValidateCart("u1", []CartLine{good}))
}

func TestCartLine_Subtotal(t *testing.T) {
	l := CartLine{Quantity: 3, UnitPrice: 1999}
	assert.Equal(t, int64(5997), l.Subtotal())
}

func TestCartTotal(t *testing.T) {
	total, err := CartTotal([]CartLine{{Quantity: 2, UnitPrice: 10}, {Quantity: 1, UnitPrice: 20}})
	require.NoError(t, err)
	assert.Equal(t, int64(40), total)

	// 单行在上限内，累计超出 int64
	maxLine := CartLine{Quantity: MaxLineQuantity, UnitPrice: MaxUnitPrice}
	lines := make([]CartLine, 1000)
	for i := range lines {
		lines[i] = maxLine
	}
	_, err = CartTotal(lines)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestOrder_TransitionTo(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)

	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusShipped, true},
		{StatusPending, StatusCancelled, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, false},
		{StatusPending, StatusDelivered, false},
		{StatusDelivered, StatusPending, false},
		{StatusCancelled, StatusShipped, false},
		{StatusPending, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			o := NewOrder("o1", "u1", "s1", created)
			o.Status = tt.from

			err := o.TransitionTo(tt.to, later)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, o.Status)
				assert.Equal(t, later, o.UpdatedAt)
				return
			}
			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, o.Status)
			assert.Equal(t, created, o.UpdatedAt)
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, st)
	assert.False(t, st.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())

	_, err = ParseStatus("lost")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "status", vErr.Field)
}

func TestOrderDetail_Total(t *testing.T) {
	d := OrderDetail{Lines: []OrderLine{
		{Quantity: 2, UnitPrice: 500},
		{Quantity: 1, UnitPrice: 1250},
	}}
	assert.Equal(t, int64(2250), d.Total())
}

func TestErrorChains(t *testing.T) {
	key := InventoryKey{ProductID: "p1", ShopID: "s1", Size: "M"}

	stockErr := fmt.Errorf("place order: %w", &StockError{Key: key, Reason: ErrInsufficientStock, Required: 3, Available: 1})
	assert.ErrorIs(t, stockErr, ErrInsufficientStock)
	assert.NotErrorIs(t, stockErr, ErrStockNotFound)
	assert.Contains(t, stockErr.Error(), "required 3, available 1")

	var se *StockError
	require.ErrorAs(t, stockErr, &se)
	assert.Equal(t, key, se.Key)

	retryable := fmt.Errorf("place order: %w", &TransactionError{Op: "lock", Retryable: true, Err: errors.New("deadlock")})
	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsRetryable(&TransactionError{Op: "commit", Err: errors.New("broken pipe")}))
	assert.False(t, IsRetryable(stockErr))
	assert.False(t, IsRetryable(nil))
}
