package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scripted functions must be able to mutate the mock's own state, the
// way broker tests script an exchange that records the order it just
// accepted. The call is run on a goroutine so a locking regression
// surfaces as a test failure instead of a hung test binary.
func TestMockClient_ScriptedCreateCallsBackIntoMock(t *testing.T) {
	client := NewMockClient()
	client.CreateFunc = func(req OrderRequest) (Order, error) {
		order := Order{
			ID:        "scripted-1",
			Symbol:    req.Symbol,
			Side:      req.Side,
			Status:    "open",
			Price:     req.Price,
			Amount:    req.Amount,
			Remaining: req.Amount,
		}
		client.SetOrder(order)
		return order, nil
	}

	done := make(chan struct{})
	var created Order
	var createErr error
	go func() {
		defer close(done)
		created, createErr = client.CreateOrder(context.Background(), OrderRequest{
			Symbol: "BTC/USDT",
			Side:   Buy,
			Price:  100,
			Amount: 1,
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CreateOrder did not return while its script mutated mock state")
	}
	require.NoError(t, createErr)
	require.Equal(t, "scripted-1", created.ID)

	got, err := client.FetchOrder(context.Background(), "scripted-1", "BTC/USDT", nil)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Len(t, client.CreateCalls, 1)
}

func TestMockClient_ScriptedFetchCallsBackIntoMock(t *testing.T) {
	client := NewMockClient()
	client.SetOrder(Order{ID: "o-1", Symbol: "ETH/USDT", Status: "open"})
	client.FetchOrderFunc = func(id, symbol string) (Order, error) {
		order := Order{ID: id, Symbol: symbol, Status: "closed"}
		client.SetOrder(order)
		return order, nil
	}

	done := make(chan struct{})
	var got Order
	var err error
	go func() {
		defer close(done)
		got, err = client.FetchOrder(context.Background(), "o-1", "ETH/USDT", nil)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("FetchOrder did not return while its script mutated mock state")
	}
	require.NoError(t, err)
	assert.Equal(t, "closed", got.Status)

	closed, err := client.FetchClosedOrders(context.Background(), "ETH/USDT", 0, 0)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "o-1", closed[0].ID)
}
