package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oriongate/execcore/internal/types"
)

// MockAdapter is the test/dev Adapter, grounded on the paper-broker
// simulated-fill idiom of the secondary reference example this core draws
// on, extended with the fillDelayMs/simulateFill/partialFillRatio knobs §9
// requires so strategy tests can exercise every fill outcome deterministically.
type MockAdapter struct {
	mu sync.Mutex

	// Knobs
	FillDelay       time.Duration
	SimulateFill    bool
	PartialFillRatio decimal.Decimal // 0 disables; else fraction filled per poll

	account   types.Account
	orders    map[string]*mockOrder
	positions map[string]types.BrokerPosition
}

type mockOrder struct {
	req       OrderRequest
	placedAt  time.Time
	filled    decimal.Decimal
	status    types.OrderStatus
}

// NewMockAdapter builds a MockAdapter with a starting equity.
func NewMockAdapter(startingEquity decimal.Decimal) *MockAdapter {
	return &MockAdapter{
		SimulateFill:     true,
		PartialFillRatio: decimal.Zero,
		account:          types.Account{Equity: startingEquity, Cash: startingEquity},
		orders:           make(map[string]*mockOrder),
		positions:        make(map[string]types.BrokerPosition),
	}
}

func (m *MockAdapter) Name() string { return "mock" }

func (m *MockAdapter) SendOrder(ctx context.Context, req OrderRequest) (string, error) {
	if req.Size.Sign() <= 0 {
		return "", types.NewError(types.ErrBrokerRejected, "invalid size")
	}
	id := req.ClientID
	if id == "" {
		id = uuid.New().String()
	}

	m.mu.Lock()
	m.orders[id] = &mockOrder{req: req, placedAt: time.Now(), status: types.OrderOpen}
	m.mu.Unlock()

	if m.FillDelay > 0 {
		select {
		case <-ctx.Done():
			return id, ctx.Err()
		case <-time.After(m.FillDelay):
		}
	}
	return id, nil
}

func (m *MockAdapter) CancelOrder(ctx context.Context, symbol, brokerOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[brokerOrderID]
	if !ok {
		return types.NewError(types.ErrBrokerRejected, "unknown order id")
	}
	if o.status == types.OrderFilled {
		return nil
	}
	o.status = types.OrderCanceled
	return nil
}

// GetOrderStatus simulates a fill according to SimulateFill/PartialFillRatio
// on each poll, matching how the Limit-or-Kill/Limit Chaser strategies
// repeatedly poll order status.
func (m *MockAdapter) GetOrderStatus(ctx context.Context, symbol, brokerOrderID string) (types.OrderReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[brokerOrderID]
	if !ok {
		return types.OrderReport{}, types.NewError(types.ErrBrokerRejected, "unknown order id")
	}

	if o.status != types.OrderCanceled && m.SimulateFill {
		increment := o.req.Size
		if m.PartialFillRatio.Sign() > 0 && m.PartialFillRatio.LessThan(decimal.NewFromInt(1)) {
			increment = o.req.Size.Mul(m.PartialFillRatio)
		}
		if o.filled.Add(increment).GreaterThanOrEqual(o.req.Size) {
			o.filled = o.req.Size
			o.status = types.OrderFilled
		} else {
			o.filled = o.filled.Add(increment)
			o.status = types.OrderPartiallyFilled
		}
	}

	remaining := o.req.Size.Sub(o.filled)
	return types.OrderReport{
		BrokerOrderID: brokerOrderID,
		Symbol:        symbol,
		Side:          o.req.Side,
		Status:        o.status,
		LimitPrice:    o.req.LimitPrice,
		FilledSize:    o.filled,
		RemainingSize: remaining,
		AvgFillPrice:  o.req.LimitPrice,
		UpdatedAt:     time.Now(),
	}, nil
}

func (m *MockAdapter) GetAccount(ctx context.Context) (types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account, nil
}

// SetEquity lets tests drive the Phase Manager through its equity brackets.
func (m *MockAdapter) SetEquity(equity decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account.Equity = equity
	m.account.Cash = equity
}

func (m *MockAdapter) GetPositions(ctx context.Context) ([]types.BrokerPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.BrokerPosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

// SetPosition lets tests/the reconciler seed the broker's view of a position.
func (m *MockAdapter) SetPosition(p types.BrokerPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Symbol] = p
}

func (m *MockAdapter) ClosePosition(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
	return nil
}

func (m *MockAdapter) CloseAllPositions(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.positions)
	m.positions = make(map[string]types.BrokerPosition)
	return n, nil
}

func (m *MockAdapter) TestConnection(ctx context.Context) error { return nil }

func (m *MockAdapter) UpdateStopLoss(ctx context.Context, symbol string, stop decimal.Decimal) error {
	return nil
}

func (m *MockAdapter) GetOpenInterest(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, types.NewError(types.ErrBrokerRejected, "not supported on mock adapter")
}

func (m *MockAdapter) FetchOHLCV(ctx context.Context, symbol, granularity string, limit int) ([]Candle, error) {
	return nil, types.NewError(types.ErrBrokerRejected, "not supported on mock adapter")
}
