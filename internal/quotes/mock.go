package quotes

import (
	"context"
	"math"
	"sync"
)

// MockFetcher provides deterministic quotes so the collector can run
// without brokerage credentials. Prices start from the synthetic anchors
// and drift on a small deterministic walk per call.
type MockFetcher struct {
	mu    sync.Mutex
	calls int64
	fail  error
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{}
}

// SetFailure makes every subsequent call return err; nil restores normal
// operation.
func (m *MockFetcher) SetFailure(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Calls reports how many upstream calls were made.
func (m *MockFetcher) Calls() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockFetcher) FetchQuotes(ctx context.Context, keys []string) (map[string]Record, error) {
	step, err := m.tick(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(keys))
	for _, k := range keys {
		price := m.walk(anchorFor(k), step)
		out[k] = Record{
			LastPrice:    price,
			Volume:       int64(price * 12),
			OpenInterest: int64(price * 6),
			AveragePrice: price * 0.9995,
			OHLC: &OHLC{
				Open:  price * 0.997,
				High:  price * 1.004,
				Low:   price * 0.994,
				Close: price * 0.9985,
			},
		}
	}
	return out, nil
}

func (m *MockFetcher) FetchLTP(ctx context.Context, keys []string) (map[string]Record, error) {
	step, err := m.tick(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(keys))
	for _, k := range keys {
		out[k] = Record{LastPrice: m.walk(anchorFor(k), step)}
	}
	return out, nil
}

func (m *MockFetcher) tick(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	m.calls++
	return m.calls, nil
}

// walk nudges the anchor by up to ±0.2% as a function of the call count,
// so successive cycles produce distinct but reproducible prices.
func (m *MockFetcher) walk(anchor float64, step int64) float64 {
	drift := math.Sin(float64(step)/7) * 0.002
	return anchor * (1 + drift)
}
