package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

// New registers every metric family against the global default registry, so
// the whole package's behavior is exercised against a single instance here
// rather than one per test function, which would panic on the second
// registration attempt.
func TestMetrics(t *testing.T) {
	m := New(zap.NewNop())

	t.Run("TradesIngestedIncrementsPerVenueAndSymbol", func(t *testing.T) {
		m.TradesIngested.WithLabelValues("binance", "BTC/USDT").Inc()
		m.TradesIngested.WithLabelValues("binance", "BTC/USDT").Inc()
		m.TradesIngested.WithLabelValues("okx", "BTC/USDT").Inc()

		if got := testutil.ToFloat64(m.TradesIngested.WithLabelValues("binance", "BTC/USDT")); got != 2 {
			t.Errorf("binance counter = %v, want 2", got)
		}
		if got := testutil.ToFloat64(m.TradesIngested.WithLabelValues("okx", "BTC/USDT")); got != 1 {
			t.Errorf("okx counter = %v, want 1", got)
		}
	})

	t.Run("StopWithoutStartIsNoop", func(t *testing.T) {
		if err := m.Stop(); err != nil {
			t.Errorf("Stop() without Start() should be a no-op, got %v", err)
		}
	})
}
