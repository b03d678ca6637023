package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candle-tools/go-candle-ingest/internal/models"
)

func candleAt(ts time.Time) models.Candle {
	return models.Candle{
		Timestamp: ts,
		Open:      "100", High: "105", Low: "95", Close: "101",
		Volume: "10",
		Symbol: "BTC/USD",
	}
}

func TestFindGaps(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	step := time.Hour

	t.Run("continuous series has no gaps", func(t *testing.T) {
		candles := []models.Candle{
			candleAt(base),
			candleAt(base.Add(step)),
			candleAt(base.Add(2 * step)),
		}
		assert.Empty(t, FindGaps(candles, step))
	})

	t.Run("single hole", func(t *testing.T) {
		candles := []models.Candle{
			candleAt(base),
			candleAt(base.Add(3 * step)), // 01:00 and 02:00 missing
		}

		gaps := FindGaps(candles, step)

		require.Len(t, gaps, 1)
		assert.True(t, gaps[0].Start.Equal(base.Add(step)))
		assert.True(t, gaps[0].End.Equal(base.Add(3*step)))
		assert.Equal(t, 2, gaps[0].Missing)
	})

	t.Run("multiple holes", func(t *testing.T) {
		candles := []models.Candle{
			candleAt(base),
			candleAt(base.Add(2 * step)),
			candleAt(base.Add(3 * step)),
			candleAt(base.Add(6 * step)),
		}

		gaps := FindGaps(candles, step)

		require.Len(t, gaps, 2)
		assert.Equal(t, 1, gaps[0].Missing)
		assert.Equal(t, 2, gaps[1].Missing)
		assert.Equal(t, 3, CountMissing(gaps))
	})

	t.Run("too short or misconfigured input", func(t *testing.T) {
		assert.Nil(t, FindGaps(nil, step))
		assert.Nil(t, FindGaps([]models.Candle{candleAt(base)}, step))
		assert.Nil(t, FindGaps([]models.Candle{candleAt(base), candleAt(base.Add(step))}, 0))
	})
}
