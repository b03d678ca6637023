package series

import (
	"time"

	"github.com/candle-tools/go-candle-ingest/internal/models"
)

// Gap is a run of missing bars inside an otherwise continuous series.
type Gap struct {
	Start   time.Time // first missing timestamp
	End     time.Time // timestamp of the bar that follows the gap
	Missing int
}

// FindGaps scans an ascending series for interior holes, comparing each
// consecutive pair of timestamps against the expected step. Leading and
// trailing coverage is not judged here; only what lies between the first
// and last bar.
func FindGaps(candles []models.Candle, step time.Duration) []Gap {
	if len(candles) < 2 || step <= 0 {
		return nil
	}

	var gaps []Gap
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Timestamp
		cur := candles[i].Timestamp
		delta := cur.Sub(prev)
		if delta <= step {
			continue
		}
		missing := int(delta/step) - 1
		gaps = append(gaps, Gap{
			Start:   prev.Add(step),
			End:     cur,
			Missing: missing,
		})
	}
	return gaps
}

// CountMissing sums the missing bars across gaps.
func CountMissing(gaps []Gap) int {
	total := 0
	for _, g := range gaps {
		total += g.Missing
	}
	return total
}
