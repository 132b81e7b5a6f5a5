package candle

import (
	"context"
	"fmt"
)

// Fetcher requests at most MaxChunk candles older than before (unix ms,
// exclusive) for (symbol, timeframe). Implemented by internal/exchange
// clients. Returned candles may be returned in any order; Fetch sorts
// and dedups.
type Fetcher func(ctx context.Context, symbol string, tf Timeframe, limit int, before int64) ([]Candle, error)

// Fetch assembles up to `want` candles for (symbol, tf) by walking
// backwards in chunks of up to MaxChunk, the way the teacher's
// GetKlinesRange walks forward through Alpaca's page tokens — here the
// exchange client offers a "before" cursor instead of a page token, so
// the loop walks backward from now until it has enough rows or a
// chunk comes back short (meaning history is exhausted).
func Fetch(ctx context.Context, fetch Fetcher, symbol string, tf Timeframe, want int) ([]Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("candle: invalid timeframe %q", tf)
	}
	if want <= 0 {
		return nil, nil
	}

	var all []Candle
	before := int64(0) // 0 means "most recent"
	for len(all) < want {
		chunkSize := MaxChunk
		if remaining := want - len(all); remaining < chunkSize {
			chunkSize = remaining
		}

		batch, err := fetch(ctx, symbol, tf, chunkSize, before)
		if err != nil {
			return nil, fmt.Errorf("candle: fetch %s %s: %w", symbol, tf, err)
		}
		if len(batch) == 0 {
			break
		}

		all = append(all, batch...)
		all = Dedup(all)

		oldest := batch[0].OpenTime
		for _, c := range batch {
			if c.OpenTime < oldest {
				oldest = c.OpenTime
			}
		}
		before = oldest

		if len(batch) < chunkSize {
			break // exchange ran out of history
		}
	}

	if len(all) > want {
		all = all[len(all)-want:]
	}
	return all, nil
}
