package exchange

import (
	"context"

	"PerpMesh/internal/candle"
)

// CandleFetcher adapts a Client into the candle.Fetcher shape
// candle.Fetch walks, translating the venue's Kline rows and the
// before-cursor convention candle.Fetch expects.
func CandleFetcher(client Client) candle.Fetcher {
	return func(ctx context.Context, symbol string, tf candle.Timeframe, limit int, before int64) ([]candle.Candle, error) {
		kl, err := client.GetKlines(ctx, symbol, int(tf.Minutes()), limit, before)
		if err != nil {
			return nil, err
		}
		out := make([]candle.Candle, len(kl))
		for i, k := range kl {
			out[i] = candle.Candle{
				OpenTime: k.OpenTime,
				Open:     k.Open,
				High:     k.High,
				Low:      k.Low,
				Close:    k.Close,
				Volume:   k.Volume,
				Turnover: k.Turnover,
			}
		}
		return out, nil
	}
}
