package candle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedup_KeepsAscendingUnique(t *testing.T) {
	in := []Candle{
		{OpenTime: 300, Close: 3},
		{OpenTime: 100, Close: 1},
		{OpenTime: 200, Close: 2},
		{OpenTime: 200, Close: 999}, // duplicate open time, should be dropped
	}
	out := Dedup(in)
	require.Len(t, out, 3)
	assert.Equal(t, []int64{100, 200, 300}, []int64{out[0].OpenTime, out[1].OpenTime, out[2].OpenTime})
	assert.Equal(t, 2.0, out[1].Close)
}

func TestTimeframeMinutes(t *testing.T) {
	assert.Equal(t, int64(15), TF15.Minutes())
	assert.Equal(t, int64(1440), TFDay.Minutes())
	assert.True(t, TF240.Valid())
	assert.False(t, Timeframe("7").Valid())
}

func TestFetch_ChunksUntilWant(t *testing.T) {
	calls := 0
	fetcher := func(ctx context.Context, symbol string, tf Timeframe, limit int, before int64) ([]Candle, error) {
		calls++
		var batch []Candle
		end := before
		if end == 0 {
			end = 1000
		}
		for i := 0; i < limit; i++ {
			t := end - int64(i+1)
			if t <= 0 {
				break
			}
			batch = append(batch, Candle{OpenTime: t, Close: float64(t)})
		}
		return batch, nil
	}

	out, err := Fetch(context.Background(), fetcher, "BTCUSDT", TF5, 450)
	require.NoError(t, err)
	assert.Len(t, out, 450)
	assert.True(t, calls >= 3) // 200 + 200 + 50
	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i-1].OpenTime, out[i].OpenTime)
	}
}

func TestFetch_StopsWhenHistoryExhausted(t *testing.T) {
	fetcher := func(ctx context.Context, symbol string, tf Timeframe, limit int, before int64) ([]Candle, error) {
		return []Candle{{OpenTime: 1, Close: 1}, {OpenTime: 2, Close: 2}}, nil
	}
	out, err := Fetch(context.Background(), fetcher, "BTCUSDT", TF1, 1000)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestFetch_InvalidTimeframe(t *testing.T) {
	_, err := Fetch(context.Background(), nil, "BTCUSDT", Timeframe("bogus"), 10)
	assert.Error(t, err)
}
