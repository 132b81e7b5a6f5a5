package bybit

import "testing"

func TestAtof(t *testing.T) {
	cases := map[string]float64{
		"":        0,
		"1.5":     1.5,
		"not-a-number": 0,
		"100":     100,
	}
	for in, want := range cases {
		if got := atof(in); got != want {
			t.Errorf("atof(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDecimalsOf(t *testing.T) {
	cases := map[string]int{
		"0.01":   2,
		"0.001":  3,
		"1":      0,
		"0.0001": 4,
	}
	for in, want := range cases {
		if got := decimalsOf(in); got != want {
			t.Errorf("decimalsOf(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestKlineInterval(t *testing.T) {
	if got := klineInterval(1); got != "1" {
		t.Errorf("klineInterval(1) = %q, want %q", got, "1")
	}
	if got := klineInterval(1440); got != "D" {
		t.Errorf("klineInterval(1440) = %q, want %q", got, "D")
	}
}
