package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandle_EffectiveRange(t *testing.T) {
	bar := func(o, h, l, c float64) Candle {
		return Candle{Open: o, High: h, Low: l, Close: c}
	}

	tests := []struct {
		name     string
		candle   Candle
		wantHigh float64
		wantLow  float64
	}{
		{"normal", bar(1, 1.5, 0.8, 1), 1.5, 0.8},
		{"high spike", bar(1, 20, 0.9, 1), 1.05, 0.9},
		{"low spike", bar(1, 1.1, 0.05, 1), 1.1, 0.95},
		{"both spikes", bar(2, 50, 0.1, 2), 2.1, 1.9},
		{"exactly ten times is kept", bar(1, 10, 0.5, 1), 10, 0.5},
		{"non-positive close is left alone", bar(1, 5, 0.01, 0), 5, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hi, lo := tt.candle.EffectiveRange()
			assert.InDelta(t, tt.wantHigh, hi, 1e-12)
			assert.InDelta(t, tt.wantLow, lo, 1e-12)
		})
	}
}
