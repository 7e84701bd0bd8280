package execution

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeBuy(t *testing.T) {
	const max = 1_000_000_000

	tests := []struct {
		score int
		want  uint64
	}{
		{100, max},
		{90, max},
		{89, 750_000_000},
		{80, 750_000_000},
		{79, 500_000_000},
		{70, 500_000_000},
		{69, 250_000_000},
		{60, 250_000_000},
		{59, 0},
		{0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("score_%d", tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, SizeBuy(tt.score, max))
		})
	}
}

func TestSizeBuyZeroMax(t *testing.T) {
	assert.Zero(t, SizeBuy(100, 0))
}

func TestApplySlippage(t *testing.T) {
	assert.Equal(t, uint64(9_950), applySlippage(10_000, 50))
	assert.Equal(t, uint64(10_000), applySlippage(10_000, 0))
	assert.Zero(t, applySlippage(10_000, 10_000))

	// Near the uint64 range the scaling must not overflow.
	huge := uint64(18_000_000_000_000_000_000)
	assert.Equal(t, uint64(17_820_000_000_000_000_000), applySlippage(huge, 100))
}

func TestConstantProductOut(t *testing.T) {
	// 100 in against 1000/1000 reserves: 1000*100/1100 = 90.
	assert.Equal(t, uint64(90), constantProductOut(1000, 1000, 100))
	assert.Zero(t, constantProductOut(0, 1000, 100))
	assert.Zero(t, constantProductOut(1000, 1000, 0))
}
