package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBalance(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-2500, "-2,500"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBalance(tt.in))
		})
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "3,500 points", FormatPoints(3500))
	assert.Equal(t, "x1.20", FormatMultiplier("1.20"))
	assert.Equal(t, "-", FormatMultiplier(""))
	assert.Equal(t, "<@42>", UserMention(42))
}
