package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrice(t *testing.T) {
	rules := DefaultPriceRules()

	tests := []struct {
		name     string
		input    string
		expected *float64
	}{
		{
			name:     "comma decimal with currency word",
			input:    "129,90 грн",
			expected: floatPtr(129.90),
		},
		{
			name:     "point decimal without currency",
			input:    "129.90",
			expected: floatPtr(129.90),
		},
		{
			name:     "hryvnia sign",
			input:    "45,50 ₴",
			expected: floatPtr(45.50),
		},
		{
			name:     "uppercase currency code",
			input:    "45.50 UAH",
			expected: floatPtr(45.50),
		},
		{
			name:     "non-breaking space between digits",
			input:    "1 299,00 грн",
			expected: floatPtr(1299.00),
		},
		{
			name:     "integer price",
			input:    "37 грн",
			expected: floatPtr(37),
		},
		{
			name:     "below minimum plausible price",
			input:    "0.10 грн",
			expected: nil,
		},
		{
			name:     "above maximum plausible price",
			input:    "99999 грн",
			expected: nil,
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
		{
			name:     "whitespace only",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "no numeric token",
			input:    "ціну уточнюйте",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePrice(tt.input, rules)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.expected, *got, 0.0001)
		})
	}
}

func TestNormalizePriceSeparatorEquivalence(t *testing.T) {
	rules := DefaultPriceRules()

	comma := NormalizePrice("129,90 грн", rules)
	point := NormalizePrice("129.90", rules)

	require.NotNil(t, comma)
	require.NotNil(t, point)
	assert.Equal(t, *point, *comma)
}

func TestNormalizePriceCustomBounds(t *testing.T) {
	rules := PriceRules{Symbols: []string{"грн"}, Min: 10, Max: 100}

	assert.Nil(t, NormalizePrice("5 грн", rules))
	assert.Nil(t, NormalizePrice("150 грн", rules))
	require.NotNil(t, NormalizePrice("50 грн", rules))
}

func floatPtr(v float64) *float64 {
	return &v
}
