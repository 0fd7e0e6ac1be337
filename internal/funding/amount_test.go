package funding

import (
	"testing"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Run("Converts a decimal amount into base units", func(t *testing.T) {
		// When: 1.5 tokens of a 6 decimal mint are requested
		amount, err := ParseAmount("1.5", 6)

		// Then: the base amount is exact
		require.NoError(t, err)
		assert.Equal(t, uint64(1_500_000), amount)
	})

	t.Run("Accepts the full precision of the mint", func(t *testing.T) {
		amount, err := ParseAmount("1.123456", 6)

		require.NoError(t, err)
		assert.Equal(t, uint64(1_123_456), amount)
	})

	t.Run("Rejects more fractional digits than the mint allows", func(t *testing.T) {
		// When: 7 fractional digits are given to a 6 decimal mint
		_, err := ParseAmount("1.1234567", 6)

		// Then: the input is rejected
		require.ErrorIs(t, err, apperror.ErrTooManyDecimals)
	})

	t.Run("Whole and fraction only forms", func(t *testing.T) {
		amount, err := ParseAmount("3", 2)
		require.NoError(t, err)
		assert.Equal(t, uint64(300), amount)

		amount, err = ParseAmount(".25", 2)
		require.NoError(t, err)
		assert.Equal(t, uint64(25), amount)

		amount, err = ParseAmount("7.", 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), amount)
	})

	t.Run("Zero is not a stake", func(t *testing.T) {
		for _, input := range []string{"0", "0.000", ".", "0."} {
			_, err := ParseAmount(input, 3)

			require.ErrorIs(t, err, apperror.ErrZeroStake, input)
		}
	})

	t.Run("Non numeric input", func(t *testing.T) {
		for _, input := range []string{"", "-1", "1.2.3", "ten"} {
			_, err := ParseAmount(input, 3)

			require.ErrorIs(t, err, apperror.ErrInvalidNumber, input)
		}
	})

	t.Run("Amounts beyond 64 bits", func(t *testing.T) {
		_, err := ParseAmount("18446744073709551616", 0)

		require.ErrorIs(t, err, apperror.ErrInvalidNumber)
	})
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount   uint64
		decimals uint8
		expected string
	}{
		{1_500_000, 6, "1.5"},
		{1, 6, "0.000001"},
		{0, 6, "0"},
		{42, 0, "42"},
		{2_000, 3, "2"},
	}

	for _, tc := range cases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatAmount(tc.amount, tc.decimals))
		})
	}
}
