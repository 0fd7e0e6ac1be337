package funding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/validate"
)

// ParseAmount converts a decimal string such as "1.5" into base units of a
// mint with the given precision. The conversion is exact.
func ParseAmount(input string, decimals uint8) (uint64, error) {
	input = strings.TrimSpace(input)
	if !validate.IsValidNumber(input) {
		return 0, fmt.Errorf("%w: %q", apperror.ErrInvalidNumber, input)
	}

	whole, fraction, _ := strings.Cut(input, ".")
	if len(fraction) > int(decimals) {
		return 0, fmt.Errorf("%w: %d decimals given, at most %d allowed", apperror.ErrTooManyDecimals, len(fraction), decimals)
	}

	digits := whole + fraction + strings.Repeat("0", int(decimals)-len(fraction))
	if digits == "" {
		return 0, apperror.ErrZeroStake
	}

	amount, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q out of range", apperror.ErrInvalidNumber, input)
	}

	if amount == 0 {
		return 0, apperror.ErrZeroStake
	}

	return amount, nil
}

// FormatAmount renders base units as a decimal string without trailing zeros.
func FormatAmount(amount uint64, decimals uint8) string {
	digits := strconv.FormatUint(amount, 10)
	if decimals == 0 {
		return digits
	}

	width := int(decimals) + 1
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}

	point := len(digits) - int(decimals)
	whole, fraction := digits[:point], strings.TrimRight(digits[point:], "0")
	if fraction == "" {
		return whole
	}

	return whole + "." + fraction
}
