// Package funding picks the token account that posts a stake and converts
// human amounts into base units.
package funding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/validate"
)

// Qualify keeps the candidates holding at least required base units.
// No candidates at all and no candidate with enough balance are reported
// as different errors.
func Qualify(candidates []entity.FundingAccount, required uint64) ([]entity.FundingAccount, error) {
	if len(candidates) == 0 {
		return nil, apperror.ErrNoTokenAccount
	}

	qualifying := make([]entity.FundingAccount, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Balance >= required {
			qualifying = append(qualifying, candidate)
		}
	}

	if len(qualifying) == 0 {
		return nil, fmt.Errorf("%w: %d accounts below %d", apperror.ErrInsufficientFunds, len(candidates), required)
	}

	return qualifying, nil
}

// NeedsChoice - whether Pick has to be given an answer.
func NeedsChoice(qualifying []entity.FundingAccount) bool {
	return len(qualifying) > 1
}

// Pick selects one of the qualifying accounts. A single account is taken
// as is; otherwise choice is a 1-based position in qualifying.
func Pick(qualifying []entity.FundingAccount, choice string) (entity.FundingAccount, error) {
	switch len(qualifying) {
	case 0:
		return entity.FundingAccount{}, apperror.ErrInsufficientFunds
	case 1:
		return qualifying[0], nil
	}

	choice = strings.TrimSpace(choice)

	position, err := strconv.Atoi(choice)
	if err != nil || !validate.IsValidNumber(choice) {
		return entity.FundingAccount{}, fmt.Errorf("%w: %q is not a number", apperror.ErrInvalidChoice, choice)
	}

	if position < 1 || position > len(qualifying) {
		return entity.FundingAccount{}, fmt.Errorf("%w: %d is not between 1 and %d", apperror.ErrInvalidChoice, position, len(qualifying))
	}

	return qualifying[position-1], nil
}
