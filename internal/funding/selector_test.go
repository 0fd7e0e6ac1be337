package funding

import (
	"testing"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func account(addr string, balance uint64) entity.FundingAccount {
	return entity.FundingAccount{
		Address: entity.Address(addr),
		Mint:    "mint",
		Owner:   "owner",
		Balance: balance,
	}
}

func TestQualify(t *testing.T) {
	t.Run("Keeps only accounts meeting the requirement", func(t *testing.T) {
		// Given: one poor and one rich account
		candidates := []entity.FundingAccount{account("poor", 5), account("rich", 15)}

		// When: qualifying them for a stake of 10
		qualifying, err := Qualify(candidates, 10)

		// Then: only the rich one remains and it needs no choice
		require.NoError(t, err)
		assert.Equal(t, []entity.FundingAccount{account("rich", 15)}, qualifying)
		assert.False(t, NeedsChoice(qualifying))

		picked, err := Pick(qualifying, "")
		require.NoError(t, err)
		assert.Equal(t, account("rich", 15), picked)
	})

	t.Run("Balance equal to the requirement qualifies", func(t *testing.T) {
		qualifying, err := Qualify([]entity.FundingAccount{account("exact", 10)}, 10)

		require.NoError(t, err)
		assert.Len(t, qualifying, 1)
	})

	t.Run("No candidates is reported as no account", func(t *testing.T) {
		// When: qualifying an empty set
		_, err := Qualify(nil, 10)

		// Then: the caller learns no account exists
		require.ErrorIs(t, err, apperror.ErrNoTokenAccount)
		assert.NotErrorIs(t, err, apperror.ErrInsufficientFunds)
	})

	t.Run("All candidates below the requirement is reported as insufficient funds", func(t *testing.T) {
		// Given: accounts that all hold too little
		candidates := []entity.FundingAccount{account("a", 1), account("b", 9)}

		// When: qualifying them for 10
		_, err := Qualify(candidates, 10)

		// Then: the caller learns the funds are short
		require.ErrorIs(t, err, apperror.ErrInsufficientFunds)
		assert.NotErrorIs(t, err, apperror.ErrNoTokenAccount)
	})
}

func TestPick(t *testing.T) {
	qualifying := []entity.FundingAccount{account("first", 20), account("second", 30), account("third", 40)}

	t.Run("Multiple accounts need a choice", func(t *testing.T) {
		assert.True(t, NeedsChoice(qualifying))
	})

	t.Run("Choice is 1-based", func(t *testing.T) {
		picked, err := Pick(qualifying, "2")

		require.NoError(t, err)
		assert.Equal(t, entity.Address("second"), picked.Address)
	})

	t.Run("Surrounding spaces are ignored", func(t *testing.T) {
		picked, err := Pick(qualifying, " 3 ")

		require.NoError(t, err)
		assert.Equal(t, entity.Address("third"), picked.Address)
	})

	t.Run("Out of range or non numeric choices are errors", func(t *testing.T) {
		for _, choice := range []string{"0", "4", "-1", "abc", "", "1.5"} {
			_, err := Pick(qualifying, choice)

			require.ErrorIs(t, err, apperror.ErrInvalidChoice, choice)
		}
	})

	t.Run("Signed choices are errors", func(t *testing.T) {
		for _, choice := range []string{"+2", "+1", " -0 "} {
			// When: the choice carries a sign Atoi would accept
			_, err := Pick(qualifying, choice)

			// Then: it is rejected like any other non number
			require.ErrorIs(t, err, apperror.ErrInvalidChoice, choice)
		}
	})

	t.Run("Nothing to pick from", func(t *testing.T) {
		_, err := Pick(nil, "1")

		require.ErrorIs(t, err, apperror.ErrInsufficientFunds)
	})
}
