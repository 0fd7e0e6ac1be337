package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
)

var errStillWaiting = errors.New("game state has not changed yet")

// pollGame re-fetches the game on a fixed interval until done accepts a
// snapshot. There is no attempt limit; only ctx stops it. Fetch errors end
// the poll.
func (that *GameManager) pollGame(ctx context.Context, addr entity.Address, done func(*entity.Game) bool) (*entity.Game, error) {
	log := that.logger.With("method", "pollGame", "game", addr)

	var latest *entity.Game
	operation := func() error {
		game, err := that.ledger.FetchGame(ctx, addr)
		if err != nil {
			return backoff.Permanent(err)
		}

		if !done(game) {
			return errStillWaiting
		}

		latest = game
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(that.pollInterval), ctx)
	notify := func(_ error, next time.Duration) {
		log.Debug("game unchanged, polling again", "in", next)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("failed to poll game: %w", err)
	}

	return latest, nil
}
