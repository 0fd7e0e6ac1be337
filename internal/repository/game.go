package repository

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
)

const scanBatch = 100

type GameRepository interface {
	Save(ctx context.Context, addr entity.Address, game *entity.Game) error
	GetByAddress(ctx context.Context, addr entity.Address) (*entity.Game, error)
	ListByDiscriminator(ctx context.Context, disc entity.Discriminator) ([]entity.GameRecord, error)
	Delete(ctx context.Context, addr entity.Address) error
}

type dbGame struct {
	client *redis.Client
}

func NewGameRepository(client *redis.Client) GameRepository {
	return &dbGame{
		client: client,
	}
}

// accountPrefix groups records by discriminator the way program accounts are.
func accountPrefix(disc entity.Discriminator) string {
	return "account:" + hex.EncodeToString(disc[:]) + ":"
}

func gameKey(addr entity.Address) string {
	return accountPrefix(entity.GameDiscriminator) + addr.String()
}

func (that *dbGame) Save(ctx context.Context, addr entity.Address, game *entity.Game) error {
	gameJSON, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	if err = that.client.Set(ctx, gameKey(addr), gameJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to set game: %w", err)
	}

	return nil
}

func (that *dbGame) GetByAddress(ctx context.Context, addr entity.Address) (*entity.Game, error) {
	response, err := that.client.Get(ctx, gameKey(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrGameNotFound, addr)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get game by address: %w", err)
	}

	var existingGame entity.Game
	if err = json.Unmarshal([]byte(response), &existingGame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}

	return &existingGame, nil
}

// ListByDiscriminator returns every game stored under disc. Records
// deleted between the scan and the read are skipped.
func (that *dbGame) ListByDiscriminator(ctx context.Context, disc entity.Discriminator) ([]entity.GameRecord, error) {
	prefix := accountPrefix(disc)

	var keys []string
	iter := that.client.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan games: %w", err)
	}

	if len(keys) == 0 {
		return nil, nil
	}

	values, err := that.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get games: %w", err)
	}

	records := make([]entity.GameRecord, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var game entity.Game
		if err = json.Unmarshal([]byte(raw), &game); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game %s: %w", keys[i], err)
		}

		records = append(records, entity.GameRecord{
			Address: entity.Address(keys[i][len(prefix):]),
			Game:    &game,
		})
	}

	return records, nil
}

func (that *dbGame) Delete(ctx context.Context, addr entity.Address) error {
	deleted, err := that.client.Del(ctx, gameKey(addr)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}

	if deleted == 0 {
		return fmt.Errorf("%w: %s", apperror.ErrGameNotFound, addr)
	}

	return nil
}
