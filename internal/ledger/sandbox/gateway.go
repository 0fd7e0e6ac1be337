// Package sandbox is a local ledger kept in redis. Two clients pointed at
// the same redis can play each other without a cluster; the game rules run
// here instead of in a deployed program.
package sandbox

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"

	"github.com/decred/base58"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/repository"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/tictactoe"
)

// Authority owns every escrow account, like the program's PDA does.
var Authority = derivedAddress("authority")

type gameRepository interface {
	Save(ctx context.Context, addr entity.Address, game *entity.Game) error
	GetByAddress(ctx context.Context, addr entity.Address) (*entity.Game, error)
	ListByDiscriminator(ctx context.Context, disc entity.Discriminator) ([]entity.GameRecord, error)
	Delete(ctx context.Context, addr entity.Address) error
}

type tokenRepository interface {
	CreateMint(ctx context.Context, mint entity.MintInfo) error
	GetMint(ctx context.Context, addr entity.Address) (*entity.MintInfo, error)
	CreateAccount(ctx context.Context, account entity.FundingAccount) error
	GetAccount(ctx context.Context, addr entity.Address) (*entity.FundingAccount, error)
	ListAccounts(ctx context.Context, owner, mint entity.Address) ([]entity.FundingAccount, error)
	MintTo(ctx context.Context, account entity.Address, amount uint64) error
	Transfer(ctx context.Context, from, to entity.Address, amount uint64) error
	Payout(ctx context.Context, from entity.Address, credits []repository.Credit) error
}

type locker interface {
	Lock(ctx context.Context, name string) (func(context.Context) error, error)
}

// Gateway submits instructions on behalf of signer.
type Gateway struct {
	logger *slog.Logger

	games  gameRepository
	tokens tokenRepository
	locks  locker

	signer entity.Address
}

func NewGateway(logger *slog.Logger, games gameRepository, tokens tokenRepository, locks locker, signer entity.Address) *Gateway {
	return &Gateway{
		logger: logger.With("component", "sandbox-ledger"),
		games:  games,
		tokens: tokens,
		locks:  locks,
		signer: signer,
	}
}

func (that *Gateway) FetchGame(ctx context.Context, addr entity.Address) (*entity.Game, error) {
	return that.games.GetByAddress(ctx, addr)
}

func (that *Gateway) FetchGames(ctx context.Context, disc entity.Discriminator) ([]entity.GameRecord, error) {
	return that.games.ListByDiscriminator(ctx, disc)
}

func (that *Gateway) FetchTokenAccounts(ctx context.Context, owner, mint entity.Address) ([]entity.FundingAccount, error) {
	return that.tokens.ListAccounts(ctx, owner, mint)
}

func (that *Gateway) FetchMint(ctx context.Context, mint entity.Address) (*entity.MintInfo, error) {
	return that.tokens.GetMint(ctx, mint)
}

func (that *Gateway) SubmitCreate(ctx context.Context, playerOne, playerTwo entity.Address, stake uint64, account entity.FundingAccount) (entity.Address, error) {
	log := that.logger.With("method", "SubmitCreate")

	if playerOne != that.signer {
		return "", reject(apperror.ErrNotAuthorized)
	}

	if _, err := that.tokens.GetMint(ctx, account.Mint); err != nil {
		return "", rejectLookup(err)
	}

	game, err := tictactoe.Initialize(playerOne, playerTwo, account.Mint, stake)
	if err != nil {
		return "", reject(err)
	}

	if err = that.checkOwner(ctx, account, game.StakeMint); err != nil {
		return "", err
	}

	escrow, err := that.ensureEscrow(ctx, game.StakeMint)
	if err != nil {
		return "", err
	}

	addr, err := newAddress()
	if err != nil {
		return "", err
	}

	if err = that.tokens.Transfer(ctx, account.Address, escrow, stake); err != nil {
		return "", rejectFunds(err)
	}

	if err = that.games.Save(ctx, addr, game); err != nil {
		if refundErr := that.tokens.Transfer(ctx, escrow, account.Address, stake); refundErr != nil {
			log.Error("failed to refund stake", "account", account.Address, "error", refundErr)
		}
		return "", fmt.Errorf("failed to store game: %w", err)
	}

	log.Info("game initialized", "game", addr, "stake", stake)

	return addr, nil
}

func (that *Gateway) SubmitAccept(ctx context.Context, addr entity.Address, account entity.FundingAccount) error {
	return that.withGame(ctx, addr, func(game *entity.Game) (bool, error) {
		if err := tictactoe.Accept(game, that.signer); err != nil {
			return false, reject(err)
		}

		if err := that.checkOwner(ctx, account, game.StakeMint); err != nil {
			return false, err
		}

		escrow, err := that.ensureEscrow(ctx, game.StakeMint)
		if err != nil {
			return false, err
		}

		if err = that.tokens.Transfer(ctx, account.Address, escrow, game.StakeAmount); err != nil {
			return false, rejectFunds(err)
		}

		return true, nil
	})
}

func (that *Gateway) SubmitMove(ctx context.Context, addr entity.Address, row, column uint8) error {
	return that.withGame(ctx, addr, func(game *entity.Game) (bool, error) {
		if err := tictactoe.MakeTurn(game, that.signer, row, column); err != nil {
			return false, reject(err)
		}
		return true, nil
	})
}

// SubmitClose removes the record, then pays out the escrow atomically; a
// failed payout restores the record. Anyone may close.
func (that *Gateway) SubmitClose(ctx context.Context, addr entity.Address) error {
	log := that.logger.With("method", "SubmitClose", "game", addr)

	release, err := that.locks.Lock(ctx, addr.String())
	if err != nil {
		return err
	}
	defer that.release(ctx, release)

	game, err := that.games.GetByAddress(ctx, addr)
	if err != nil {
		return rejectLookup(err)
	}

	payouts, err := tictactoe.Payouts(game)
	if err != nil {
		return reject(err)
	}

	escrow, err := that.ensureEscrow(ctx, game.StakeMint)
	if err != nil {
		return err
	}

	credits := make([]repository.Credit, len(payouts))
	for i, payout := range payouts {
		accounts, err := that.tokens.ListAccounts(ctx, payout.Player, game.StakeMint)
		if err != nil {
			return fmt.Errorf("failed to list token accounts of %s: %w", payout.Player, err)
		}
		if len(accounts) == 0 {
			return reject(fmt.Errorf("%w: %s", apperror.ErrNoTokenAccount, payout.Player))
		}
		credits[i] = repository.Credit{To: accounts[0].Address, Amount: payout.Amount}
	}

	// a record that still exists has not been paid out.
	if err = that.games.Delete(ctx, addr); err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}

	if err = that.tokens.Payout(ctx, escrow, credits); err != nil {
		if restoreErr := that.games.Save(ctx, addr, game); restoreErr != nil {
			log.Error("failed to restore game after payout failure", "error", restoreErr)
		}
		return fmt.Errorf("failed to pay out escrow: %w", err)
	}

	for _, payout := range payouts {
		log.Info("stake paid out", "player", payout.Player, "amount", payout.Amount)
	}

	return nil
}

// CreateMint registers a new mint with no supply.
func (that *Gateway) CreateMint(ctx context.Context, decimals uint8) (entity.Address, error) {
	addr, err := newAddress()
	if err != nil {
		return "", err
	}

	if err = that.tokens.CreateMint(ctx, entity.MintInfo{Address: addr, Decimals: decimals}); err != nil {
		return "", err
	}

	that.logger.Info("mint created", "mint", addr, "decimals", decimals)

	return addr, nil
}

// MintTo credits owner's first account of mint, opening one if needed.
func (that *Gateway) MintTo(ctx context.Context, mint, owner entity.Address, amount uint64) (entity.Address, error) {
	if _, err := that.tokens.GetMint(ctx, mint); err != nil {
		return "", err
	}

	accounts, err := that.tokens.ListAccounts(ctx, owner, mint)
	if err != nil {
		return "", fmt.Errorf("failed to list token accounts: %w", err)
	}

	var target entity.Address
	if len(accounts) > 0 {
		target = accounts[0].Address
	} else {
		if target, err = newAddress(); err != nil {
			return "", err
		}
		if err = that.tokens.CreateAccount(ctx, entity.FundingAccount{Address: target, Mint: mint, Owner: owner}); err != nil {
			return "", err
		}
	}

	if err = that.tokens.MintTo(ctx, target, amount); err != nil {
		return "", err
	}

	that.logger.Info("tokens minted", "mint", mint, "account", target, "amount", amount)

	return target, nil
}

// withGame runs update on the locked game and stores it when update asks to.
func (that *Gateway) withGame(ctx context.Context, addr entity.Address, update func(*entity.Game) (bool, error)) error {
	release, err := that.locks.Lock(ctx, addr.String())
	if err != nil {
		return err
	}
	defer that.release(ctx, release)

	game, err := that.games.GetByAddress(ctx, addr)
	if err != nil {
		return rejectLookup(err)
	}

	changed, err := update(game)
	if err != nil {
		return err
	}

	if changed {
		if err = that.games.Save(ctx, addr, game); err != nil {
			return fmt.Errorf("failed to store game: %w", err)
		}
	}

	return nil
}

func (that *Gateway) release(ctx context.Context, release func(context.Context) error) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		that.logger.Warn("failed to release game lock", "error", err)
	}
}

// checkOwner mirrors the token account constraints: signer's account of the stake mint.
func (that *Gateway) checkOwner(ctx context.Context, account entity.FundingAccount, mint entity.Address) error {
	stored, err := that.tokens.GetAccount(ctx, account.Address)
	if err != nil {
		return rejectLookup(err)
	}

	if stored.Owner != that.signer || stored.Mint != mint {
		return reject(apperror.ErrNotAuthorized)
	}

	return nil
}

func (that *Gateway) ensureEscrow(ctx context.Context, mint entity.Address) (entity.Address, error) {
	escrow := derivedAddress("escrow", mint.String())

	_, err := that.tokens.GetAccount(ctx, escrow)
	if err == nil {
		return escrow, nil
	}
	if !errors.Is(err, repository.ErrTokenAccountNotFound) {
		return "", err
	}

	release, err := that.locks.Lock(ctx, escrow.String())
	if err != nil {
		return "", err
	}
	defer that.release(ctx, release)

	if _, err = that.tokens.GetAccount(ctx, escrow); err == nil {
		return escrow, nil
	}

	if err = that.tokens.CreateAccount(ctx, entity.FundingAccount{Address: escrow, Mint: mint, Owner: Authority}); err != nil {
		return "", err
	}

	return escrow, nil
}

func reject(err error) error {
	return fmt.Errorf("%w: %w", apperror.ErrSubmissionRejected, err)
}

// rejectLookup turns a missing account into a rejection; storage failures pass through.
func rejectLookup(err error) error {
	switch {
	case errors.Is(err, apperror.ErrGameNotFound),
		errors.Is(err, apperror.ErrMintNotFound),
		errors.Is(err, repository.ErrTokenAccountNotFound):
		return reject(err)
	default:
		return err
	}
}

func rejectFunds(err error) error {
	if errors.Is(err, apperror.ErrInsufficientFunds) {
		return reject(err)
	}
	return err
}

func newAddress() (entity.Address, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate address: %w", err)
	}

	return entity.Address(base58.Encode(raw)), nil
}

func derivedAddress(seeds ...string) entity.Address {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write([]byte(seed))
	}

	return entity.Address(base58.Encode(h.Sum(nil)))
}
