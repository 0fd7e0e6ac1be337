package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
)

var (
	ErrTokenAccountNotFound = errors.New("token account not found")
	ErrAmountTooLarge       = errors.New("amount exceeds the largest storable balance")
)

// transferScript moves ARGV[1] units from KEYS[1] to KEYS[2] or returns -1
// when the source holds less.
var transferScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if balance < amount then
	return -1
end
redis.call('DECRBY', KEYS[1], ARGV[1])
redis.call('INCRBY', KEYS[2], ARGV[1])
return balance - amount
`)

// payoutScript debits KEYS[1] by the sum of ARGV and credits ARGV[i] to
// KEYS[i+1], or changes nothing and returns -1 when the source holds less.
var payoutScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local total = 0
for i = 1, #ARGV do
	total = total + tonumber(ARGV[i])
end
if balance < total then
	return -1
end
for i = 1, #ARGV do
	redis.call('DECRBY', KEYS[1], ARGV[i])
	redis.call('INCRBY', KEYS[i + 1], ARGV[i])
end
return balance - total
`)

// Credit is one leg of a payout.
type Credit struct {
	To     entity.Address
	Amount uint64
}

type TokenRepository interface {
	CreateMint(ctx context.Context, mint entity.MintInfo) error
	GetMint(ctx context.Context, addr entity.Address) (*entity.MintInfo, error)

	CreateAccount(ctx context.Context, account entity.FundingAccount) error
	GetAccount(ctx context.Context, addr entity.Address) (*entity.FundingAccount, error)
	ListAccounts(ctx context.Context, owner, mint entity.Address) ([]entity.FundingAccount, error)

	MintTo(ctx context.Context, account entity.Address, amount uint64) error
	Transfer(ctx context.Context, from, to entity.Address, amount uint64) error
	Payout(ctx context.Context, from entity.Address, credits []Credit) error
}

type dbToken struct {
	client *redis.Client
}

func NewTokenRepository(client *redis.Client) TokenRepository {
	return &dbToken{
		client: client,
	}
}

type dbMint struct {
	Address  entity.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

type dbAccount struct {
	Address entity.Address `json:"address"`
	Mint    entity.Address `json:"mint"`
	Owner   entity.Address `json:"owner"`
}

func mintKey(addr entity.Address) string    { return "mint:" + addr.String() }
func supplyKey(addr entity.Address) string  { return "supply:" + addr.String() }
func accountKey(addr entity.Address) string { return "token:" + addr.String() }
func balanceKey(addr entity.Address) string { return "balance:" + addr.String() }

func ownerKey(owner, mint entity.Address) string {
	return "owner:" + owner.String() + ":" + mint.String()
}

func (that *dbToken) CreateMint(ctx context.Context, mint entity.MintInfo) error {
	mintJSON, err := json.Marshal(dbMint{Address: mint.Address, Decimals: mint.Decimals})
	if err != nil {
		return fmt.Errorf("could not marshal mint: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, mintKey(mint.Address), mintJSON, 0)
		pipe.Set(ctx, supplyKey(mint.Address), mint.Supply, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set mint: %w", err)
	}

	return nil
}

func (that *dbToken) GetMint(ctx context.Context, addr entity.Address) (*entity.MintInfo, error) {
	var mintCmd, supplyCmd *redis.StringCmd
	_, err := that.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		mintCmd = pipe.Get(ctx, mintKey(addr))
		supplyCmd = pipe.Get(ctx, supplyKey(addr))
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrMintNotFound, addr)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get mint: %w", err)
	}

	var stored dbMint
	if err = json.Unmarshal([]byte(mintCmd.Val()), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mint: %w", err)
	}

	supply, err := supplyCmd.Uint64()
	if err != nil {
		return nil, fmt.Errorf("failed to read mint supply: %w", err)
	}

	return &entity.MintInfo{Address: stored.Address, Decimals: stored.Decimals, Supply: supply}, nil
}

// CreateAccount registers an empty account and indexes it by owner and mint.
func (that *dbToken) CreateAccount(ctx context.Context, account entity.FundingAccount) error {
	accountJSON, err := json.Marshal(dbAccount{Address: account.Address, Mint: account.Mint, Owner: account.Owner})
	if err != nil {
		return fmt.Errorf("could not marshal token account: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, accountKey(account.Address), accountJSON, 0)
		pipe.Set(ctx, balanceKey(account.Address), 0, 0)
		pipe.RPush(ctx, ownerKey(account.Owner, account.Mint), account.Address.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set token account: %w", err)
	}

	return nil
}

func (that *dbToken) GetAccount(ctx context.Context, addr entity.Address) (*entity.FundingAccount, error) {
	accounts, err := that.load(ctx, []string{addr.String()})
	if err != nil {
		return nil, err
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTokenAccountNotFound, addr)
	}

	return &accounts[0], nil
}

// ListAccounts returns the accounts of owner for mint in creation order.
func (that *dbToken) ListAccounts(ctx context.Context, owner, mint entity.Address) ([]entity.FundingAccount, error) {
	addrs, err := that.client.LRange(ctx, ownerKey(owner, mint), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list token accounts: %w", err)
	}

	return that.load(ctx, addrs)
}

func (that *dbToken) load(ctx context.Context, addrs []string) ([]entity.FundingAccount, error) {
	accountCmds := make([]*redis.StringCmd, len(addrs))
	balanceCmds := make([]*redis.StringCmd, len(addrs))

	_, err := that.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, addr := range addrs {
			accountCmds[i] = pipe.Get(ctx, accountKey(entity.Address(addr)))
			balanceCmds[i] = pipe.Get(ctx, balanceKey(entity.Address(addr)))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get token accounts: %w", err)
	}

	accounts := make([]entity.FundingAccount, 0, len(addrs))
	for i := range addrs {
		if errors.Is(accountCmds[i].Err(), redis.Nil) {
			continue
		}

		var stored dbAccount
		if err = json.Unmarshal([]byte(accountCmds[i].Val()), &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal token account: %w", err)
		}

		balance, err := strconv.ParseUint(balanceCmds[i].Val(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to read balance of %s: %w", stored.Address, err)
		}

		accounts = append(accounts, entity.FundingAccount{
			Address: stored.Address,
			Mint:    stored.Mint,
			Owner:   stored.Owner,
			Balance: balance,
		})
	}

	return accounts, nil
}

// MintTo credits account and grows the supply of its mint.
func (that *dbToken) MintTo(ctx context.Context, addr entity.Address, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	account, err := that.GetAccount(ctx, addr)
	if err != nil {
		return err
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, balanceKey(addr), int64(amount))
		pipe.IncrBy(ctx, supplyKey(account.Mint), int64(amount))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mint tokens: %w", err)
	}

	return nil
}

// Transfer moves amount between two accounts atomically.
func (that *dbToken) Transfer(ctx context.Context, from, to entity.Address, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	remaining, err := transferScript.Run(ctx, that.client,
		[]string{balanceKey(from), balanceKey(to)},
		strconv.FormatUint(amount, 10),
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to transfer tokens: %w", err)
	}

	if remaining < 0 {
		return fmt.Errorf("%w: %s holds less than %d", apperror.ErrInsufficientFunds, from, amount)
	}

	return nil
}

// Payout applies every credit from one source or none of them.
func (that *dbToken) Payout(ctx context.Context, from entity.Address, credits []Credit) error {
	keys := make([]string, 0, len(credits)+1)
	amounts := make([]any, 0, len(credits))

	keys = append(keys, balanceKey(from))
	for _, credit := range credits {
		if err := checkAmount(credit.Amount); err != nil {
			return err
		}
		keys = append(keys, balanceKey(credit.To))
		amounts = append(amounts, strconv.FormatUint(credit.Amount, 10))
	}

	remaining, err := payoutScript.Run(ctx, that.client, keys, amounts...).Int64()
	if err != nil {
		return fmt.Errorf("failed to pay out tokens: %w", err)
	}

	if remaining < 0 {
		return fmt.Errorf("%w: %s can not cover the payout", apperror.ErrInsufficientFunds, from)
	}

	return nil
}

// redis integers are signed 64 bit.
func checkAmount(amount uint64) error {
	if amount > math.MaxInt64 {
		return fmt.Errorf("%w: %d", ErrAmountTooLarge, amount)
	}
	return nil
}
