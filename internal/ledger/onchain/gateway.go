// Package onchain talks to the deployed tic-tac-toe program over Solana
// JSON-RPC.
package onchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
)

const (
	confirmInterval = 500 * time.Millisecond
	confirmAttempts = 120
)

var errNotConfirmed = errors.New("transaction not confirmed yet")

type rpcClient interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

type Options struct {
	ProgramID  string
	Cluster    string
	RPCURL     string
	Commitment string
}

// Gateway reads program accounts and submits instructions signed by payer.
type Gateway struct {
	logger *slog.Logger

	client     rpcClient
	payer      solana.PrivateKey
	program    solana.PublicKey
	commitment rpc.CommitmentType

	cluster string
	rpcURL  string

	confirmInterval time.Duration
}

func NewGateway(logger *slog.Logger, client rpcClient, payer solana.PrivateKey, opts Options) (*Gateway, error) {
	program, err := solana.PublicKeyFromBase58(opts.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", opts.ProgramID, err)
	}

	commitment := rpc.CommitmentType(opts.Commitment)
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}

	return &Gateway{
		logger:     logger.With("component", "onchain-ledger"),
		client:     client,
		payer:      payer,
		program:    program,
		commitment: commitment,
		cluster:    opts.Cluster,
		rpcURL:     opts.RPCURL,

		confirmInterval: confirmInterval,
	}, nil
}

func (that *Gateway) FetchGame(ctx context.Context, addr entity.Address) (*entity.Game, error) {
	key, err := publicKey(addr)
	if err != nil {
		return nil, err
	}

	info, err := that.client.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: that.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrGameNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game account: %w", err)
	}

	if info.Value.Owner != that.program {
		return nil, fmt.Errorf("%w: %s is not owned by the game program", apperror.ErrGameNotFound, addr)
	}

	game, err := decodeGame(info.Value.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("failed to decode game %s: %w", addr, err)
	}

	return game, nil
}

// FetchGames lists every program account whose data starts with disc.
func (that *Gateway) FetchGames(ctx context.Context, disc entity.Discriminator) ([]entity.GameRecord, error) {
	log := that.logger.With("method", "FetchGames")

	accounts, err := that.client.GetProgramAccountsWithOpts(ctx, that.program, &rpc.GetProgramAccountsOpts{
		Commitment: that.commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{{
			Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(disc[:])},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get program accounts: %w", err)
	}

	records := make([]entity.GameRecord, 0, len(accounts))
	for _, account := range accounts {
		game, err := decodeGame(account.Account.Data.GetBinary())
		if err != nil {
			log.Warn("skipping undecodable account", "account", account.Pubkey, "error", err)
			continue
		}

		records = append(records, entity.GameRecord{Address: entity.Address(account.Pubkey.String()), Game: game})
	}

	return records, nil
}

func (that *Gateway) FetchTokenAccounts(ctx context.Context, owner, mint entity.Address) ([]entity.FundingAccount, error) {
	ownerKey, err := publicKey(owner)
	if err != nil {
		return nil, err
	}

	mintKey, err := publicKey(mint)
	if err != nil {
		return nil, err
	}

	result, err := that.client.GetTokenAccountsByOwner(ctx, ownerKey,
		&rpc.GetTokenAccountsConfig{Mint: &mintKey},
		&rpc.GetTokenAccountsOpts{Commitment: that.commitment, Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts: %w", err)
	}

	accounts := make([]entity.FundingAccount, 0, len(result.Value))
	for _, keyed := range result.Value {
		var account token.Account
		if err = bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&account); err != nil {
			return nil, fmt.Errorf("failed to decode token account %s: %w", keyed.Pubkey, err)
		}

		accounts = append(accounts, entity.FundingAccount{
			Address: entity.Address(keyed.Pubkey.String()),
			Mint:    entity.Address(account.Mint.String()),
			Owner:   entity.Address(account.Owner.String()),
			Balance: account.Amount,
		})
	}

	return accounts, nil
}

func (that *Gateway) FetchMint(ctx context.Context, mint entity.Address) (*entity.MintInfo, error) {
	key, err := publicKey(mint)
	if err != nil {
		return nil, err
	}

	info, err := that.client.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: that.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrMintNotFound, mint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mint account: %w", err)
	}

	if info.Value.Owner != solana.TokenProgramID {
		return nil, fmt.Errorf("%w: %s is not a token mint", apperror.ErrMintNotFound, mint)
	}

	var decoded token.Mint
	if err = bin.NewBinDecoder(info.Value.Data.GetBinary()).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperror.ErrMintNotFound, mint, err)
	}

	return &entity.MintInfo{Address: mint, Decimals: decoded.Decimals, Supply: decoded.Supply}, nil
}

// SubmitCreate opens a game under a fresh keypair that co-signs the transaction.
func (that *Gateway) SubmitCreate(ctx context.Context, playerOne, playerTwo entity.Address, stake uint64, account entity.FundingAccount) (entity.Address, error) {
	keys, err := publicKeys(playerOne, playerTwo, account.Mint, account.Address)
	if err != nil {
		return "", err
	}

	accounts, err := deriveAccounts(that.program, keys[2])
	if err != nil {
		return "", err
	}

	gameKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate game keypair: %w", err)
	}

	instruction, err := accounts.initialize(keys[0], keys[1], gameKey.PublicKey(), keys[3], stake)
	if err != nil {
		return "", err
	}

	if err = that.submit(ctx, "initialize", instruction, gameKey); err != nil {
		return "", err
	}

	return entity.Address(gameKey.PublicKey().String()), nil
}

func (that *Gateway) SubmitAccept(ctx context.Context, game entity.Address, account entity.FundingAccount) error {
	keys, err := publicKeys(game, account.Mint, account.Address)
	if err != nil {
		return err
	}

	accounts, err := deriveAccounts(that.program, keys[1])
	if err != nil {
		return err
	}

	instruction, err := accounts.accept(that.payer.PublicKey(), keys[0], keys[2])
	if err != nil {
		return err
	}

	return that.submit(ctx, "accept", instruction)
}

func (that *Gateway) SubmitMove(ctx context.Context, game entity.Address, row, column uint8) error {
	key, err := publicKey(game)
	if err != nil {
		return err
	}

	instruction, err := play(that.program, that.payer.PublicKey(), key, row, column)
	if err != nil {
		return err
	}

	return that.submit(ctx, "play", instruction)
}

// SubmitClose pays each player into their first token account of the stake mint.
func (that *Gateway) SubmitClose(ctx context.Context, game entity.Address) error {
	current, err := that.FetchGame(ctx, game)
	if err != nil {
		return err
	}

	fundingOne, err := that.firstTokenAccount(ctx, current.Players[0], current.StakeMint)
	if err != nil {
		return err
	}

	fundingTwo, err := that.firstTokenAccount(ctx, current.Players[1], current.StakeMint)
	if err != nil {
		return err
	}

	keys, err := publicKeys(game, current.Players[0], current.Players[1], current.StakeMint, fundingOne, fundingTwo)
	if err != nil {
		return err
	}

	accounts, err := deriveAccounts(that.program, keys[3])
	if err != nil {
		return err
	}

	instruction, err := accounts.close(keys[0], keys[1], keys[2], keys[4], keys[5])
	if err != nil {
		return err
	}

	return that.submit(ctx, "close", instruction)
}

func (that *Gateway) firstTokenAccount(ctx context.Context, owner, mint entity.Address) (entity.Address, error) {
	accounts, err := that.FetchTokenAccounts(ctx, owner, mint)
	if err != nil {
		return "", err
	}

	if len(accounts) == 0 {
		return "", fmt.Errorf("%w: %s holds no account of %s", apperror.ErrNoTokenAccount, owner, mint)
	}

	return accounts[0].Address, nil
}

// submit signs instruction with the payer and extra signers, sends it and
// waits for confirmation.
func (that *Gateway) submit(ctx context.Context, name string, instruction solana.Instruction, signers ...solana.PrivateKey) error {
	log := that.logger.With("method", "submit", "instruction", name)

	latest, err := that.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		latest.Value.Blockhash,
		solana.TransactionPayer(that.payer.PublicKey()),
	)
	if err != nil {
		return fmt.Errorf("failed to build %s transaction: %w", name, err)
	}

	keys := append([]solana.PrivateKey{that.payer}, signers...)
	if _, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(key) {
				return &keys[i]
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to sign %s transaction: %w", name, err)
	}

	signature, err := that.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: that.commitment,
	})
	if err != nil {
		return fmt.Errorf("failed to send %s transaction: %w", name, classify(err))
	}

	log.Info("transaction sent", "signature", signature, "explorer", that.explorerLink(signature))

	if err = that.confirm(ctx, signature); err != nil {
		return fmt.Errorf("failed to confirm %s transaction: %w", name, err)
	}

	return nil
}

// confirm polls the signature status until it reaches the gateway's
// commitment or fails.
func (that *Gateway) confirm(ctx context.Context, signature solana.Signature) error {
	operation := func() error {
		result, err := that.client.GetSignatureStatuses(ctx, false, signature)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to get signature status: %w", err))
		}

		if len(result.Value) == 0 || result.Value[0] == nil {
			return errNotConfirmed
		}

		status := result.Value[0]
		if status.Err != nil {
			return backoff.Permanent(statusError(status.Err))
		}

		if !reached(status.ConfirmationStatus, that.commitment) {
			return errNotConfirmed
		}

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(that.confirmInterval), confirmAttempts),
		ctx,
	)

	return backoff.Retry(operation, policy)
}

func reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return commitment != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return commitment == rpc.CommitmentProcessed
	default:
		return false
	}
}

func (that *Gateway) explorerLink(signature solana.Signature) string {
	link := "https://explorer.solana.com/tx/" + signature.String()

	switch that.cluster {
	case "", "mainnet-beta":
		return link
	case "custom":
		return link + "?cluster=custom&customUrl=" + url.QueryEscape(that.rpcURL)
	default:
		return link + "?cluster=" + url.QueryEscape(that.cluster)
	}
}

func publicKeys(addrs ...entity.Address) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, len(addrs))
	for i, addr := range addrs {
		key, err := publicKey(addr)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	return keys, nil
}
