package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/config"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/funding"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/ledger/onchain"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/ledger/sandbox"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/repository"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/transport/cli"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/validate"
)

var (
	ErrAddrNotFound   = errors.New("redis address string is empty")
	ErrSandboxOnly    = errors.New("command needs the sandbox ledger backend")
	ErrInvalidKeypair = errors.New("check that the file content is a valid keypair")
)

const menu = "What would you like to do?\n1.Start a new game\n2.Accept a game\n3.Resume a game"

// ledgerGateway is what both ledger backends offer the game manager.
type ledgerGateway interface {
	FetchGame(ctx context.Context, addr entity.Address) (*entity.Game, error)
	FetchGames(ctx context.Context, disc entity.Discriminator) ([]entity.GameRecord, error)
	FetchTokenAccounts(ctx context.Context, owner, mint entity.Address) ([]entity.FundingAccount, error)
	FetchMint(ctx context.Context, mint entity.Address) (*entity.MintInfo, error)

	SubmitCreate(ctx context.Context, playerOne, playerTwo entity.Address, stake uint64, account entity.FundingAccount) (entity.Address, error)
	SubmitAccept(ctx context.Context, game entity.Address, account entity.FundingAccount) error
	SubmitMove(ctx context.Context, game entity.Address, row, column uint8) error
	SubmitClose(ctx context.Context, game entity.Address) error
}

// RunApp plays one action; zero shows the menu first.
func RunApp(logger *slog.Logger, conf *config.Config, keypairPath string, action usecase.Action) error {
	log := logger.With("component", "app")

	ctx, cancel := signalContext(log)
	defer cancel()

	payer, err := loadKeypair(keypairPath, conf.KeypairPath)
	if err != nil {
		return err
	}

	player := entity.Address(payer.PublicKey().String())
	view := cli.NewPresenter(os.Stdout)
	view.Info("User: %s", player)

	ledger, closeLedger, err := openLedger(ctx, logger, conf, payer)
	if err != nil {
		return err
	}
	defer closeLedger()

	prompt := cli.NewPrompter()
	manager := usecase.NewGameManager(logger, ledger, prompt, view, player, conf.PollInterval)

	switch action {
	case usecase.ActionNewGame:
		err = manager.NewGame(ctx)
	case usecase.ActionAcceptGame:
		err = manager.AcceptGame(ctx)
	case usecase.ActionResumeGame:
		err = manager.ResumeGame(ctx)
	default:
		view.Info(menu)

		var choice string
		if choice, err = prompt.Ask(ctx, "Enter your choice: "); err == nil {
			err = manager.Run(ctx, choice)
		}
	}

	if errors.Is(err, context.Canceled) {
		log.Info("Application context canceled, shutting down")
		return nil
	}

	return err
}

// MintSandboxToken creates a mint on the sandbox ledger and prints its address.
func MintSandboxToken(logger *slog.Logger, conf *config.Config, keypairPath string, decimals uint8) error {
	return withSandbox(logger, conf, keypairPath, func(ctx context.Context, gateway *sandbox.Gateway, _ entity.Address) error {
		mint, err := gateway.CreateMint(ctx, decimals)
		if err != nil {
			return fmt.Errorf("failed to create mint: %w", err)
		}

		cli.NewPresenter(os.Stdout).Info("Created mint %s with %d decimals", mint, decimals)

		return nil
	})
}

// AirdropSandboxToken credits amount of mint to owner, the local player when owner is empty.
func AirdropSandboxToken(logger *slog.Logger, conf *config.Config, keypairPath, mint, amount, owner string) error {
	return withSandbox(logger, conf, keypairPath, func(ctx context.Context, gateway *sandbox.Gateway, player entity.Address) error {
		if !validate.IsValidAddress(mint) {
			return fmt.Errorf("invalid mint %q", mint)
		}

		recipient := player
		if owner != "" {
			if !validate.IsValidAddress(owner) {
				return fmt.Errorf("invalid owner %q", owner)
			}
			recipient = entity.Address(owner)
		}

		info, err := gateway.FetchMint(ctx, entity.Address(mint))
		if err != nil {
			return err
		}

		units, err := funding.ParseAmount(amount, info.Decimals)
		if err != nil {
			return err
		}

		account, err := gateway.MintTo(ctx, info.Address, recipient, units)
		if err != nil {
			return fmt.Errorf("failed to mint tokens: %w", err)
		}

		cli.NewPresenter(os.Stdout).Info("Credited %s tokens to account %s of %s", funding.FormatAmount(units, info.Decimals), account, recipient)

		return nil
	})
}

func withSandbox(logger *slog.Logger, conf *config.Config, keypairPath string, run func(context.Context, *sandbox.Gateway, entity.Address) error) error {
	if conf.Ledger.Backend != config.BackendSandbox {
		return fmt.Errorf("%w: backend is %q", ErrSandboxOnly, conf.Ledger.Backend)
	}

	ctx, cancel := signalContext(logger.With("component", "app"))
	defer cancel()

	payer, err := loadKeypair(keypairPath, conf.KeypairPath)
	if err != nil {
		return err
	}
	player := entity.Address(payer.PublicKey().String())

	gateway, closeStorage, err := openSandbox(ctx, logger, conf, player)
	if err != nil {
		return err
	}
	defer closeStorage()

	return run(ctx, gateway, player)
}

func openLedger(ctx context.Context, logger *slog.Logger, conf *config.Config, payer solana.PrivateKey) (ledgerGateway, func(), error) {
	switch conf.Ledger.Backend {
	case config.BackendSandbox:
		gateway, closeStorage, err := openSandbox(ctx, logger, conf, entity.Address(payer.PublicKey().String()))
		if err != nil {
			return nil, nil, err
		}

		return gateway, closeStorage, nil
	default:
		gateway, err := onchain.NewGateway(logger, rpc.New(conf.Ledger.RPCURL), payer, onchain.Options{
			ProgramID:  conf.Ledger.ProgramID,
			Cluster:    conf.Ledger.Cluster,
			RPCURL:     conf.Ledger.RPCURL,
			Commitment: conf.Ledger.Commitment,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create on-chain ledger: %w", err)
		}

		return gateway, func() {}, nil
	}
}

func openSandbox(ctx context.Context, logger *slog.Logger, conf *config.Config, signer entity.Address) (*sandbox.Gateway, func(), error) {
	if conf.Redis.Host == "" {
		return nil, nil, ErrAddrNotFound
	}
	redisAddrString := conf.Redis.GetRedisAddr()

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	gateway := sandbox.NewGateway(
		logger,
		repository.NewGameRepository(redisStorage.Connection),
		repository.NewTokenRepository(redisStorage.Connection),
		repository.NewLocker(redisStorage.Connection),
		signer,
	)

	closeStorage := func() {
		if err := redisStorage.Close(); err != nil {
			logger.Error("could not close redis storage", "error", err)
		}
	}

	return gateway, closeStorage, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(log *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			log.Info("Received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()

	return ctx, cancel
}

// loadKeypair reads a solana-keygen file; path wins over the configured one.
func loadKeypair(path, fallback string) (solana.PrivateKey, error) {
	if path == "" {
		path = fallback
	}

	expanded, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidKeypair, expanded, err)
	}

	return key, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
