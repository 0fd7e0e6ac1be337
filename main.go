package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	app "github.com/rocketscienceinc/tictactoe-stake-client/internal"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/config"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/usecase"
)

// main - is the entry point of the application. It builds the command tree and exits non-zero on failure.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tictactoe [keypair-file]",
		Short:         "Play staked tic-tac-toe against another wallet",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          playCommand(&configPath, 0),
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./config.yml", "path to the config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "new [keypair-file]",
			Short: "Start a new game",
			Args:  cobra.MaximumNArgs(1),
			RunE:  playCommand(&configPath, usecase.ActionNewGame),
		},
		&cobra.Command{
			Use:   "accept [keypair-file]",
			Short: "Accept a game another player started",
			Args:  cobra.MaximumNArgs(1),
			RunE:  playCommand(&configPath, usecase.ActionAcceptGame),
		},
		&cobra.Command{
			Use:   "resume [keypair-file]",
			Short: "Resume an ongoing game",
			Args:  cobra.MaximumNArgs(1),
			RunE:  playCommand(&configPath, usecase.ActionResumeGame),
		},
		newSandboxCommand(&configPath),
	)

	return root
}

func newSandboxCommand(configPath *string) *cobra.Command {
	sandbox := &cobra.Command{
		Use:   "sandbox",
		Short: "Manage tokens on the local sandbox ledger",
	}

	var decimals uint8
	mint := &cobra.Command{
		Use:   "mint [keypair-file]",
		Short: "Create a token mint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, logger := initialize(*configPath)
			return report(logger, app.MintSandboxToken(logger, conf, keypairArg(args), decimals))
		},
	}
	mint.Flags().Uint8Var(&decimals, "decimals", 6, "decimal places of the token")

	var mintAddr, amount, owner string
	airdrop := &cobra.Command{
		Use:   "airdrop [keypair-file]",
		Short: "Credit tokens of a mint to a wallet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, logger := initialize(*configPath)
			return report(logger, app.AirdropSandboxToken(logger, conf, keypairArg(args), mintAddr, amount, owner))
		},
	}
	airdrop.Flags().StringVar(&mintAddr, "mint", "", "mint address")
	airdrop.Flags().StringVar(&amount, "amount", "", "amount of tokens, e.g. 12.5")
	airdrop.Flags().StringVar(&owner, "owner", "", "receiving wallet, defaults to the keypair's")
	_ = airdrop.MarkFlagRequired("mint")
	_ = airdrop.MarkFlagRequired("amount")

	sandbox.AddCommand(mint, airdrop)

	return sandbox
}

func playCommand(configPath *string, action usecase.Action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		conf, logger := initialize(*configPath)
		return report(logger, app.RunApp(logger, conf, keypairArg(args), action))
	}
}

func keypairArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func initialize(configPath string) (*config.Config, *slog.Logger) {
	conf := initConfig(configPath)
	return conf, initLogger(conf)
}

func report(logger *slog.Logger, err error) error {
	if err != nil {
		logger.Error("app run failed", "error", err)
	}
	return err
}

// initialize config.
func initConfig(path string) *config.Config {
	return config.MustLoad(path)
}

// initialize logger.
func initLogger(conf *config.Config) *slog.Logger {
	level := pterm.LogLevelInfo

	switch conf.LogLevel {
	case "debug":
		level = pterm.LogLevelDebug
	case "warn":
		level = pterm.LogLevelWarn
	case "error":
		level = pterm.LogLevelError
	}

	return slog.New(pterm.NewSlogHandler(pterm.DefaultLogger.WithLevel(level).WithWriter(os.Stderr)))
}
