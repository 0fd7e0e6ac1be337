package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/funding"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/validate"
)

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

type prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

type presenter interface {
	Info(format string, args ...any)
	Problem(err error)
	Board(board entity.Board)
	Mint(mint entity.MintInfo)
	FundingAccounts(accounts []entity.FundingAccount, decimals uint8)
	Games(summaries []GameSummary)
	Outcome(outcome Outcome)
	Waiting(message string) (stop func())
}

// GameSummary - what a player sees when choosing among discovered games.
type GameSummary struct {
	Position       int
	Address        entity.Address
	Opponent       entity.Address
	StakeMint      entity.Address
	Stake          string
	TurnsRemaining int
}

// reportable errors end an action; anything else ends the run.
var reportable = []error{
	apperror.ErrSubmissionRejected,
	apperror.ErrGameNotFound,
	apperror.ErrGameClosed,
	apperror.ErrMintNotFound,
	apperror.ErrNoTokenAccount,
	apperror.ErrInsufficientFunds,
	apperror.ErrNoGames,
	apperror.ErrInvalidChoice,
	apperror.ErrInvalidMenuChoice,
	apperror.ErrMalformedStatus,
	apperror.ErrInvalidAddress,
}

type GameManager struct {
	logger *slog.Logger

	ledger ledgerGateway
	prompt prompter
	view   presenter

	player       entity.Address
	pollInterval time.Duration
}

func NewGameManager(logger *slog.Logger, ledger ledgerGateway, prompt prompter, view presenter, player entity.Address, pollInterval time.Duration) *GameManager {
	return &GameManager{
		logger: logger.With("component", "game-manager"),

		ledger: ledger,
		prompt: prompt,
		view:   view,

		player:       player,
		pollInterval: pollInterval,
	}
}

// Run dispatches a menu answer to its action.
func (that *GameManager) Run(ctx context.Context, menuInput string) error {
	action, err := ParseMenuChoice(menuInput)
	if err != nil {
		return that.settle(err)
	}

	switch action {
	case ActionNewGame:
		return that.NewGame(ctx)
	case ActionAcceptGame:
		return that.AcceptGame(ctx)
	case ActionResumeGame:
		return that.ResumeGame(ctx)
	default:
		return that.settle(apperror.ErrInvalidMenuChoice)
	}
}

func (that *GameManager) NewGame(ctx context.Context) error {
	return that.settle(that.newGame(ctx))
}

func (that *GameManager) AcceptGame(ctx context.Context) error {
	return that.settle(that.acceptGame(ctx))
}

func (that *GameManager) ResumeGame(ctx context.Context) error {
	return that.settle(that.resumeGame(ctx))
}

func (that *GameManager) Play(ctx context.Context, addr entity.Address) error {
	return that.settle(that.play(ctx, addr))
}

// settle reports errors the player can act on and passes the rest up.
func (that *GameManager) settle(err error) error {
	if err == nil {
		return nil
	}

	for _, target := range reportable {
		if errors.Is(err, target) {
			that.view.Problem(err)
			return nil
		}
	}

	return err
}

func (that *GameManager) newGame(ctx context.Context) error {
	log := that.logger.With("method", "newGame")

	opponent, err := that.askAddress(ctx, "Enter the address of player 2: ", func(addr entity.Address) error {
		if addr == that.player {
			return apperror.ErrSamePlayers
		}
		return nil
	})
	if err != nil {
		return err
	}

	mintAddr, mint, err := that.askMint(ctx)
	if err != nil {
		return err
	}
	that.view.Mint(*mint)

	// any non-empty account may fund; the stake is checked against it below.
	account, err := that.chooseFunding(ctx, mintAddr, 1, mint.Decimals)
	if err != nil {
		return err
	}

	stake, err := that.askStake(ctx, account, mint.Decimals)
	if err != nil {
		return err
	}

	gameAddr, err := that.ledger.SubmitCreate(ctx, that.player, opponent, stake, account)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}

	log.Info("game created", "game", gameAddr, "opponent", opponent, "stake", stake)
	that.view.Info("Created game account with address %s", gameAddr)

	if _, err = that.awaitAccept(ctx, gameAddr); err != nil {
		return err
	}

	return that.play(ctx, gameAddr)
}

func (that *GameManager) acceptGame(ctx context.Context) error {
	log := that.logger.With("method", "acceptGame")

	records, err := that.discover(ctx, AcceptFilter(that.player))
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return fmt.Errorf("%w: you have no games to accept, check that your opponent has initiated a game", apperror.ErrNoGames)
	}

	summaries, mints, err := that.summarize(ctx, records)
	if err != nil {
		return err
	}
	that.view.Games(summaries)

	var selected int
	if len(records) == 1 {
		answer, err := that.prompt.Ask(ctx, "Will you accept this game? (y/n): ")
		if err != nil {
			return err
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y":
		case "n":
			that.view.Info("Exiting...")
			return nil
		default:
			return fmt.Errorf("%w: %q", apperror.ErrInvalidChoice, answer)
		}
	} else {
		answer, err := that.prompt.Ask(ctx, "Enter game number to accept: ")
		if err != nil {
			return err
		}

		if selected, err = pickPosition(answer, len(records)); err != nil {
			return err
		}
	}

	record := records[selected]
	game := record.Game

	account, err := that.chooseFunding(ctx, game.StakeMint, game.StakeAmount, mints[selected].Decimals)
	if err != nil {
		return err
	}

	if err = that.ledger.SubmitAccept(ctx, record.Address, account); err != nil {
		if !errors.Is(err, apperror.ErrSubmissionRejected) {
			return fmt.Errorf("failed to accept game: %w", err)
		}

		// only player two can accept, so a game that moved on was accepted by us.
		current, fetchErr := that.ledger.FetchGame(ctx, record.Address)
		if fetchErr != nil {
			return fmt.Errorf("failed to refresh game: %w", fetchErr)
		}
		if entity.IsUnaccepted(current.State) {
			return fmt.Errorf("failed to accept game: %w", err)
		}

		log.Warn("accept rejected but game already started", "game", record.Address, "error", err)
	}

	log.Info("game accepted", "game", record.Address, "account", account.Address)

	return that.play(ctx, record.Address)
}

func (that *GameManager) resumeGame(ctx context.Context) error {
	records, err := that.discover(ctx, ResumeFilter(that.player))
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return fmt.Errorf("%w: you have no ongoing games at the moment", apperror.ErrNoGames)
	}

	summaries, _, err := that.summarize(ctx, records)
	if err != nil {
		return err
	}
	that.view.Games(summaries)

	var selected int
	if len(records) > 1 {
		answer, err := that.prompt.Ask(ctx, "Which game would you like to resume?: ")
		if err != nil {
			return err
		}

		if selected, err = pickPosition(answer, len(records)); err != nil {
			return err
		}
	}

	return that.play(ctx, records[selected].Address)
}

func (that *GameManager) play(ctx context.Context, addr entity.Address) error {
	game, err := that.ledger.FetchGame(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to fetch game: %w", err)
	}

	localIndex := LocalIndex(game, that.player)
	log := that.logger.With("method", "play", "game", addr, "seat", localIndex)
	log.Debug("entering game")

	for {
		that.view.Board(game.Board)

		switch NextStep(game.State, localIndex) {
		case StepFinish:
			return that.finish(ctx, addr, game, localIndex)
		case StepMove:
			game, err = that.move(ctx, addr, game)
		case StepWait:
			game, err = that.waitForTurn(ctx, addr, localIndex)
		case StepAwaitAccept:
			game, err = that.awaitAccept(ctx, addr)
		}

		if err != nil {
			return err
		}
	}
}

// move reads a tile until it passes the local checks, submits it once and
// returns a fresh snapshot whatever the outcome of the submission.
func (that *GameManager) move(ctx context.Context, addr entity.Address, game *entity.Game) (*entity.Game, error) {
	log := that.logger.With("method", "move", "game", addr)

	var row, column int
	for {
		input, err := that.prompt.Ask(ctx, "Enter row & column to place your mark (space separated): ")
		if err != nil {
			return nil, err
		}

		row, column, err = ParseTile(input, game.Board)
		if err == nil {
			break
		}
		that.view.Problem(err)
	}

	if err := that.ledger.SubmitMove(ctx, addr, uint8(row), uint8(column)); err != nil {
		if !errors.Is(err, apperror.ErrSubmissionRejected) {
			return nil, fmt.Errorf("failed to submit move: %w", err)
		}

		log.Warn("move rejected, refreshing game", "row", row, "column", column, "error", err)
		that.view.Problem(err)
	}

	refreshed, err := that.ledger.FetchGame(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh game: %w", err)
	}

	return refreshed, nil
}

func (that *GameManager) waitForTurn(ctx context.Context, addr entity.Address, localIndex int) (*entity.Game, error) {
	stop := that.view.Waiting("Waiting for other player's move...")
	defer stop()

	game, err := that.pollGame(ctx, addr, func(game *entity.Game) bool {
		turn, ok := game.State.(entity.Turn)
		return !ok || int(turn.Index) == localIndex
	})
	if errors.Is(err, apperror.ErrGameNotFound) {
		// the closing seat settles as soon as the game ends.
		return nil, fmt.Errorf("%w: %s", apperror.ErrGameClosed, addr)
	}

	return game, err
}

func (that *GameManager) awaitAccept(ctx context.Context, addr entity.Address) (*entity.Game, error) {
	stop := that.view.Waiting("Waiting for opponent to accept the game...")
	defer stop()

	return that.pollGame(ctx, addr, func(game *entity.Game) bool {
		return !entity.IsUnaccepted(game.State)
	})
}

func (that *GameManager) finish(ctx context.Context, addr entity.Address, game *entity.Game, localIndex int) error {
	outcome, err := ResultOf(game.State, that.player)
	if err != nil {
		return err
	}
	that.view.Outcome(outcome)

	if !ShouldClose(localIndex) {
		return nil
	}

	if err = that.ledger.SubmitClose(ctx, addr); err != nil {
		return fmt.Errorf("failed to close game: %w", err)
	}

	that.logger.Info("game closed", "game", addr)
	that.view.Info("Game closed and stakes settled")

	return nil
}

// discover scans every game record and keeps those accepted by filter.
func (that *GameManager) discover(ctx context.Context, filter func(*entity.Game) bool) ([]entity.GameRecord, error) {
	records, err := that.ledger.FetchGames(ctx, entity.GameDiscriminator)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch games: %w", err)
	}

	matching := make([]entity.GameRecord, 0, len(records))
	for _, record := range records {
		if filter(record.Game) {
			matching = append(matching, record)
		}
	}

	return matching, nil
}

func (that *GameManager) summarize(ctx context.Context, records []entity.GameRecord) ([]GameSummary, []entity.MintInfo, error) {
	summaries := make([]GameSummary, 0, len(records))
	mints := make([]entity.MintInfo, 0, len(records))

	for i, record := range records {
		mint, err := that.ledger.FetchMint(ctx, record.Game.StakeMint)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch stake mint: %w", err)
		}

		mints = append(mints, *mint)
		summaries = append(summaries, GameSummary{
			Position:       i + 1,
			Address:        record.Address,
			Opponent:       record.Game.Opponent(that.player),
			StakeMint:      record.Game.StakeMint,
			Stake:          funding.FormatAmount(record.Game.StakeAmount, mint.Decimals),
			TurnsRemaining: record.Game.Board.EmptyTiles(),
		})
	}

	return summaries, mints, nil
}

// chooseFunding picks the local account of mint that holds at least required.
func (that *GameManager) chooseFunding(ctx context.Context, mint entity.Address, required uint64, decimals uint8) (entity.FundingAccount, error) {
	candidates, err := that.ledger.FetchTokenAccounts(ctx, that.player, mint)
	if err != nil {
		return entity.FundingAccount{}, fmt.Errorf("failed to fetch token accounts: %w", err)
	}

	qualifying, err := funding.Qualify(candidates, required)
	if err != nil {
		return entity.FundingAccount{}, err
	}
	that.view.FundingAccounts(qualifying, decimals)

	var choice string
	if funding.NeedsChoice(qualifying) {
		if choice, err = that.prompt.Ask(ctx, "Choose the token account for staking: "); err != nil {
			return entity.FundingAccount{}, err
		}
	}

	return funding.Pick(qualifying, choice)
}

func (that *GameManager) askAddress(ctx context.Context, question string, check func(entity.Address) error) (entity.Address, error) {
	for {
		answer, err := that.prompt.Ask(ctx, question)
		if err != nil {
			return "", err
		}

		answer = strings.TrimSpace(answer)
		if !validate.IsValidAddress(answer) {
			that.view.Problem(fmt.Errorf("%w: %q", apperror.ErrInvalidAddress, answer))
			continue
		}

		addr := entity.Address(answer)
		if check != nil {
			if err = check(addr); err != nil {
				that.view.Problem(err)
				continue
			}
		}

		return addr, nil
	}
}

// askMint re-prompts while the ledger cannot decode the answer; the shape
// check in askAddress lets some undecodable strings through.
func (that *GameManager) askMint(ctx context.Context) (entity.Address, *entity.MintInfo, error) {
	for {
		mintAddr, err := that.askAddress(ctx, "Enter the mint address of token to stake: ", nil)
		if err != nil {
			return "", nil, err
		}

		mint, err := that.ledger.FetchMint(ctx, mintAddr)
		if errors.Is(err, apperror.ErrInvalidAddress) {
			that.view.Problem(err)
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to fetch mint: %w", err)
		}

		return mintAddr, mint, nil
	}
}

func (that *GameManager) askStake(ctx context.Context, account entity.FundingAccount, decimals uint8) (uint64, error) {
	for {
		answer, err := that.prompt.Ask(ctx, "Enter the amount of tokens to stake: ")
		if err != nil {
			return 0, err
		}

		stake, err := funding.ParseAmount(answer, decimals)
		if err != nil {
			that.view.Problem(err)
			continue
		}

		if stake > account.Balance {
			that.view.Problem(fmt.Errorf("%w: balance is %s", apperror.ErrStakeExceedsBalance, funding.FormatAmount(account.Balance, decimals)))
			continue
		}

		return stake, nil
	}
}
