package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
)

const (
	alice    = entity.Address("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	bob      = entity.Address("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	mintAddr = entity.Address("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	gameAddr = entity.Address("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")

	testPollInterval = time.Millisecond
)

type mockLedger struct {
	mock.Mock
}

func newMockLedger(t *testing.T) *mockLedger {
	t.Helper()

	m := &mockLedger{}
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *mockLedger) FetchGame(ctx context.Context, addr entity.Address) (*entity.Game, error) {
	args := m.Called(ctx, addr)
	game, _ := args.Get(0).(*entity.Game)
	return game, args.Error(1)
}

func (m *mockLedger) FetchGames(ctx context.Context, disc entity.Discriminator) ([]entity.GameRecord, error) {
	args := m.Called(ctx, disc)
	records, _ := args.Get(0).([]entity.GameRecord)
	return records, args.Error(1)
}

func (m *mockLedger) FetchTokenAccounts(ctx context.Context, owner, mint entity.Address) ([]entity.FundingAccount, error) {
	args := m.Called(ctx, owner, mint)
	accounts, _ := args.Get(0).([]entity.FundingAccount)
	return accounts, args.Error(1)
}

func (m *mockLedger) FetchMint(ctx context.Context, mint entity.Address) (*entity.MintInfo, error) {
	args := m.Called(ctx, mint)
	info, _ := args.Get(0).(*entity.MintInfo)
	return info, args.Error(1)
}

func (m *mockLedger) SubmitCreate(ctx context.Context, playerOne, playerTwo entity.Address, stake uint64, account entity.FundingAccount) (entity.Address, error) {
	args := m.Called(ctx, playerOne, playerTwo, stake, account)
	addr, _ := args.Get(0).(entity.Address)
	return addr, args.Error(1)
}

func (m *mockLedger) SubmitAccept(ctx context.Context, game entity.Address, account entity.FundingAccount) error {
	return m.Called(ctx, game, account).Error(0)
}

func (m *mockLedger) SubmitMove(ctx context.Context, game entity.Address, row, column uint8) error {
	return m.Called(ctx, game, row, column).Error(0)
}

func (m *mockLedger) SubmitClose(ctx context.Context, game entity.Address) error {
	return m.Called(ctx, game).Error(0)
}

// scriptedPrompter answers questions from a fixed script.
type scriptedPrompter struct {
	answers   []string
	questions []string
}

func (that *scriptedPrompter) Ask(_ context.Context, question string) (string, error) {
	that.questions = append(that.questions, question)
	if len(that.answers) == 0 {
		return "", fmt.Errorf("unexpected question %q: %w", question, io.EOF)
	}

	answer := that.answers[0]
	that.answers = that.answers[1:]
	return answer, nil
}

type recordingView struct {
	infos    []string
	problems []error
	boards   int
	games    []GameSummary
	accounts []entity.FundingAccount
	outcomes []Outcome
	waits    []string
}

func (that *recordingView) Info(format string, args ...any) {
	that.infos = append(that.infos, fmt.Sprintf(format, args...))
}

func (that *recordingView) Problem(err error) {
	that.problems = append(that.problems, err)
}

func (that *recordingView) Board(entity.Board) {
	that.boards++
}

func (that *recordingView) Mint(entity.MintInfo) {}

func (that *recordingView) FundingAccounts(accounts []entity.FundingAccount, _ uint8) {
	that.accounts = accounts
}

func (that *recordingView) Games(summaries []GameSummary) {
	that.games = summaries
}

func (that *recordingView) Outcome(outcome Outcome) {
	that.outcomes = append(that.outcomes, outcome)
}

func (that *recordingView) Waiting(message string) func() {
	that.waits = append(that.waits, message)
	return func() {}
}

func newTestManager(t *testing.T, player entity.Address, answers ...string) (*GameManager, *mockLedger, *scriptedPrompter, *recordingView) {
	t.Helper()

	ledger := newMockLedger(t)
	prompt := &scriptedPrompter{answers: answers}
	view := &recordingView{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewGameManager(logger, ledger, prompt, view, player, testPollInterval), ledger, prompt, view
}

func gameWith(state entity.Status) *entity.Game {
	return &entity.Game{
		Players:     [2]entity.Address{alice, bob},
		State:       state,
		StakeMint:   mintAddr,
		StakeAmount: 10,
	}
}
