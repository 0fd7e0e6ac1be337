package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/validate"
)

type Action int

const (
	ActionNewGame Action = iota + 1
	ActionAcceptGame
	ActionResumeGame
)

func ParseMenuChoice(input string) (Action, error) {
	switch strings.TrimSpace(input) {
	case "1":
		return ActionNewGame, nil
	case "2":
		return ActionAcceptGame, nil
	case "3":
		return ActionResumeGame, nil
	default:
		return 0, fmt.Errorf("%w: %q", apperror.ErrInvalidMenuChoice, input)
	}
}

// Step is what the local player has to do next in a game.
type Step int

const (
	StepAwaitAccept Step = iota + 1
	StepMove
	StepWait
	StepFinish
)

// NextStep decides from a freshly fetched status and the local seat.
func NextStep(status entity.Status, localIndex int) Step {
	switch s := status.(type) {
	case entity.Unaccepted:
		return StepAwaitAccept
	case entity.Turn:
		if int(s.Index) == localIndex {
			return StepMove
		}
		return StepWait
	case entity.Draw, entity.Over:
		return StepFinish
	default:
		panic(fmt.Sprintf("unknown game status %T", s))
	}
}

// LocalIndex fixes the local seat once, at game entry.
func LocalIndex(game *entity.Game, local entity.Address) int {
	if game.Players[0] == local {
		return 0
	}
	return 1
}

// ShouldClose - only the creator closes a finished game.
func ShouldClose(localIndex int) bool {
	return localIndex == 0
}

type Outcome int

const (
	OutcomeWon Outcome = iota + 1
	OutcomeLost
	OutcomeTie
)

// ResultOf reports a terminal status relative to the local player.
func ResultOf(status entity.Status, local entity.Address) (Outcome, error) {
	switch s := status.(type) {
	case entity.Over:
		if s.Winner == local {
			return OutcomeWon, nil
		}
		return OutcomeLost, nil
	case entity.Draw:
		return OutcomeTie, nil
	case entity.Unaccepted, entity.Turn:
		return 0, apperror.ErrGameNotCompleted
	default:
		panic(fmt.Sprintf("unknown game status %T", s))
	}
}

// ParseTile reads "row column" and checks it against the last fetched
// board. The checks run in a fixed order: separator, row, column, bounds,
// occupancy.
func ParseTile(input string, board entity.Board) (int, int, error) {
	rowToken, columnToken, found := strings.Cut(strings.TrimSpace(input), " ")
	if !found {
		return 0, 0, apperror.ErrMissingSeparator
	}

	if !validate.IsValidNumber(rowToken) {
		return 0, 0, fmt.Errorf("%w: row %q", apperror.ErrInvalidNumber, rowToken)
	}

	row, err := strconv.Atoi(rowToken)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: row %q is not a whole number", apperror.ErrInvalidNumber, rowToken)
	}

	columnToken = strings.TrimSpace(columnToken)
	if !validate.IsValidNumber(columnToken) {
		return 0, 0, fmt.Errorf("%w: column %q", apperror.ErrInvalidNumber, columnToken)
	}

	column, err := strconv.Atoi(columnToken)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: column %q is not a whole number", apperror.ErrInvalidNumber, columnToken)
	}

	if row < 0 || row >= entity.BoardSize || column < 0 || column >= entity.BoardSize {
		return 0, 0, fmt.Errorf("%w: %d %d", apperror.ErrTileOutOfBounds, row, column)
	}

	if board.IsOccupied(row, column) {
		return 0, 0, fmt.Errorf("%w: %d %d", apperror.ErrCellOccupied, row, column)
	}

	return row, column, nil
}

// AcceptFilter keeps games waiting for the local player to accept them.
func AcceptFilter(local entity.Address) func(*entity.Game) bool {
	return func(game *entity.Game) bool {
		return game.Players[1] == local && entity.IsUnaccepted(game.State)
	}
}

// ResumeFilter keeps games in progress that the local player sits in.
func ResumeFilter(local entity.Address) func(*entity.Game) bool {
	return func(game *entity.Game) bool {
		return game.HasPlayer(local) && entity.IsTurn(game.State)
	}
}

// pickPosition turns a 1-based answer into an index below n.
func pickPosition(answer string, n int) (int, error) {
	answer = strings.TrimSpace(answer)
	if !validate.IsValidNumber(answer) {
		return 0, fmt.Errorf("%w: %q is not a number", apperror.ErrInvalidChoice, answer)
	}

	position, err := strconv.Atoi(answer)
	if err != nil || position < 1 || position > n {
		return 0, fmt.Errorf("%w: %q is not between 1 and %d", apperror.ErrInvalidChoice, answer, n)
	}

	return position - 1, nil
}
