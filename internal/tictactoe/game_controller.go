// Package tictactoe holds the rules the ledger program enforces. Only the
// sandbox ledger executes them; the client decides nothing from them.
package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
)

// WinCombos - tile indexes (row*3 + column) forming a line.
var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Payout is a transfer out of the escrow when a game is closed.
type Payout struct {
	Player entity.Address
	Amount uint64
}

// Initialize creates an unaccepted game; player one moves first once accepted.
func Initialize(playerOne, playerTwo, mint entity.Address, stake uint64) (*entity.Game, error) {
	if stake == 0 {
		return nil, apperror.ErrZeroStake
	}

	return &entity.Game{
		Players:     [2]entity.Address{playerOne, playerTwo},
		State:       entity.Unaccepted{},
		StakeMint:   mint,
		StakeAmount: stake,
	}, nil
}

// Accept starts the game. Only player two may accept, and only once.
func Accept(game *entity.Game, signer entity.Address) error {
	if signer != game.Players[1] {
		return apperror.ErrNotAuthorized
	}

	if !entity.IsUnaccepted(game.State) {
		return apperror.ErrGameAlreadyAccepted
	}

	game.State = entity.Turn{Index: 0}

	return nil
}

// MakeTurn marks a tile for signer and moves the game to its next state.
func MakeTurn(game *entity.Game, signer entity.Address, row, column uint8) error {
	current, err := validateMove(game, signer, row, column)
	if err != nil {
		return err
	}

	mark := entity.TileX
	if current == 1 {
		mark = entity.TileO
	}

	game.Board[row][column] = mark
	updateGameStatus(game, current)

	return nil
}

// Payouts - what close transfers out of the escrow for a finished game.
func Payouts(game *entity.Game) ([]Payout, error) {
	switch s := game.State.(type) {
	case entity.Draw:
		return []Payout{
			{Player: game.Players[0], Amount: game.StakeAmount},
			{Player: game.Players[1], Amount: game.StakeAmount},
		}, nil
	case entity.Over:
		return []Payout{{Player: s.Winner, Amount: 2 * game.StakeAmount}}, nil
	case entity.Unaccepted, entity.Turn:
		return nil, apperror.ErrGameNotCompleted
	default:
		return nil, apperror.ErrMalformedStatus
	}
}

// validateMove - checks if the move is valid and returns the mover's seat.
func validateMove(game *entity.Game, signer entity.Address, row, column uint8) (uint8, error) {
	var current uint8

	switch s := game.State.(type) {
	case entity.Turn:
		if signer != game.Players[s.Index] {
			if game.HasPlayer(signer) {
				return 0, fmt.Errorf("%w: %w", apperror.ErrNotAuthorized, apperror.ErrNotYourTurn)
			}
			return 0, apperror.ErrNotAuthorized
		}
		current = s.Index
	case entity.Unaccepted:
		return 0, apperror.ErrGameIsNotStarted
	default:
		return 0, apperror.ErrGameFinished
	}

	if row >= entity.BoardSize || column >= entity.BoardSize {
		return 0, apperror.ErrTileOutOfBounds
	}

	if game.Board.IsOccupied(int(row), int(column)) {
		return 0, apperror.ErrCellOccupied
	}

	return current, nil
}

// updateGameStatus - checks the game status after a move.
func updateGameStatus(game *entity.Game, current uint8) {
	switch winner := checkGameStatus(game.Board); winner {
	case entity.TileX:
		game.State = entity.Over{Winner: game.Players[0]}
	case entity.TileO:
		game.State = entity.Over{Winner: game.Players[1]}
	default:
		if game.Board.EmptyTiles() == 0 {
			game.State = entity.Draw{}
			return
		}
		game.State = entity.Turn{Index: (current + 1) % 2}
	}
}

func checkGameStatus(board entity.Board) entity.Tile {
	tile := func(i int) entity.Tile {
		return board[i/entity.BoardSize][i%entity.BoardSize]
	}

	for _, combo := range WinCombos {
		a, b, c := tile(combo[0]), tile(combo[1]), tile(combo[2])
		if a != entity.TileEmpty && a == b && b == c {
			return a
		}
	}

	return entity.TileEmpty
}
