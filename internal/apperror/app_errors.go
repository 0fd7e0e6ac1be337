package apperror

import "errors"

// program-side rejections.
var (
	ErrGameFinished        = errors.New("game is already finished")
	ErrGameIsNotStarted    = errors.New("game has not been accepted by player two")
	ErrGameAlreadyAccepted = errors.New("game can not be accepted more than once")
	ErrGameNotCompleted    = errors.New("moves left in the game")
	ErrNotYourTurn         = errors.New("it's not your turn")
	ErrNotAuthorized       = errors.New("user not authorised to perform the action")
	ErrCellOccupied        = errors.New("tile is already occupied")
	ErrTileOutOfBounds     = errors.New("tile position is out of bounds for 3x3 board")
	ErrZeroStake           = errors.New("stake amount must be greater than zero")
	ErrSubmissionRejected  = errors.New("instruction rejected by the program")
)

// lookup errors.
var (
	ErrGameNotFound      = errors.New("game not found")
	ErrMintNotFound      = errors.New("token mint not found")
	ErrNoTokenAccount    = errors.New("no token account for the mint")
	ErrInsufficientFunds = errors.New("no token account with sufficient funds")
	ErrNoGames           = errors.New("no matching games")
	ErrMalformedStatus   = errors.New("malformed game status")
	ErrGameClosed        = errors.New("game was settled and closed by your opponent")
)

// input errors.
var (
	ErrInvalidAddress      = errors.New("not a valid address")
	ErrInvalidNumber       = errors.New("not a valid number")
	ErrSamePlayers         = errors.New("both players in a game can not be the same")
	ErrTooManyDecimals     = errors.New("amount has more decimals than the mint allows")
	ErrStakeExceedsBalance = errors.New("stake exceeds the token account balance")
	ErrMissingSeparator    = errors.New("row and column must be space separated")
	ErrInvalidChoice       = errors.New("invalid choice")
	ErrInvalidMenuChoice   = errors.New("invalid menu choice")
)
