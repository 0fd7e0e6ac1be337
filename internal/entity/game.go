package entity

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

const BoardSize = 3

type Address string

func (that Address) String() string {
	return string(that)
}

type Tile uint8

const (
	TileEmpty Tile = iota
	TileX
	TileO
)

func (that Tile) String() string {
	switch that {
	case TileX:
		return "X"
	case TileO:
		return "O"
	default:
		return ""
	}
}

func (that Tile) MarshalText() ([]byte, error) {
	return []byte(that.String()), nil
}

func (that *Tile) UnmarshalText(text []byte) error {
	switch string(text) {
	case "":
		*that = TileEmpty
	case "X":
		*that = TileX
	case "O":
		*that = TileO
	default:
		return fmt.Errorf("unknown tile %q", text)
	}
	return nil
}

type Board [BoardSize][BoardSize]Tile

// IsOccupied reports whether the tile at row, column carries a mark.
// Callers must bounds-check first.
func (that Board) IsOccupied(row, column int) bool {
	return that[row][column] != TileEmpty
}

// EmptyTiles - number of tiles still free, i.e. turns remaining.
func (that Board) EmptyTiles() int {
	count := 0
	for _, row := range that {
		for _, tile := range row {
			if tile == TileEmpty {
				count++
			}
		}
	}
	return count
}

type Game struct {
	Players     [2]Address
	Board       Board
	State       Status
	StakeMint   Address
	StakeAmount uint64
}

// GameRecord - a game together with the address it is stored under.
type GameRecord struct {
	Address Address
	Game    *Game
}

// PlayerIndex returns the seat of addr in the game, if any.
func (that *Game) PlayerIndex(addr Address) (int, bool) {
	for i, player := range that.Players {
		if player == addr {
			return i, true
		}
	}
	return 0, false
}

func (that *Game) HasPlayer(addr Address) bool {
	_, ok := that.PlayerIndex(addr)
	return ok
}

func (that *Game) Opponent(addr Address) Address {
	if that.Players[0] == addr {
		return that.Players[1]
	}
	return that.Players[0]
}

type gameJSON struct {
	Players     [2]Address   `json:"players"`
	Board       Board        `json:"board"`
	State       StatusRecord `json:"state"`
	StakeMint   Address      `json:"stakeMint"`
	StakeAmount uint64       `json:"stakeAmount"`
}

func (that Game) MarshalJSON() ([]byte, error) {
	if that.State == nil {
		return nil, fmt.Errorf("marshal game: %w", errNilStatus)
	}
	return json.Marshal(gameJSON{
		Players:     that.Players,
		Board:       that.Board,
		State:       RecordStatus(that.State),
		StakeMint:   that.StakeMint,
		StakeAmount: that.StakeAmount,
	})
}

func (that *Game) UnmarshalJSON(data []byte) error {
	var raw gameJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	state, err := ParseStatus(raw.State)
	if err != nil {
		return err
	}

	*that = Game{
		Players:     raw.Players,
		Board:       raw.Board,
		State:       state,
		StakeMint:   raw.StakeMint,
		StakeAmount: raw.StakeAmount,
	}
	return nil
}

// Discriminator is the 8-byte prefix that identifies a record's type.
type Discriminator [8]byte

func AccountDiscriminator(name string) Discriminator {
	return prefixHash("account:" + name)
}

func InstructionDiscriminator(name string) Discriminator {
	return prefixHash("global:" + name)
}

func prefixHash(preimage string) Discriminator {
	var disc Discriminator
	sum := sha256.Sum256([]byte(preimage))
	copy(disc[:], sum[:len(disc)])
	return disc
}

var GameDiscriminator = AccountDiscriminator("Game")
