package onchain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
)

// Borsh tags of the program's enums.
const (
	symbolX uint8 = 0
	symbolO uint8 = 1

	stateUnaccepted uint8 = 0
	stateTurn       uint8 = 1
	stateDraw       uint8 = 2
	stateOver       uint8 = 3
)

// gameAccountSize is the space allocated by initialize.
const gameAccountSize = 8 + 2*32 + 2*9 + 1 + 32 + 32 + 8

var (
	errWrongDiscriminator = errors.New("account is not a game")
	errUnknownSymbol      = errors.New("unknown tile symbol")
)

// decodeGame reads a game account: discriminator, players, board of
// Option<Symbol>, state enum, stake mint and stake amount.
func decodeGame(data []byte) (*entity.Game, error) {
	dec := bin.NewBorshDecoder(data)

	disc, err := dec.ReadNBytes(len(entity.GameDiscriminator))
	if err != nil {
		return nil, fmt.Errorf("failed to read discriminator: %w", err)
	}
	if !bytes.Equal(disc, entity.GameDiscriminator[:]) {
		return nil, errWrongDiscriminator
	}

	game := &entity.Game{}

	for i := range game.Players {
		if game.Players[i], err = readAddress(dec); err != nil {
			return nil, fmt.Errorf("failed to read player %d: %w", i, err)
		}
	}

	for row := range game.Board {
		for column := range game.Board[row] {
			if game.Board[row][column], err = readTile(dec); err != nil {
				return nil, fmt.Errorf("failed to read tile %d %d: %w", row, column, err)
			}
		}
	}

	if game.State, err = readState(dec); err != nil {
		return nil, err
	}

	if game.StakeMint, err = readAddress(dec); err != nil {
		return nil, fmt.Errorf("failed to read stake mint: %w", err)
	}

	if game.StakeAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("failed to read stake amount: %w", err)
	}

	return game, nil
}

func readAddress(dec *bin.Decoder) (entity.Address, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return "", err
	}

	return entity.Address(solana.PublicKeyFromBytes(raw).String()), nil
}

func readTile(dec *bin.Decoder) (entity.Tile, error) {
	some, err := dec.ReadUint8()
	if err != nil {
		return entity.TileEmpty, err
	}
	if some == 0 {
		return entity.TileEmpty, nil
	}

	symbol, err := dec.ReadUint8()
	if err != nil {
		return entity.TileEmpty, err
	}

	switch symbol {
	case symbolX:
		return entity.TileX, nil
	case symbolO:
		return entity.TileO, nil
	default:
		return entity.TileEmpty, fmt.Errorf("%w: %d", errUnknownSymbol, symbol)
	}
}

// readState goes through StatusRecord so malformed states are rejected the
// same way on every ledger.
func readState(dec *bin.Decoder) (entity.Status, error) {
	tag, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var record entity.StatusRecord
	switch tag {
	case stateUnaccepted:
		record.Unaccepted = &struct{}{}
	case stateTurn:
		index, err := dec.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("failed to read turn index: %w", err)
		}
		record.Turn = &entity.TurnRecord{Index: index}
	case stateDraw:
		record.Draw = &struct{}{}
	case stateOver:
		winner, err := readAddress(dec)
		if err != nil {
			return nil, fmt.Errorf("failed to read winner: %w", err)
		}
		record.Over = &entity.OverRecord{Winner: winner}
	default:
		return nil, fmt.Errorf("%w: state tag %d", apperror.ErrMalformedStatus, tag)
	}

	return entity.ParseStatus(record)
}

// encodeGame is the inverse of decodeGame. Only tests and fixtures need it.
func encodeGame(game *entity.Game) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteBytes(entity.GameDiscriminator[:], false); err != nil {
		return nil, err
	}

	for _, player := range game.Players {
		if err := writeAddress(enc, player); err != nil {
			return nil, err
		}
	}

	for _, row := range game.Board {
		for _, tile := range row {
			var err error
			switch tile {
			case entity.TileX:
				err = enc.WriteBytes([]byte{1, symbolX}, false)
			case entity.TileO:
				err = enc.WriteBytes([]byte{1, symbolO}, false)
			default:
				err = enc.WriteUint8(0)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if err := writeState(enc, game.State); err != nil {
		return nil, err
	}

	if err := writeAddress(enc, game.StakeMint); err != nil {
		return nil, err
	}

	if err := enc.WriteUint64(game.StakeAmount, binary.LittleEndian); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeState(enc *bin.Encoder, status entity.Status) error {
	switch s := status.(type) {
	case entity.Unaccepted:
		return enc.WriteUint8(stateUnaccepted)
	case entity.Turn:
		return enc.WriteBytes([]byte{stateTurn, s.Index}, false)
	case entity.Draw:
		return enc.WriteUint8(stateDraw)
	case entity.Over:
		if err := enc.WriteUint8(stateOver); err != nil {
			return err
		}
		return writeAddress(enc, s.Winner)
	default:
		return fmt.Errorf("%w: %T", apperror.ErrMalformedStatus, s)
	}
}

func writeAddress(enc *bin.Encoder, addr entity.Address) error {
	key, err := publicKey(addr)
	if err != nil {
		return err
	}

	return enc.WriteBytes(key[:], false)
}

func publicKey(addr entity.Address) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(addr.String())
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %q", apperror.ErrInvalidAddress, addr)
	}

	return key, nil
}
