package onchain

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
)

const authoritySeed = "authority"

// programAccounts are the addresses every instruction of a given stake mint shares.
type programAccounts struct {
	program   solana.PublicKey
	authority solana.PublicKey
	mint      solana.PublicKey
	escrow    solana.PublicKey
}

func deriveAccounts(program, mint solana.PublicKey) (programAccounts, error) {
	authority, _, err := solana.FindProgramAddress([][]byte{[]byte(authoritySeed)}, program)
	if err != nil {
		return programAccounts{}, fmt.Errorf("failed to derive authority: %w", err)
	}

	escrow, _, err := solana.FindAssociatedTokenAddress(authority, mint)
	if err != nil {
		return programAccounts{}, fmt.Errorf("failed to derive escrow account: %w", err)
	}

	return programAccounts{program: program, authority: authority, mint: mint, escrow: escrow}, nil
}

// instructionData is the 8-byte discriminator of name followed by its Borsh args.
func instructionData(name string, args func(enc *bin.Encoder) error) ([]byte, error) {
	buf := new(bytes.Buffer)
	disc := entity.InstructionDiscriminator(name)
	buf.Write(disc[:])

	if args != nil {
		if err := args(bin.NewBorshEncoder(buf)); err != nil {
			return nil, fmt.Errorf("failed to encode %s args: %w", name, err)
		}
	}

	return buf.Bytes(), nil
}

func (that programAccounts) initialize(playerOne, playerTwo, game, funding solana.PublicKey, stake uint64) (solana.Instruction, error) {
	data, err := instructionData("initialize", func(enc *bin.Encoder) error {
		return enc.WriteUint64(stake, binary.LittleEndian)
	})
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(that.program, solana.AccountMetaSlice{
		solana.Meta(playerOne).WRITE().SIGNER(),
		solana.Meta(playerTwo),
		solana.Meta(game).WRITE().SIGNER(),
		solana.Meta(that.authority),
		solana.Meta(that.mint),
		solana.Meta(that.escrow).WRITE(),
		solana.Meta(funding).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

func (that programAccounts) accept(playerTwo, game, funding solana.PublicKey) (solana.Instruction, error) {
	data, err := instructionData("accept", nil)
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(that.program, solana.AccountMetaSlice{
		solana.Meta(playerTwo).SIGNER(),
		solana.Meta(that.authority),
		solana.Meta(that.mint),
		solana.Meta(that.escrow).WRITE(),
		solana.Meta(funding).WRITE(),
		solana.Meta(game).WRITE(),
		solana.Meta(solana.TokenProgramID),
	}, data), nil
}

func play(program, player, game solana.PublicKey, row, column uint8) (solana.Instruction, error) {
	data, err := instructionData("play", func(enc *bin.Encoder) error {
		if err := enc.WriteUint8(row); err != nil {
			return err
		}
		return enc.WriteUint8(column)
	})
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(player).SIGNER(),
		solana.Meta(game).WRITE(),
	}, data), nil
}

// close pays the escrow to the players' funding accounts; the record's rent
// goes back to player one.
func (that programAccounts) close(game, playerOne, playerTwo, fundingOne, fundingTwo solana.PublicKey) (solana.Instruction, error) {
	data, err := instructionData("close", nil)
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(that.program, solana.AccountMetaSlice{
		solana.Meta(game).WRITE(),
		solana.Meta(playerOne).WRITE(),
		solana.Meta(playerTwo),
		solana.Meta(that.authority),
		solana.Meta(that.mint),
		solana.Meta(that.escrow).WRITE(),
		solana.Meta(fundingOne).WRITE(),
		solana.Meta(fundingTwo).WRITE(),
		solana.Meta(solana.TokenProgramID),
	}, data), nil
}
