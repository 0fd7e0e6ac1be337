package onchain

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
)

type mockRPC struct {
	mock.Mock
}

func (that *mockRPC) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	args := that.Called(ctx, account, opts)
	result, _ := args.Get(0).(*rpc.GetAccountInfoResult)
	return result, args.Error(1)
}

func (that *mockRPC) GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	args := that.Called(ctx, program, opts)
	result, _ := args.Get(0).(rpc.GetProgramAccountsResult)
	return result, args.Error(1)
}

func (that *mockRPC) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	args := that.Called(ctx, owner, conf, opts)
	result, _ := args.Get(0).(*rpc.GetTokenAccountsResult)
	return result, args.Error(1)
}

func (that *mockRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	args := that.Called(ctx, commitment)
	result, _ := args.Get(0).(*rpc.GetLatestBlockhashResult)
	return result, args.Error(1)
}

func (that *mockRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	args := that.Called(ctx, tx, opts)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (that *mockRPC) GetSignatureStatuses(ctx context.Context, searchHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	args := that.Called(ctx, searchHistory, signatures)
	result, _ := args.Get(0).(*rpc.GetSignatureStatusesResult)
	return result, args.Error(1)
}

func newTestGateway(t *testing.T, cluster string) (*Gateway, *mockRPC) {
	t.Helper()

	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	client := new(mockRPC)
	t.Cleanup(func() { client.AssertExpectations(t) })

	gateway, err := NewGateway(slog.New(slog.NewTextHandler(io.Discard, nil)), client, payer, Options{
		ProgramID: programKey.String(),
		Cluster:   cluster,
		RPCURL:    "http://localhost:8899",
	})
	require.NoError(t, err)
	gateway.confirmInterval = time.Millisecond

	return gateway, client
}

func accountInfo(owner solana.PublicKey, data []byte) *rpc.GetAccountInfoResult {
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{
		Owner: owner,
		Data:  rpc.DataBytesOrJSONFromBytes(data),
	}}
}

// rawMint lays out an SPL mint without freeze authority.
func rawMint(supply uint64, decimals uint8) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint32(1))
	buf.Write(playerOneKey[:])
	_ = binary.Write(buf, binary.LittleEndian, supply)
	buf.WriteByte(decimals)
	buf.WriteByte(1)
	_ = binary.Write(buf, binary.LittleEndian, uint32(0))
	buf.Write(make([]byte, 32))

	return buf.Bytes()
}

func TestNewGateway(t *testing.T) {
	t.Run("Rejects a malformed program id", func(t *testing.T) {
		_, err := NewGateway(slog.Default(), new(mockRPC), nil, Options{ProgramID: "not-a-key"})

		require.Error(t, err)
	})

	t.Run("Defaults to confirmed commitment", func(t *testing.T) {
		gateway, _ := newTestGateway(t, "")

		assert.Equal(t, rpc.CommitmentConfirmed, gateway.commitment)
	})
}

func TestGateway_FetchGame(t *testing.T) {
	ctx := context.Background()
	gameKey := solana.NewWallet().PublicKey()

	t.Run("Decodes the program's account", func(t *testing.T) {
		// Given: a game account owned by the program
		gateway, client := newTestGateway(t, "")
		data := rawGame(emptyBoard(), []byte{stateUnaccepted}, 42)
		client.On("GetAccountInfoWithOpts", mock.Anything, gameKey, mock.Anything).Return(accountInfo(programKey, data), nil).Once()

		// When: fetching it
		game, err := gateway.FetchGame(ctx, entity.Address(gameKey.String()))

		// Then: it is decoded
		require.NoError(t, err)
		assert.Equal(t, entity.Unaccepted{}, game.State)
		assert.Equal(t, uint64(42), game.StakeAmount)
	})

	t.Run("Missing account is not found", func(t *testing.T) {
		gateway, client := newTestGateway(t, "")
		client.On("GetAccountInfoWithOpts", mock.Anything, gameKey, mock.Anything).Return(nil, rpc.ErrNotFound).Once()

		_, err := gateway.FetchGame(ctx, entity.Address(gameKey.String()))

		require.ErrorIs(t, err, apperror.ErrGameNotFound)
	})

	t.Run("Account of another program is not found", func(t *testing.T) {
		gateway, client := newTestGateway(t, "")
		data := rawGame(emptyBoard(), []byte{stateUnaccepted}, 42)
		client.On("GetAccountInfoWithOpts", mock.Anything, gameKey, mock.Anything).Return(accountInfo(solana.SystemProgramID, data), nil).Once()

		_, err := gateway.FetchGame(ctx, entity.Address(gameKey.String()))

		require.ErrorIs(t, err, apperror.ErrGameNotFound)
	})

	t.Run("Transport errors are not a missing game", func(t *testing.T) {
		gateway, client := newTestGateway(t, "")
		client.On("GetAccountInfoWithOpts", mock.Anything, gameKey, mock.Anything).Return(nil, errors.New("connection refused")).Once()

		_, err := gateway.FetchGame(ctx, entity.Address(gameKey.String()))

		require.Error(t, err)
		assert.NotErrorIs(t, err, apperror.ErrGameNotFound)
	})

	t.Run("Malformed address never reaches the node", func(t *testing.T) {
		gateway, _ := newTestGateway(t, "")

		_, err := gateway.FetchGame(ctx, "0OIl")

		require.ErrorIs(t, err, apperror.ErrInvalidAddress)
	})
}

func TestGateway_FetchGames(t *testing.T) {
	t.Run("Skips accounts that do not decode", func(t *testing.T) {
		// Given: one valid game and one garbage account
		gateway, client := newTestGateway(t, "")
		good := solana.NewWallet().PublicKey()
		bad := solana.NewWallet().PublicKey()

		client.On("GetProgramAccountsWithOpts", mock.Anything, programKey, mock.MatchedBy(func(opts *rpc.GetProgramAccountsOpts) bool {
			return len(opts.Filters) == 1 && bytes.Equal(opts.Filters[0].Memcmp.Bytes, entity.GameDiscriminator[:])
		})).Return(rpc.GetProgramAccountsResult{
			{Pubkey: good, Account: &rpc.Account{Owner: programKey, Data: rpc.DataBytesOrJSONFromBytes(rawGame(emptyBoard(), []byte{stateDraw}, 1))}},
			{Pubkey: bad, Account: &rpc.Account{Owner: programKey, Data: rpc.DataBytesOrJSONFromBytes([]byte{1, 2, 3})}},
		}, nil).Once()

		// When: listing games
		records, err := gateway.FetchGames(context.Background(), entity.GameDiscriminator)

		// Then: only the valid one comes back
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, entity.Address(good.String()), records[0].Address)
		assert.Equal(t, entity.Draw{}, records[0].Game.State)
	})
}

func TestGateway_FetchMint(t *testing.T) {
	ctx := context.Background()

	t.Run("Decodes decimals and supply", func(t *testing.T) {
		gateway, client := newTestGateway(t, "")
		client.On("GetAccountInfoWithOpts", mock.Anything, mintKey, mock.Anything).Return(accountInfo(solana.TokenProgramID, rawMint(1_000_000, 6)), nil).Once()

		mint, err := gateway.FetchMint(ctx, entity.Address(mintKey.String()))

		require.NoError(t, err)
		assert.Equal(t, uint8(6), mint.Decimals)
		assert.Equal(t, uint64(1_000_000), mint.Supply)
	})

	t.Run("Account outside the token program is not a mint", func(t *testing.T) {
		gateway, client := newTestGateway(t, "")
		client.On("GetAccountInfoWithOpts", mock.Anything, mintKey, mock.Anything).Return(accountInfo(programKey, rawMint(1, 6)), nil).Once()

		_, err := gateway.FetchMint(ctx, entity.Address(mintKey.String()))

		require.ErrorIs(t, err, apperror.ErrMintNotFound)
	})

	t.Run("Missing account is not a mint", func(t *testing.T) {
		gateway, client := newTestGateway(t, "")
		client.On("GetAccountInfoWithOpts", mock.Anything, mintKey, mock.Anything).Return(nil, rpc.ErrNotFound).Once()

		_, err := gateway.FetchMint(ctx, entity.Address(mintKey.String()))

		require.ErrorIs(t, err, apperror.ErrMintNotFound)
	})
}

func TestGateway_SubmitMove(t *testing.T) {
	ctx := context.Background()
	gameAddr := entity.Address(solana.NewWallet().PublicKey().String())
	signature := solana.Signature{7}
	blockhash := &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{1}}}

	t.Run("Waits until the transaction is confirmed", func(t *testing.T) {
		// Given: the node confirms on the second poll
		gateway, client := newTestGateway(t, "devnet")
		client.On("GetLatestBlockhash", mock.Anything, rpc.CommitmentFinalized).Return(blockhash, nil).Once()
		client.On("SendTransactionWithOpts", mock.Anything, mock.MatchedBy(func(tx *solana.Transaction) bool {
			return len(tx.Signatures) == 1
		}), mock.Anything).Return(signature, nil).Once()
		client.On("GetSignatureStatuses", mock.Anything, false, []solana.Signature{signature}).Return(&rpc.GetSignatureStatusesResult{
			Value: []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusProcessed}},
		}, nil).Once()
		client.On("GetSignatureStatuses", mock.Anything, false, []solana.Signature{signature}).Return(&rpc.GetSignatureStatusesResult{
			Value: []*rpc.SignatureStatusesResult{{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}},
		}, nil).Once()

		// When: submitting a move
		err := gateway.SubmitMove(ctx, gameAddr, 1, 2)

		// Then: it succeeds
		require.NoError(t, err)
	})

	t.Run("Preflight failure is a rejection with its reason", func(t *testing.T) {
		gateway, client := newTestGateway(t, "")
		client.On("GetLatestBlockhash", mock.Anything, rpc.CommitmentFinalized).Return(blockhash, nil).Once()
		client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).Return(solana.Signature{}, &jsonrpc.RPCError{
			Code:    -32002,
			Message: "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1777",
		}).Once()

		err := gateway.SubmitMove(ctx, gameAddr, 0, 0)

		require.ErrorIs(t, err, apperror.ErrSubmissionRejected)
		require.ErrorIs(t, err, apperror.ErrCellOccupied)
	})

	t.Run("Failed execution is a rejection", func(t *testing.T) {
		gateway, client := newTestGateway(t, "")
		client.On("GetLatestBlockhash", mock.Anything, rpc.CommitmentFinalized).Return(blockhash, nil).Once()
		client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).Return(signature, nil).Once()
		client.On("GetSignatureStatuses", mock.Anything, false, []solana.Signature{signature}).Return(&rpc.GetSignatureStatusesResult{
			Value: []*rpc.SignatureStatusesResult{{
				Err: map[string]any{"InstructionError": []any{float64(0), map[string]any{"Custom": float64(6004)}}},
			}},
		}, nil).Once()

		err := gateway.SubmitMove(ctx, gameAddr, 0, 0)

		require.ErrorIs(t, err, apperror.ErrSubmissionRejected)
		require.ErrorIs(t, err, apperror.ErrGameFinished)
	})

	t.Run("Blockhash failure is a transport error", func(t *testing.T) {
		gateway, client := newTestGateway(t, "")
		client.On("GetLatestBlockhash", mock.Anything, rpc.CommitmentFinalized).Return(nil, errors.New("connection refused")).Once()

		err := gateway.SubmitMove(ctx, gameAddr, 0, 0)

		require.Error(t, err)
		assert.NotErrorIs(t, err, apperror.ErrSubmissionRejected)
	})
}

func TestGateway_SubmitClose(t *testing.T) {
	t.Run("A player without a token account cannot be paid", func(t *testing.T) {
		// Given: a finished game whose winner holds no account of the mint
		gateway, client := newTestGateway(t, "")
		gameKey := solana.NewWallet().PublicKey()
		data := rawGame(emptyBoard(), append([]byte{stateOver}, playerOneKey[:]...), 10)

		client.On("GetAccountInfoWithOpts", mock.Anything, gameKey, mock.Anything).Return(accountInfo(programKey, data), nil).Once()
		client.On("GetTokenAccountsByOwner", mock.Anything, playerOneKey, mock.Anything, mock.Anything).Return(&rpc.GetTokenAccountsResult{}, nil).Once()

		// When: closing it
		err := gateway.SubmitClose(context.Background(), entity.Address(gameKey.String()))

		// Then: nothing is sent
		require.ErrorIs(t, err, apperror.ErrNoTokenAccount)
	})
}

func TestReached(t *testing.T) {
	assert.True(t, reached(rpc.ConfirmationStatusFinalized, rpc.CommitmentFinalized))
	assert.False(t, reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized))
	assert.True(t, reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed))
	assert.False(t, reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	assert.True(t, reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed))
}

func TestExplorerLink(t *testing.T) {
	signature := solana.Signature{9}
	base := "https://explorer.solana.com/tx/" + signature.String()

	cases := map[string]string{
		"":             base,
		"mainnet-beta": base,
		"devnet":       base + "?cluster=devnet",
		"custom":       base + "?cluster=custom&customUrl=http%3A%2F%2Flocalhost%3A8899",
	}

	for cluster, expected := range cases {
		gateway, _ := newTestGateway(t, cluster)

		assert.Equal(t, expected, gateway.explorerLink(signature), cluster)
	}
}
