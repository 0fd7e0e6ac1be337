package onchain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
)

// anchorErrorOffset is where custom program error codes start.
const anchorErrorOffset = 6000

// programErrors in declaration order of the program's error enum.
var programErrors = []error{
	apperror.ErrZeroStake,
	apperror.ErrNotAuthorized,
	apperror.ErrGameIsNotStarted,
	apperror.ErrGameAlreadyAccepted,
	apperror.ErrGameFinished,
	apperror.ErrGameNotCompleted,
	apperror.ErrTileOutOfBounds,
	apperror.ErrCellOccupied,
}

const customErrorMarker = "custom program error: 0x"

// classify separates program rejections from transport failures. Any
// JSON-RPC error reply counts as a rejection; custom program codes are
// mapped to their sentinels.
func classify(err error) error {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}

	if reason := programError(rpcErr.Message); reason != nil {
		return fmt.Errorf("%w: %w", apperror.ErrSubmissionRejected, reason)
	}

	return fmt.Errorf("%w: %s", apperror.ErrSubmissionRejected, rpcErr.Message)
}

// programError finds "custom program error: 0x...." in message.
func programError(message string) error {
	idx := strings.Index(message, customErrorMarker)
	if idx < 0 {
		return nil
	}

	digits := message[idx+len(customErrorMarker):]
	if end := strings.IndexFunc(digits, func(r rune) bool { return !strings.ContainsRune("0123456789abcdefABCDEF", r) }); end >= 0 {
		digits = digits[:end]
	}

	code, err := strconv.ParseUint(digits, 16, 32)
	if err != nil || code < anchorErrorOffset || code-anchorErrorOffset >= uint64(len(programErrors)) {
		return nil
	}

	return programErrors[code-anchorErrorOffset]
}

// statusError turns the err field of a signature status into a rejection.
func statusError(status any) error {
	message := fmt.Sprint(status)
	if reason := programError(message); reason != nil {
		return fmt.Errorf("%w: %w", apperror.ErrSubmissionRejected, reason)
	}

	if custom, ok := customCode(status); ok && custom >= anchorErrorOffset && custom-anchorErrorOffset < uint64(len(programErrors)) {
		return fmt.Errorf("%w: %w", apperror.ErrSubmissionRejected, programErrors[custom-anchorErrorOffset])
	}

	return fmt.Errorf("%w: %s", apperror.ErrSubmissionRejected, message)
}

// customCode digs {"InstructionError":[0,{"Custom":6001}]} out of a decoded status error.
func customCode(status any) (uint64, bool) {
	root, ok := status.(map[string]any)
	if !ok {
		return 0, false
	}

	pair, ok := root["InstructionError"].([]any)
	if !ok || len(pair) != 2 {
		return 0, false
	}

	detail, ok := pair[1].(map[string]any)
	if !ok {
		return 0, false
	}

	switch code := detail["Custom"].(type) {
	case float64:
		return uint64(code), true
	case json.Number:
		n, err := code.Int64()
		return uint64(n), err == nil
	default:
		return 0, false
	}
}
