package entity

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/apperror"
)

var errNilStatus = errors.New("game has no status")

// Status is one of Unaccepted, Turn, Draw or Over. The set is closed:
// consumers switch on the concrete type and treat anything else as a bug.
type Status interface {
	status()
}

type Unaccepted struct{}

type Turn struct {
	Index uint8
}

type Draw struct{}

type Over struct {
	Winner Address
}

func (Unaccepted) status() {}
func (Turn) status()       {}
func (Draw) status()       {}
func (Over) status()       {}

func IsTerminal(s Status) bool {
	switch s.(type) {
	case Draw, Over:
		return true
	default:
		return false
	}
}

func IsUnaccepted(s Status) bool {
	_, ok := s.(Unaccepted)
	return ok
}

func IsTurn(s Status) bool {
	_, ok := s.(Turn)
	return ok
}

// StatusRecord is the wire form of a status: an object with exactly one
// of its fields present, e.g. {"turn":{"index":1}}.
type StatusRecord struct {
	Unaccepted *struct{}   `json:"unaccepted,omitempty"`
	Turn       *TurnRecord `json:"turn,omitempty"`
	Draw       *struct{}   `json:"draw,omitempty"`
	Over       *OverRecord `json:"over,omitempty"`
}

type TurnRecord struct {
	Index uint8 `json:"index"`
}

type OverRecord struct {
	Winner Address `json:"winner"`
}

// ParseStatus converts a wire record into a Status, rejecting records with
// no variant or with more than one.
func ParseStatus(rec StatusRecord) (Status, error) {
	var (
		found  Status
		fields int
	)

	if rec.Unaccepted != nil {
		found = Unaccepted{}
		fields++
	}
	if rec.Turn != nil {
		found = Turn{Index: rec.Turn.Index}
		fields++
	}
	if rec.Draw != nil {
		found = Draw{}
		fields++
	}
	if rec.Over != nil {
		found = Over{Winner: rec.Over.Winner}
		fields++
	}

	if fields != 1 {
		return nil, fmt.Errorf("%w: %d variants present", apperror.ErrMalformedStatus, fields)
	}

	if turn, ok := found.(Turn); ok && turn.Index > 1 {
		return nil, fmt.Errorf("%w: turn index %d", apperror.ErrMalformedStatus, turn.Index)
	}

	return found, nil
}

func RecordStatus(s Status) StatusRecord {
	switch s := s.(type) {
	case Unaccepted:
		return StatusRecord{Unaccepted: &struct{}{}}
	case Turn:
		return StatusRecord{Turn: &TurnRecord{Index: s.Index}}
	case Draw:
		return StatusRecord{Draw: &struct{}{}}
	case Over:
		return StatusRecord{Over: &OverRecord{Winner: s.Winner}}
	default:
		panic(fmt.Sprintf("unknown game status %T", s))
	}
}
