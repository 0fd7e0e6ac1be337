// Package cli is the terminal transport: it reads answers from the player and
// renders game state with pterm.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

var ErrInputClosed = errors.New("input closed")

type answer struct {
	text string
	err  error
}

// Prompter asks one question at a time. Interactive terminals get a pterm
// text input; piped input is read line by line.
type Prompter struct {
	read func(question string) (string, error)
}

// NewPrompter picks the input mode from stdin.
func NewPrompter() *Prompter {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return &Prompter{read: showInput}
	}

	return NewLinePrompter(os.Stdin, os.Stdout)
}

// NewLinePrompter reads answers from in and echoes questions to out.
func NewLinePrompter(in io.Reader, out io.Writer) *Prompter {
	lines := bufio.NewScanner(in)

	return &Prompter{read: func(question string) (string, error) {
		if _, err := fmt.Fprint(out, question); err != nil {
			return "", fmt.Errorf("failed to write question: %w", err)
		}

		if !lines.Scan() {
			if err := lines.Err(); err != nil {
				return "", fmt.Errorf("failed to read answer: %w", err)
			}
			return "", ErrInputClosed
		}

		return lines.Text(), nil
	}}
}

func showInput(question string) (string, error) {
	text := strings.TrimSuffix(strings.TrimSpace(question), ":")

	return pterm.DefaultInteractiveTextInput.WithDefaultText(text).Show()
}

// Ask returns the answer to question or ctx's error, whichever comes first.
// A read still blocked on the terminal is abandoned when ctx ends.
func (that *Prompter) Ask(ctx context.Context, question string) (string, error) {
	result := make(chan answer, 1)

	go func() {
		text, err := that.read(question)
		result <- answer{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case got := <-result:
		if got.err != nil {
			return "", got.err
		}
		return strings.TrimSpace(got.text), nil
	}
}
