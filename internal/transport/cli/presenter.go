package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/rocketscienceinc/tictactoe-stake-client/internal/entity"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/funding"
	"github.com/rocketscienceinc/tictactoe-stake-client/internal/usecase"
)

// Presenter writes everything the player sees.
type Presenter struct {
	out io.Writer

	info    *pterm.PrefixPrinter
	problem *pterm.PrefixPrinter
	success *pterm.PrefixPrinter
}

func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{
		out:     out,
		info:    pterm.Info.WithWriter(out),
		problem: pterm.Error.WithWriter(out),
		success: pterm.Success.WithWriter(out),
	}
}

func (that *Presenter) Info(format string, args ...any) {
	that.info.Printfln(format, args...)
}

func (that *Presenter) Problem(err error) {
	that.problem.Println(err.Error())
}

// Board draws the grid with row and column numbers as the move prompt expects them.
func (that *Presenter) Board(board entity.Board) {
	data := pterm.TableData{{"", "0", "1", "2"}}
	for i, row := range board {
		line := []string{strconv.Itoa(i)}
		for _, tile := range row {
			line = append(line, tileMark(tile))
		}
		data = append(data, line)
	}

	that.render(pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data))
}

func (that *Presenter) Mint(mint entity.MintInfo) {
	that.info.Printfln("Total supply of token: %s", funding.FormatAmount(mint.Supply, mint.Decimals))
	that.info.Printfln("Smallest denomination: %s", funding.FormatAmount(1, mint.Decimals))
}

func (that *Presenter) FundingAccounts(accounts []entity.FundingAccount, decimals uint8) {
	if len(accounts) == 1 {
		that.info.Printfln("Token account address: %s", accounts[0].Address)
		that.info.Printfln("Token balance: %s", funding.FormatAmount(accounts[0].Balance, decimals))
		return
	}

	data := pterm.TableData{{"#", "Account", "Balance"}}
	for i, account := range accounts {
		data = append(data, []string{strconv.Itoa(i + 1), account.Address.String(), funding.FormatAmount(account.Balance, decimals)})
	}

	that.render(pterm.DefaultTable.WithHasHeader().WithData(data))
}

func (that *Presenter) Games(summaries []usecase.GameSummary) {
	data := pterm.TableData{{"#", "Game", "Opponent", "Stake token", "Stake", "Turns remaining"}}
	for _, summary := range summaries {
		data = append(data, []string{
			strconv.Itoa(summary.Position),
			summary.Address.String(),
			summary.Opponent.String(),
			summary.StakeMint.String(),
			summary.Stake,
			strconv.Itoa(summary.TurnsRemaining),
		})
	}

	that.render(pterm.DefaultTable.WithHasHeader().WithData(data))
}

func (that *Presenter) Outcome(outcome usecase.Outcome) {
	message := OutcomeMessage(outcome)

	switch outcome {
	case usecase.OutcomeWon:
		that.success.Println(message)
	case usecase.OutcomeLost:
		that.problem.Println(message)
	default:
		that.info.Println(message)
	}
}

// Waiting shows a spinner until stop is called.
func (that *Presenter) Waiting(message string) func() {
	spinner, err := pterm.DefaultSpinner.WithWriter(that.out).WithRemoveWhenDone().Start(message)
	if err != nil {
		that.info.Println(message)
		return func() {}
	}

	return func() {
		_ = spinner.Stop()
	}
}

func (that *Presenter) render(table *pterm.TablePrinter) {
	if err := table.WithWriter(that.out).Render(); err != nil {
		that.problem.Println(fmt.Sprintf("failed to render table: %v", err))
	}
}

func OutcomeMessage(outcome usecase.Outcome) string {
	switch outcome {
	case usecase.OutcomeWon:
		return "$$$$ You won the game $$$$"
	case usecase.OutcomeLost:
		return "You lost the game :("
	case usecase.OutcomeTie:
		return "---- Game tied ----"
	default:
		return "Game finished"
	}
}

func tileMark(tile entity.Tile) string {
	if tile == entity.TileEmpty {
		return " "
	}
	return tile.String()
}
