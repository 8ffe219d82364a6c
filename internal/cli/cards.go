package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/card"
	"github.com/five82/metricdeck/internal/config"
	"github.com/five82/metricdeck/internal/preview"
	"github.com/five82/metricdeck/internal/ui"
)

func addPeriodFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "period", "p", string(api.Consolidated),
		`period key such as "2024-05", or "consolidated"`)
}

func parsePeriod(value string) api.Period {
	if v := strings.TrimSpace(value); v != "" {
		return api.Period(v)
	}
	return api.Consolidated
}

type cardCmd struct {
	cli    *CLI
	period string
}

func (c *CLI) newCardCmd() *cobra.Command {
	cc := &cardCmd{cli: c}
	cmd := &cobra.Command{
		Use:   "card [name...]",
		Short: "Print card values (every configured card by default)",
		RunE:  cc.run,
	}
	addPeriodFlag(cmd, &cc.period)
	return cmd
}

func (cc *cardCmd) run(cmd *cobra.Command, args []string) error {
	c := cc.cli
	a, cleanup, err := c.open(false)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := a.RequireSession(); err != nil {
		return err
	}

	names := args
	if len(names) == 0 {
		names = a.Config.CardNames()
	}
	board := a.Cards.NewBoard(cmd.Context(), names, parsePeriod(cc.period))
	defer board.Close()

	states, err := waitSettled(cmd.Context(), board)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.opts.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CARD\tVALUE\tCHANGE")
	failed := 0
	for _, st := range states {
		def, ok := a.Config.Card(st.Query.Card)
		if !ok {
			def = config.Card{Name: st.Query.Card, Title: st.Query.Card, Format: config.FormatNumber}
		}
		value := ui.FormatValue(st.Metric.Value, def.Format)
		change := ""
		if text, _, ok := ui.Trend(st.Metric.Change); ok {
			change = text
		}
		if st.Err != nil {
			failed++
			value = "error: " + api.UserMessage(st.Err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", def.Title, value, change)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cards failed", failed, len(states))
	}
	return nil
}

// waitSettled blocks until no card of board is loading.
func waitSettled(ctx context.Context, board *card.Board) ([]card.State, error) {
	for {
		states := board.States()
		settled := true
		for _, st := range states {
			if st.Loading {
				settled = false
				break
			}
		}
		if settled {
			return states, nil
		}
		select {
		case _, ok := <-board.Changes():
			if !ok {
				return nil, errors.New("card board closed")
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *CLI) newPeriodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "periods",
		Short: "List the periods with data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := c.open(false)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := a.RequireSession(); err != nil {
				return err
			}

			periods, err := a.Client.FetchAvailablePeriods(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch periods: %w", err)
			}
			fmt.Fprintln(c.opts.Out, api.Consolidated)
			for _, p := range periods {
				if p != api.Consolidated {
					fmt.Fprintln(c.opts.Out, p)
				}
			}
			return nil
		},
	}
}

type previewCmd struct {
	cli    *CLI
	period string
	page   int
}

func (c *CLI) newPreviewCmd() *cobra.Command {
	pc := &previewCmd{cli: c}
	cmd := &cobra.Command{
		Use:   "preview <card>",
		Short: fmt.Sprintf("Print one page (%d rows) of a card's detail data", preview.PageSize),
		Args:  cobra.ExactArgs(1),
		RunE:  pc.run,
	}
	addPeriodFlag(cmd, &pc.period)
	cmd.Flags().IntVar(&pc.page, "page", 1, "page number, clamped to the available pages")
	return cmd
}

func (pc *previewCmd) run(cmd *cobra.Command, args []string) error {
	c := pc.cli
	a, cleanup, err := c.open(false)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := a.RequireSession(); err != nil {
		return err
	}

	ctrl := a.NewPreview()
	ds, err := ctrl.LoadPreview(cmd.Context(), api.CardQuery{Card: args[0], Period: parsePeriod(pc.period)})
	if err != nil {
		return err
	}
	ctrl.SetPage(pc.page)

	tw := tabwriter.NewWriter(c.opts.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(ds.Columns, "\t"))
	for _, row := range ctrl.VisibleRows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.opts.Out, "Page %d of %d · %d rows\n", ctrl.Page(), ctrl.TotalPages(), ds.Len())
	return nil
}

type exportCmd struct {
	cli    *CLI
	period string
}

func (c *CLI) newExportCmd() *cobra.Command {
	ec := &exportCmd{cli: c}
	cmd := &cobra.Command{
		Use:   "export <card>",
		Short: "Download a card's spreadsheet into the download directory",
		Args:  cobra.ExactArgs(1),
		RunE:  ec.run,
	}
	addPeriodFlag(cmd, &ec.period)
	cmd.Flags().String("dir", "", "download directory (overrides download_dir)")
	_ = c.v.BindPFlag("download-dir", cmd.Flags().Lookup("dir"))
	return cmd
}

func (ec *exportCmd) run(cmd *cobra.Command, args []string) error {
	c := ec.cli
	a, cleanup, err := c.open(false)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := a.RequireSession(); err != nil {
		return err
	}

	res, err := a.Exports.Export(cmd.Context(), api.CardQuery{Card: args[0], Period: parsePeriod(ec.period)})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.opts.Out, "Saved %s (%d bytes)\n", res.Path, res.Size)
	return nil
}
