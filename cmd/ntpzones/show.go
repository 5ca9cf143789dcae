package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ntpzones/ntpzones/internal/report"
	"github.com/ntpzones/ntpzones/internal/zones"
)

func newShowCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Query every server once and print the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(c.config, c.log)
			if err != nil {
				return err
			}
			snap := app.Snapshot(contextOrBackground(cmd.Context()))
			return writeSnapshot(cmd.OutOrStdout(), snap, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot document instead of tables")
	return cmd
}

func writeSnapshot(w io.Writer, snap report.Snapshot, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	out, err := renderSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// renderSnapshot lays the snapshot out as a summary table, one zone table per
// answering server, and the local clock's zones
func renderSnapshot(snap report.Snapshot) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n\n", pterm.Bold.Sprint("Queried at (UTC):"), snap.QueriedAt.UTC().Format("2006-01-02 15:04:05"))

	summary := pterm.TableData{{"Server", "Address", "NTP UTC", "Offset (s)", "Stratum", "Delay (s)", "Status"}}
	for _, sr := range snap.Servers {
		summary = append(summary, summaryRow(sr))
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(summary).Srender()
	if err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	b.WriteString(table)
	b.WriteString("\n")

	for _, sr := range snap.Servers {
		if sr.Converted == nil {
			continue
		}
		title := fmt.Sprintf("%s (%s)", sr.Result.SourceLabel, sr.Result.Address)
		if err := renderProjection(&b, title, *sr.Converted); err != nil {
			return "", err
		}
	}

	if err := renderProjection(&b, "Local clock", snap.LocalZones); err != nil {
		return "", err
	}

	return b.String(), nil
}

func summaryRow(sr report.SourceReport) []string {
	r := sr.Result
	row := []string{r.SourceLabel, r.Address, "-", "-", "-", "-", "ok"}

	if r.ServerUTC != nil {
		row[2] = r.ServerUTC.UTC().Format("15:04:05.000")
	}
	if r.OffsetSeconds != nil {
		row[3] = strconv.FormatFloat(*r.OffsetSeconds, 'f', 3, 64)
	}
	if r.Stratum != nil {
		row[4] = strconv.Itoa(int(*r.Stratum))
	}
	if r.RoundTripDelay != nil {
		row[5] = strconv.FormatFloat(*r.RoundTripDelay, 'f', 3, 64)
	}
	if r.Err != nil {
		row[6] = string(r.Err.Kind) + ": " + r.ErrorMessage()
	}
	return row
}

func renderProjection(b *strings.Builder, title string, p zones.Projection) error {
	fmt.Fprintf(b, "\n%s\n", pterm.Bold.Sprint(title))

	if p.Len() == 0 {
		b.WriteString("(no zones)\n")
		return nil
	}

	data := pterm.TableData{{"Zone", "Time"}}
	for _, e := range p.Entries() {
		value := "unavailable"
		if e.Value != nil {
			value = *e.Value
		}
		data = append(data, []string{e.Label, value})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render %s: %w", title, err)
	}
	b.WriteString(table)
	b.WriteString("\n")
	return nil
}

// contextOrBackground guards commands executed without ExecuteContext
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
