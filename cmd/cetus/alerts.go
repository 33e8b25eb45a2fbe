package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/cetus"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/output"
)

func alertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "View alert definitions and their results",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List alert definitions",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "owned",
						Usage: "Include alerts you own (use --owned=false to hide)",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "shared",
						Usage: "Include alerts shared with you",
					},
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Filter by alert type: raw, terms or structured",
					},
				}, apiFlags()...),
				Action: alertsList,
			},
			{
				Name:      "results",
				Usage:     "Show the stored results of an alert",
				ArgsUsage: "ALERT_ID",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "since",
						Aliases: []string{"s"},
						Usage:   "Only results after this ISO-8601 timestamp",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: json, jsonl, csv or table",
						Value:   string(models.FormatJSON),
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write results to this file (replaced on every run)",
					},
				}, apiFlags()...),
				Action: alertsResults,
			},
			{
				Name:      "backtest",
				Usage:     "Run an alert's query against the full database",
				ArgsUsage: "ALERT_ID",
				Flags:     queryFlags(),
				Action:    alertsBacktest,
			},
		},
	}
}

func alertID(cmd *cli.Command) (int, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return 0, apperr.Configuration("missing ALERT_ID argument")
	}
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, apperr.Configuration("invalid alert id %q", arg)
	}
	return id, nil
}

func alertsList(ctx context.Context, cmd *cli.Command) error {
	f := cetus.AlertFilter{
		Owned:  cmd.Bool("owned"),
		Shared: cmd.Bool("shared"),
		Type:   cmd.String("type"),
	}
	if f.Type != "" && !slices.Contains(cetus.AlertTypes, f.Type) {
		return apperr.Configuration("unknown alert type %q, valid types: %s", f.Type, strings.Join(cetus.AlertTypes, ", "))
	}
	if !f.Owned && !f.Shared {
		warn("Warning: --owned=false without --shared lists no alerts")
		return nil
	}

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	client, err := app.Client()
	if err != nil {
		return err
	}

	alerts, err := client.ListAlerts(ctx, f)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		note("No alerts found")
		return nil
	}

	tw := tabwriter.NewWriter(app.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tType\tTitle\tDescription\tOwner/Shared By")
	for _, a := range alerts {
		owner := "You"
		if !a.Owned {
			owner = a.SharedBy
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", a.ID, a.AlertType, a.Title, shorten(a.Description, 40), owner)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	note("\nTotal: %d alert(s)", len(alerts))
	return nil
}

func alertsResults(ctx context.Context, cmd *cli.Command) error {
	id, err := alertID(cmd)
	if err != nil {
		return err
	}
	format := models.Format(cmd.String("format"))
	if !slices.Contains(models.Formats, format) {
		return apperr.Configuration("unknown output format %q", format)
	}
	path := cmd.String("output")

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	client, err := app.Client()
	if err != nil {
		return err
	}

	stop := startSpinner("Fetching alert results...")
	results, err := client.AlertResults(ctx, id, cmd.String("since"))
	stop()
	if err != nil {
		return err
	}
	if len(results) == 0 {
		note("No results found for this alert")
		return nil
	}

	if path == "" {
		return output.Encode(format, app.Stdout, results)
	}
	res, err := output.NewWriter(app.Logger).Write(path, format, results, false)
	if err != nil {
		return err
	}
	success("Wrote %d results to %s", res.Written, path)
	return nil
}

func alertsBacktest(ctx context.Context, cmd *cli.Command) error {
	id, err := alertID(cmd)
	if err != nil {
		return err
	}

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	client, err := app.Client()
	if err != nil {
		app.Close()
		return err
	}
	alert, err := client.GetAlert(ctx, id)
	app.Close()
	if err != nil {
		return err
	}
	if strings.TrimSpace(alert.Query) == "" {
		return fmt.Errorf("alert %d has no query to backtest", id)
	}
	note("Backtesting alert %d (%s): %s", alert.ID, alert.Title, alert.Query)
	return runQuery(ctx, cmd, alert.Query)
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
