package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
)

func markersCommand() *cli.Command {
	return &cli.Command{
		Name:  "markers",
		Usage: "Manage the markers that make file queries incremental",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List stored markers, newest first",
				Action: markersList,
			},
			{
				Name:  "clear",
				Usage: "Delete stored markers",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "index",
						Aliases: []string{"i"},
						Usage:   "Only clear markers for this index",
					},
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip confirmation",
					},
				},
				Action: markersClear,
			},
		},
	}
}

func markersList(ctx context.Context, cmd *cli.Command) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	store, err := app.Markers()
	if err != nil {
		return err
	}

	entries, err := store.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		note("No markers stored")
		return nil
	}

	tw := tabwriter.NewWriter(app.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Index\tQuery\tLast Timestamp\tUpdated")
	for _, e := range entries {
		if e.Err != nil {
			fmt.Fprintf(tw, "?\t%s\tunreadable: %v\t-\n", e.Signature, e.Err)
			continue
		}
		m := e.Marker
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Index, shorten(m.Query, 40), m.LastTimestamp, formatUpdated(m.UpdatedAt))
	}
	return tw.Flush()
}

func markersClear(ctx context.Context, cmd *cli.Command) error {
	index := models.Index(cmd.String("index"))
	if index != "" && !slices.Contains(models.Indexes, index) {
		return apperr.Configuration("unknown index %q", index)
	}

	if !cmd.Bool("yes") {
		target := "all markers"
		if index != "" {
			target = fmt.Sprintf("all %s markers", index)
		}
		if !confirm(os.Stdin, "Clear "+target+"?") {
			warn("Cancelled")
			return nil
		}
	}

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	store, err := app.Markers()
	if err != nil {
		return err
	}

	res, err := store.Clear(index)
	if err != nil {
		return err
	}
	for _, f := range res.Failed {
		warn("Warning: %v", f)
	}
	success("Cleared %d marker(s)", res.Removed)
	return nil
}

// formatUpdated renders a marker time for tables.
func formatUpdated(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
