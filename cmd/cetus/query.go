package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/cetus/internal"
	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/reconcile"
)

func queryFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "index",
			Aliases: []string{"i"},
			Usage:   "Index to search: dns, certstream or alerting",
			Value:   string(models.IndexDNS),
		},
		&cli.StringFlag{
			Name:    "media",
			Aliases: []string{"m"},
			Usage:   "Storage tier: nvme (fast, recent) or all",
			Value:   string(models.MediaNVMe),
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: json, jsonl, csv or table (default: json, or jsonl with --stream)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Accumulate results in this file; later runs add only new records",
		},
		&cli.StringFlag{
			Name:    "output-prefix",
			Aliases: []string{"p"},
			Usage:   "Write each run's new records to <prefix>_<timestamp>.<ext>",
		},
		&cli.IntFlag{
			Name:    "since-days",
			Aliases: []string{"d"},
			Usage:   "Look back N days when no marker exists (default from config: 7)",
		},
		&cli.StringFlag{
			Name:  "since",
			Usage: "Fetch records from this timestamp instead of the marker or --since-days",
		},
		&cli.BoolFlag{
			Name:  "no-marker",
			Usage: "Ignore any stored marker and do not save a new one",
		},
		&cli.BoolFlag{
			Name:  "rewrite",
			Usage: "Replace the output file instead of appending; the marker is still advanced",
		},
		&cli.BoolFlag{
			Name:  "stream",
			Usage: "Write records in batches as they arrive instead of after the whole fetch",
		},
	}
	return append(flags, apiFlags()...)
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Run a search query, incrementally when writing to a file",
		ArgsUsage: "SEARCH",
		Description: `SEARCH is a Lucene query, for example:

   host:*.example.com          wildcard domain match
   A:192.0.2.1                 DNS A record lookup
   host:example.com AND A:*    combined conditions

With --output the first run fetches the last --since-days days and stores a
marker; later runs fetch only records newer than the marker and add them to
the file.`,
		Flags: queryFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			search := cmd.Args().First()
			if search == "" {
				return apperr.Configuration("missing SEARCH argument")
			}
			return runQuery(ctx, cmd, search)
		},
	}
}

// runQuery runs one incremental query for search with the query flags of cmd.
func runQuery(ctx context.Context, cmd *cli.Command, search string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	client, err := app.Client()
	if err != nil {
		return err
	}
	driver, err := app.Driver(client)
	if err != nil {
		return err
	}

	req := buildRequest(cmd, app.Config, search)
	if req.Stream && req.Format == models.FormatTable {
		warn("--stream with --format table buffers every record; use csv or jsonl for true streaming")
	}

	start := time.Now()
	stop := func() {}
	if req.Stream {
		note("Streaming results...")
	} else {
		stop = startSpinner("Querying...")
	}
	res, err := driver.Run(ctx, req)
	stop()
	if err != nil {
		return err
	}

	report(req, res, start, cmd.Bool("verbose"))
	return nil
}

func buildRequest(cmd *cli.Command, cfg *internal.Config, search string) reconcile.Request {
	format := models.Format(cmd.String("format"))
	if format == "" {
		format = models.FormatJSON
		if cmd.Bool("stream") {
			format = models.FormatJSONL
		}
	}
	sinceDays := cfg.Query.SinceDays
	if cmd.IsSet("since-days") {
		sinceDays = int(cmd.Int("since-days"))
	}
	return reconcile.Request{
		Query:            search,
		Index:            models.Index(cmd.String("index")),
		Media:            models.Media(cmd.String("media")),
		Format:           format,
		OutputPath:       cmd.String("output"),
		OutputPrefix:     cmd.String("output-prefix"),
		SinceDays:        sinceDays,
		Lower:            cmd.String("since"),
		NoMarker:         cmd.Bool("no-marker"),
		ForceFullRewrite: cmd.Bool("rewrite"),
		Stream:           cmd.Bool("stream"),
		BatchSize:        cfg.Query.BatchSize,
	}
}

func report(req reconcile.Request, res reconcile.Result, start time.Time, verbose bool) {
	for _, w := range res.Warnings {
		warn("Warning: %s", w)
	}
	if res.Schema != nil {
		warn("Warning: %d record(s) had fields outside the CSV header, dropped: %v", res.Schema.Records, res.Schema.Dropped)
	}

	switch {
	case !req.ToFile():
		note("\n%d records in %s", res.Written, elapsed(start))
	case res.Written == 0:
		note("No new records (%d fetched in %s)", res.Fetched, elapsed(start))
	case req.Stream:
		success("Streamed %d records to %s in %s", res.Written, res.Path, elapsed(start))
	case res.Appended:
		success("Appended %d records to %s in %s", res.Written, res.Path, elapsed(start))
	default:
		success("Wrote %d records to %s in %s", res.Written, res.Path, elapsed(start))
	}

	if verbose && res.MarkerAdvanced {
		note("Saved marker for next incremental query")
	}
}
