package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/starford/cetus/internal/mcpserver"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve Cetus tools over the Model Context Protocol on stdio",
		Flags: apiFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			client, err := app.Client()
			if err != nil {
				return err
			}
			store, err := app.Markers()
			if err != nil {
				return err
			}

			srv := mcpserver.New(store, client, client, app.Logger, app.Config.Query.SinceDays)
			app.Logger.Info("MCP server starting on stdio")
			if err := srv.ServeStdio(); err != nil {
				app.Logger.Error("MCP server error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
}
