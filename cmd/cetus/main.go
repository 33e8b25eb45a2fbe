package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/cetus/internal"
	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/pkg/config"
)

var version = "dev"

// Exit codes.
const (
	exitError       = 1
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:    "cetus",
		Usage:   "Query DNS, certificate-transparency and alerting data from the Cetus API",
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging on stderr",
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "<user config dir>/cetus/config.yaml",
				Sources:     cli.EnvVars(internal.EnvConfigFile),
			},
		},
		Commands: []*cli.Command{
			queryCommand(),
			alertsCommand(),
			markersCommand(),
			configCommand(),
			mcpCommand(),
		},
	}

	err := cmd.Run(ctx, os.Args)
	stop()
	os.Exit(exitCode(ctx, err))
}

func exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, apperr.ErrCancelled) || ctx.Err() != nil:
		warn("\nInterrupted")
		return exitInterrupted
	default:
		printError(err)
		return exitError
	}
}

func configPath(cmd *cli.Command) string {
	if p := cmd.String("config"); p != "" {
		return p
	}
	return internal.ConfigFile()
}

// loadConfig reads the config file over the defaults. With env set, the
// CETUS_* environment is applied on top.
func loadConfig(cmd *cli.Command, env bool) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := config.LoadOptional(configPath(cmd), cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrConfiguration, err)
	}
	if env {
		cfg.ApplyEnv()
	}
	return cfg, nil
}

// newApp builds the application for commands that talk to the API or the
// marker store. Flag values win over the environment and the config file.
func newApp(cmd *cli.Command) (*internal.App, error) {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return nil, err
	}
	if v := cmd.String("api-key"); v != "" {
		cfg.API.Key = v
	}
	if v := cmd.String("host"); v != "" {
		cfg.API.Host = v
	}
	return internal.New(
		internal.WithConfig(cfg),
		internal.WithVerbose(cmd.Bool("verbose")),
	)
}

func apiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API key",
			Sources: cli.EnvVars(internal.EnvAPIKey),
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "API host (default: alerting.sparkits.ca)",
			Sources: cli.EnvVars(internal.EnvHost),
		},
	}
}
