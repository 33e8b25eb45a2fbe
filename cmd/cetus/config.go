package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/pkg/config"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Display the effective configuration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd, true)
					if err != nil {
						return err
					}
					w := os.Stdout
					fmt.Fprintln(w, headerColor.Sprint("Current Configuration"))
					fmt.Fprintln(w)
					for _, kv := range cfg.Summary() {
						fmt.Fprintf(w, "  %s %s\n", headerColor.Sprint(kv[0]+":"), kv[1])
					}
					note("\nConfig file: %s", configPath(cmd))
					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "Set a configuration value (api-key, host, timeout, since-days)",
				ArgsUsage: "KEY VALUE",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 2 {
						return apperr.Configuration("usage: cetus config set KEY VALUE")
					}
					key, value := cmd.Args().Get(0), cmd.Args().Get(1)

					// The environment must not leak into the saved file.
					cfg, err := loadConfig(cmd, false)
					if err != nil {
						return err
					}
					if err := cfg.Set(key, value); err != nil {
						return err
					}
					if err := cfg.Validate(); err != nil {
						return fmt.Errorf("%w: %w", apperr.ErrConfiguration, err)
					}
					if err := config.Save(configPath(cmd), cfg); err != nil {
						return err
					}
					success("Set %s successfully", key)
					return nil
				},
			},
			{
				Name:  "path",
				Usage: "Print the config file path",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Println(configPath(cmd))
					return nil
				},
			},
		},
	}
}
