package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/hardgate/cmd"
	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/crawl"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/llm"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "hardgate",
		Usage:   "LLM-driven application and platform hard-gate assessment",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   config.DefaultFile,
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` when it exists",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			path := c.String("env-file")
			if _, err := os.Stat(path); err != nil {
				return nil
			}
			if err := cmd.LoadEnvFile(path); err != nil {
				return fmt.Errorf("failed to load %s: %w", path, err)
			}
			return nil
		},
		Commands: []*cli.Command{
			cmd.AnalyzeCommand(),
			cmd.ReportsCommand(),
			cmd.ServeCommand(),
			cmd.ConfigCommand(),
			cmd.EnvCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration and clone failures, 1 otherwise.
func exitCode(err error) int {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) ||
		errors.Is(err, crawl.ErrCloneFailed) ||
		errors.Is(err, intake.ErrUnreadableWorkbook) ||
		errors.Is(err, llm.ErrNoProvider) {
		return 2
	}
	return 1
}
