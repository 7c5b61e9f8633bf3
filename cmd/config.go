package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/embedding"
	"github.com/hardgate/internal/llm"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   config.DefaultFile,
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file and environment",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}

	w := c.App.Writer
	sel, err := llm.SelectProvider(cfg.LLM)
	if err != nil {
		fmt.Fprintf(w, "LLM:        not configured (%v)\n", err)
	} else {
		fmt.Fprintf(w, "LLM:        %s (%s)\n", sel.Provider, sel.Model)
	}
	if cfg.Index.Enabled {
		fmt.Fprintf(w, "Index:      %s, embeddings: %s\n", cfg.Index.Backend, embedding.Choose(cfg))
	} else {
		fmt.Fprintln(w, "Index:      disabled")
	}
	if cfg.Jira.Configured() {
		fmt.Fprintf(w, "Jira:       %s (project %s)\n", cfg.Jira.URL, cfg.Jira.ProjectKey)
	} else {
		fmt.Fprintln(w, "Jira:       not configured")
	}
	fmt.Fprintf(w, "Output:     %s\n", cfg.OutputDir)

	fmt.Fprintln(w, "Configuration is valid")
	return nil
}
