package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/index"
)

// ReportsCommand returns the reports command, which queries the report index
func ReportsCommand() *cli.Command {
	typeFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "type",
			Aliases: []string{"t"},
			Usage:   "Collection to query: analysis or ocp",
			Value:   "analysis",
		}
	}
	limitFlag := func() cli.Flag {
		return &cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Number of results",
			Value:   5,
		}
	}
	jsonFlag := func() cli.Flag {
		return &cli.BoolFlag{Name: "json", Usage: "Print results as JSON"}
	}

	return &cli.Command{
		Name:  "reports",
		Usage: "Query stored assessment reports",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List assessed components, or the reports of one component",
				Flags: []cli.Flag{
					typeFlag(),
					jsonFlag(),
					&cli.StringFlag{Name: "component", Usage: "Show the reports of this component"},
				},
				Action: runReportsList,
			},
			{
				Name:      "search",
				Usage:     "Find reports similar to a query",
				ArgsUsage: "QUERY",
				Flags:     []cli.Flag{typeFlag(), limitFlag(), jsonFlag()},
				Action:    runReportsSearch,
			},
			{
				Name:      "get",
				Usage:     "Print one stored report",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{typeFlag(), jsonFlag()},
				Action:    runReportsGet,
			},
			{
				Name:      "similar",
				Usage:     "Find reports similar to a stored report",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{typeFlag(), limitFlag(), jsonFlag()},
				Action:    runReportsSimilar,
			},
			{
				Name:      "context",
				Usage:     "Find reports relevant to a description, with the matching passage",
				ArgsUsage: "DESCRIPTION",
				Flags: []cli.Flag{
					typeFlag(), limitFlag(), jsonFlag(),
					&cli.Float64Flag{Name: "min-score", Usage: "Drop results below this similarity", Value: 0.3},
					&cli.StringFlag{Name: "component", Usage: "Only consider this component"},
				},
				Action: runReportsContext,
			},
		},
	}
}

// withIndex opens the index for a reports subcommand and resolves --type.
func withIndex(c *cli.Context, fn func(ctx context.Context, ix index.Index, collection string) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !cfg.Index.Enabled {
		return &config.Error{Field: "index.enabled", Msg: "the report index is disabled (USE_CHROMADB=false)"}
	}
	collection, err := index.CollectionsFrom(cfg.Index).Resolve(c.String("type"))
	if err != nil {
		return &config.Error{Field: "type", Msg: err.Error()}
	}

	ctx := c.Context
	ix := openIndex(ctx, cfg)
	defer ix.Close()
	if !ix.Enabled() {
		return fmt.Errorf("report index is unavailable")
	}
	return fn(ctx, ix, collection)
}

func argument(c *cli.Context, name string) (string, error) {
	arg := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if arg == "" {
		return "", &config.Error{Msg: "missing required argument: " + name}
	}
	return arg, nil
}

func runReportsList(c *cli.Context) error {
	return withIndex(c, func(ctx context.Context, ix index.Index, collection string) error {
		w := c.App.Writer
		if component := c.String("component"); component != "" {
			records, err := ix.Filter(ctx, collection, map[string]string{index.MetaComponent: component})
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(w, records)
			}
			fmt.Fprintf(w, "%d report(s) for %s in %s\n", len(records), component, collection)
			for _, r := range records {
				fmt.Fprintf(w, "  %s  %s  %s\n", r.ID, r.Metadata[index.MetaStoredAt], r.Metadata[index.MetaFilePath])
			}
			return nil
		}

		components, err := ix.ListComponents(ctx, collection)
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return writeJSON(w, components)
		}
		fmt.Fprintf(w, "%d component(s) in %s\n", len(components), collection)
		for _, name := range components {
			fmt.Fprintf(w, "  %s\n", name)
		}
		return nil
	})
}

func runReportsSearch(c *cli.Context) error {
	query, err := argument(c, "QUERY")
	if err != nil {
		return err
	}
	return withIndex(c, func(ctx context.Context, ix index.Index, collection string) error {
		results, err := ix.FindSimilar(ctx, collection, "", query, c.Int("limit"))
		if err != nil {
			return err
		}
		return printSimilar(c, results)
	})
}

func runReportsGet(c *cli.Context) error {
	id, err := argument(c, "ID")
	if err != nil {
		return err
	}
	return withIndex(c, func(ctx context.Context, ix index.Index, collection string) error {
		rec, err := ix.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		w := c.App.Writer
		if c.Bool("json") {
			return writeJSON(w, rec)
		}
		fmt.Fprintf(w, "ID:        %s\n", rec.ID)
		fmt.Fprintf(w, "Component: %s\n", rec.Metadata[index.MetaComponent])
		fmt.Fprintf(w, "File:      %s\n", rec.Metadata[index.MetaFilePath])
		fmt.Fprintf(w, "Stored:    %s\n\n", rec.Metadata[index.MetaStoredAt])
		fmt.Fprintln(w, rec.Document)
		return nil
	})
}

func runReportsSimilar(c *cli.Context) error {
	id, err := argument(c, "ID")
	if err != nil {
		return err
	}
	return withIndex(c, func(ctx context.Context, ix index.Index, collection string) error {
		results, err := ix.FindSimilar(ctx, collection, id, "", c.Int("limit"))
		if err != nil {
			return err
		}
		return printSimilar(c, results)
	})
}

func runReportsContext(c *cli.Context) error {
	text, err := argument(c, "DESCRIPTION")
	if err != nil {
		return err
	}
	return withIndex(c, func(ctx context.Context, ix index.Index, collection string) error {
		results, err := ix.ContextSearch(ctx, collection, text, c.Int("limit"), c.Float64("min-score"), c.String("component"))
		if err != nil {
			return err
		}
		return printSimilar(c, results)
	})
}

func printSimilar(c *cli.Context, results []index.Similar) error {
	w := c.App.Writer
	if c.Bool("json") {
		if results == nil {
			results = []index.Similar{}
		}
		return writeJSON(w, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching reports")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(w, "%d. %s (%.3f)  %s\n", r.Rank, r.ComponentName, r.Similarity, r.ID)
		if r.FilePath != "" {
			fmt.Fprintf(w, "   %s\n", r.FilePath)
		}
		switch {
		case r.Context != "":
			fmt.Fprintf(w, "   %s\n", r.Context)
		case r.Snippet != "":
			fmt.Fprintf(w, "   %s\n", r.Snippet)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
