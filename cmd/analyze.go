package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/intake"
	"github.com/hardgate/internal/pipeline"
)

// AnalyzeCommand returns the analyze command
func AnalyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Assess a repository, directory or intake workbook against the hard gates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Aliases: []string{"r"},
				Usage:   "Git repository `URL` to clone and assess",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Local `DIRECTORY` to assess",
			},
			&cli.StringFlag{
				Name:    "excel",
				Aliases: []string{"e"},
				Usage:   "Intake workbook (.xlsx, .xlsm or .csv) naming the repository",
			},
			&cli.StringFlag{
				Name:  "excel-dir",
				Usage: "Directory of intake workbooks, each assessed into its own output folder",
			},
			&cli.StringFlag{
				Name:  "sheet",
				Usage: "Workbook sheet to read (default: the active sheet)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "File glob to include; repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "File glob to exclude; repeatable",
			},
			&cli.Int64Flag{
				Name:  "max-size",
				Usage: "Largest file to read, in bytes",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default from configuration)",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Ignore cached analysis records and LLM responses",
			},
			&cli.StringFlag{
				Name:  "github-token",
				Usage: "Token for cloning private repositories (default $GITHUB_TOKEN)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	sources := 0
	for _, name := range []string{"repo", "dir", "excel", "excel-dir"} {
		if c.String(name) != "" {
			sources++
		}
	}
	if sources != 1 {
		_ = cli.ShowSubcommandHelp(c)
		return &config.Error{Msg: "exactly one of --repo, --dir, --excel or --excel-dir must be given"}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if out := c.String("output"); out != "" {
		cfg.OutputDir = out
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	req := pipeline.Request{
		RepoURL:     c.String("repo"),
		LocalDir:    c.String("dir"),
		ExcelFile:   c.String("excel"),
		SheetName:   c.String("sheet"),
		GitHubToken: c.String("github-token"),
		Include:     c.StringSlice("include"),
		Exclude:     c.StringSlice("exclude"),
		MaxFileSize: c.Int64("max-size"),
		NoCache:     c.Bool("no-cache"),
	}

	var workbooks []string
	if dir := c.String("excel-dir"); dir != "" {
		workbooks, err = intake.Workbooks(dir)
		if err != nil {
			return &config.Error{Field: "excel-dir", Msg: err.Error()}
		}
		if len(workbooks) == 0 {
			return &config.Error{Field: "excel-dir", Msg: fmt.Sprintf("no intake workbooks in %s", dir)}
		}
	} else if err := req.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	w := c.App.Writer
	if workbooks != nil {
		return analyzeWorkbooks(ctx, w, rt.deps, req, workbooks)
	}

	bb, err := pipeline.Run(ctx, rt.deps, req)
	if err != nil {
		return err
	}
	printSummary(w, pipeline.ResultFrom(bb, time.Now()), bb.OutputDir)
	return nil
}

// analyzeWorkbooks runs one assessment per workbook, each into
// <output>/<component name>. A failed workbook does not stop the others.
func analyzeWorkbooks(ctx context.Context, w io.Writer, d pipeline.Deps, base pipeline.Request, workbooks []string) error {
	var errs []error
	used := map[string]int{}
	for _, path := range workbooks {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		name := intake.UnknownComponent
		if desc, err := intake.Process(path, base.SheetName); err == nil && desc.ComponentName != "" {
			name = desc.ComponentName
		}
		dir := dirName(name)
		used[dir]++
		if n := used[dir]; n > 1 {
			dir = fmt.Sprintf("%s_%d", dir, n)
		}

		req := base
		req.ExcelFile = path
		req.OutputDir = filepath.Join(d.Config.OutputDir, dir)

		fmt.Fprintf(w, "\n=== %s (%s) ===\n", name, filepath.Base(path))
		bb, err := pipeline.Run(ctx, d, req)
		if err != nil {
			log.Error().Err(err).Str("workbook", path).Msg("Assessment aborted")
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		printSummary(w, pipeline.ResultFrom(bb, time.Now()), bb.OutputDir)
	}
	return errors.Join(errs...)
}

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// dirName turns a component name into a directory name.
func dirName(component string) string {
	name := strings.Trim(unsafeDirChars.ReplaceAllString(strings.TrimSpace(component), "_"), "_.")
	if name == "" {
		return "component"
	}
	return name
}

func printSummary(w io.Writer, res *pipeline.Result, outputDir string) {
	r := res.Results
	fmt.Fprintf(w, "Assessment complete: %s\n", res.ProjectName)
	fmt.Fprintf(w, "  Files analyzed:  %d\n", r.Files)
	fmt.Fprintf(w, "  Compliance:      %.1f%% (%s)\n", r.Compliance.Percentage, r.Rating)
	if r.GoNoGo != "" {
		fmt.Fprintf(w, "  Recommendation:  %s\n", r.GoNoGo)
	}
	fmt.Fprintf(w, "  Output:          %s\n", outputDir)

	keys := make([]string, 0, len(r.Reports))
	for k := range r.Reports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "    %-28s %s\n", k, r.Reports[k])
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "  Completed with %d error(s):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}
}
