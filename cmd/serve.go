package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hardgate/internal/api"
	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/database"
	"github.com/hardgate/internal/jobqueue"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the assessment API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (default from configuration)",
			},
			&cli.StringFlag{
				Name:    "queue",
				Aliases: []string{"q"},
				Usage:   "Assessment queue: memory, or river (needs DATABASE_URL)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent assessments",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if q := c.String("queue"); q != "" {
		cfg.Server.Queue = q
	}
	if c.IsSet("workers") {
		cfg.Server.Workers = c.Int("workers")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	rt, err := openRuntime(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	exec := jobqueue.PipelineExecutor(rt.deps)
	store, runner, pool, err := openQueue(ctx, cfg, exec)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	fmt.Fprintf(c.App.Writer, "Starting hardgate API server on port %d (queue: %s)...\n", cfg.Server.Port, cfg.Server.Queue)
	server := api.NewServer(api.Options{
		Port:    cfg.Server.Port,
		Config:  cfg,
		Runner:  runner,
		Store:   store,
		Execute: exec,
		Index:   rt.index,
	})
	return server.Start()
}

// openQueue builds the assessment store and runner for the configured queue.
func openQueue(ctx context.Context, cfg *config.Config, exec jobqueue.Executor) (jobqueue.Store, jobqueue.Runner, *pgxpool.Pool, error) {
	if cfg.Server.Queue != "river" {
		store := jobqueue.NewMemoryStore()
		return store, jobqueue.NewLocalRunner(store, exec, cfg.Server.Workers), nil, nil
	}

	pool, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	store := jobqueue.NewPostgresStore(pool)
	queue, err := jobqueue.NewJobQueue(ctx, pool, store, exec, jobqueue.QueueConfigFrom(cfg.Server))
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if err := queue.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to start job queue: %w", err)
	}
	log.Info().Int("workers", cfg.Server.Workers).Msg("River assessment queue started")
	return store, queue, pool, nil
}
