package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"gpu-job-dispatcher/internal/api"
	"gpu-job-dispatcher/internal/config"
	"gpu-job-dispatcher/internal/dispatch"
	"gpu-job-dispatcher/internal/gpu"
	"gpu-job-dispatcher/internal/launcher"
	"gpu-job-dispatcher/internal/ledger"
	"gpu-job-dispatcher/internal/proc"
	"gpu-job-dispatcher/internal/status"
)

func main() {
	app := &cli.App{
		Name:  "gpuq",
		Usage: "dispatch queued shell commands to GPUs by observed free memory",
		Commands: []*cli.Command{
			runCommand(),
			statusCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// overrideFlags are shared by every command; each setting is individually
// overridable on top of the config file and environment.
func overrideFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to YAML config file"},
		&cli.StringFlag{Name: "gpu-ids", Usage: "comma-separated device ids to use (default: all)"},
		&cli.Uint64Flag{Name: "min-free-mem-mb", Usage: "minimum free memory in MB to dispatch a job"},
		&cli.DurationFlag{Name: "poll-interval", Usage: "time between dispatch cycles"},
		&cli.StringFlag{Name: "commands-file", Usage: "file with one shell command per line"},
		&cli.StringFlag{Name: "log-dir", Usage: "directory for per-job log files"},
		&cli.StringFlag{Name: "jobs-file", Usage: "path to the JSONL job ledger"},
		&cli.StringFlag{Name: "http-addr", Usage: "address for the read-only status API (empty disables)"},
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("gpu-ids") {
		ids, err := config.ParseIDs(c.String("gpu-ids"))
		if err != nil {
			return cfg, err
		}
		cfg.GPUIDs = ids
	}
	if c.IsSet("min-free-mem-mb") {
		cfg.MinFreeMemMB = c.Uint64("min-free-mem-mb")
	}
	if c.IsSet("poll-interval") {
		cfg.PollInterval = c.Duration("poll-interval")
	}
	if c.IsSet("commands-file") {
		cfg.CommandsFile = c.String("commands-file")
	}
	if c.IsSet("log-dir") {
		cfg.LogDir = c.String("log-dir")
	}
	if c.IsSet("jobs-file") {
		cfg.JobsFile = c.String("jobs-file")
	}
	if c.IsSet("http-addr") {
		cfg.HTTPAddr = c.String("http-addr")
	}
	return cfg, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "run the dispatch loop",
		Flags:  overrideFlags(),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	led := ledger.New(cfg.JobsFile)
	jobs, err := led.Load()
	if err != nil {
		return err
	}
	if ledger.ReconcileStartup(jobs, proc.Alive) {
		if err := led.Rewrite(jobs); err != nil {
			return err
		}
	}

	if commands, err := ledger.ReadCommands(cfg.CommandsFile); err != nil {
		log.Printf("gpuq: commands file unreadable, continuing with known jobs: %v", err)
	} else if _, err := led.Ingest(commands); err != nil {
		return err
	}

	nv, err := gpu.InitNVML()
	if err != nil {
		return err
	}
	defer nv.Shutdown()

	if cfg.HTTPAddr != "" {
		srv := api.New(led, nv, cfg.GPUIDs)
		go func() {
			if err := http.ListenAndServe(cfg.HTTPAddr, srv.Router()); err != nil {
				log.Printf("gpuq: status API stopped: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := dispatch.New(dispatch.Config{
		DeviceIDs:    cfg.GPUIDs,
		MinFreeMemMB: cfg.MinFreeMemMB,
		PollInterval: cfg.PollInterval,
	}, led, nv, launcher.New(cfg.LogDir), proc.Probe{})

	log.Printf("gpuq: dispatch loop started (threshold=%d MB, poll=%s, ledger=%s)",
		cfg.MinFreeMemMB, cfg.PollInterval.Round(time.Second), led.Path())
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("gpuq: dispatch loop stopped")
	return nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print the current job ledger",
		Flags: overrideFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			jobs, err := ledger.New(cfg.JobsFile).Load()
			if err != nil {
				return err
			}
			status.Render(os.Stdout, jobs)
			return nil
		},
	}
}
