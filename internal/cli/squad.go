// ============================================================================
// TheSquid CLI - Squad Command
// ============================================================================
//
// Package: internal/cli
// File: squad.go
// Purpose: Cobra front-end for the dispatcher executable
//
// Usage:
//   squad --squidlets <path> [--tasks <path>] [--freq <s>] [--verbose]
//         [--check] [--benchmark] [--config <yaml>]
//
// Exit codes:
//   0 ok, 1 create failed, 2 workers-file open, 3 workers-file parse,
//   4 check failed, 5 tasks-file open, 6 tasks-file parse
//
// The run loop steps the squad every freq seconds until the queue drains.
// Completed tasks are printed as they arrive; a worker-reported failure is
// put back into the queue via TryAgain.
//
// ============================================================================

// Package cli builds the command-line front-ends for both executables
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/thesquid/thesquid/internal/logging"
	"github.com/thesquid/thesquid/internal/metrics"
	"github.com/thesquid/thesquid/internal/squad"
)

// Squad exit codes
const (
	ExitOK             = 0
	ExitCreateFailed   = 1
	ExitSquidletsOpen  = 2
	ExitSquidletsParse = 3
	ExitCheckFailed    = 4
	ExitTasksOpen      = 5
	ExitTasksParse     = 6
)

// ExitError carries a process exit code through cobra's error path
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitErr(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// SquadConfig is the optional daemon configuration file (YAML)
type SquadConfig struct {
	Freq        int `yaml:"freq"`
	HistorySize int `yaml:"history_size"`
	Metrics     struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

func loadSquadConfig(path string) (*SquadConfig, error) {
	cfg := &SquadConfig{Freq: 1, HistorySize: squad.DefaultHistorySize}
	cfg.Metrics.Port = 9090
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return cfg, nil
}

// BuildSquadCLI assembles the squad root command
func BuildSquadCLI() *cobra.Command {
	var (
		squidletsPath string
		tasksPath     string
		configPath    string
		freq          int
		verbose       bool
		check         bool
		benchmark     bool
	)

	cmd := &cobra.Command{
		Use:   "squad",
		Short: "TheSquid dispatcher: hand tasks to a pool of squidlets",
		Long: `Squad owns a queue of tasks and dispatches them one at a time to
remote squidlet processes over TCP. Tasks are retried on failure or
timeout; split render jobs are recomposed into the final image.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("freq") {
				freq = 0 // fall back to config value
			}
			return runSquad(squidletsPath, tasksPath, configPath, freq, verbose, check, benchmark)
		},
	}

	cmd.Flags().StringVar(&squidletsPath, "squidlets", "", "path to the squidlets config file")
	cmd.Flags().StringVar(&tasksPath, "tasks", "", "path to the tasks file")
	cmd.Flags().StringVar(&configPath, "config", "", "path to the daemon config file (YAML)")
	cmd.Flags().IntVar(&freq, "freq", 1, "delay in seconds between steps")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "display the telemetry panel")
	cmd.Flags().BoolVar(&check, "check", false, "check that the configured squidlets are up")
	cmd.Flags().BoolVar(&benchmark, "benchmark", false, "run the capacity benchmark on the pool")

	return cmd
}

func runSquad(squidletsPath, tasksPath, configPath string, freq int, verbose, check, benchmark bool) error {
	cfg, err := loadSquadConfig(configPath)
	if err != nil {
		return exitErr(ExitCreateFailed, err)
	}
	if freq > 0 {
		cfg.Freq = freq
	}

	logPath := ""
	if !verbose {
		// The panel owns the terminal in verbose mode; logging goes silent
		logPath = "stdout"
	}
	logger, err := logging.New(logPath, verbose)
	if err != nil {
		return exitErr(ExitCreateFailed, fmt.Errorf("create squad: %w", err))
	}
	defer logger.Sync()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(nil)
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	sq := squad.New(logger, collector)
	sq.SetHistorySize(cfg.HistorySize)
	sq.SetVerbose(verbose)

	if squidletsPath != "" {
		f, err := os.Open(squidletsPath)
		if err != nil {
			return exitErr(ExitSquidletsOpen, fmt.Errorf("open squidlets file: %w", err))
		}
		err = sq.LoadSquidlets(f)
		f.Close()
		if err != nil {
			return exitErr(ExitSquidletsParse, err)
		}
		logger.Info("squidlets loaded", zap.Int("workers", sq.NbWorkers()))
	}

	if check {
		if ok := sq.CheckSquidlets(os.Stdout); !ok {
			return exitErr(ExitCheckFailed, fmt.Errorf("squidlet check failed"))
		}
	}

	if benchmark {
		if err := sq.Benchmark(os.Stdout, 10*time.Second); err != nil {
			logger.Error("benchmark failed", zap.Error(err))
		}
	}

	if tasksPath != "" {
		f, err := os.Open(tasksPath)
		if err != nil {
			return exitErr(ExitTasksOpen, fmt.Errorf("open tasks file: %w", err))
		}
		err = sq.LoadTasks(f)
		f.Close()
		if err != nil {
			return exitErr(ExitTasksParse, err)
		}
		logger.Info("tasks loaded", zap.Int("pending", sq.NbPendingTasks()))

		runToDrain(sq, cfg.Freq, verbose)
	}

	logger.Info("squad ended")
	return nil
}

// runToDrain steps the squad until every task has completed
func runToDrain(sq *squad.Squad, freq int, verbose bool) {
	for sq.NbTaskToComplete() > 0 {
		time.Sleep(time.Duration(freq) * time.Second)
		completed := sq.Step()
		for _, task := range completed {
			if task.HasSucceeded() {
				if !verbose {
					fmt.Printf("squad: %s succeeded\n", task.Label())
				}
			} else {
				if !verbose {
					fmt.Printf("squad: %s failed, retrying\n", task.Label())
				}
				sq.TryAgain(task)
			}
		}
	}
}
