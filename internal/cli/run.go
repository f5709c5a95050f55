package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/prload/internal/performance/config"
	"github.com/wesleyorama2/prload/internal/performance/engine"
	"github.com/wesleyorama2/prload/internal/performance/output"
	"github.com/wesleyorama2/prload/internal/scenario"
)

// errRunFailed is returned when the run completed but a threshold failed.
var errRunFailed = errors.New("thresholds failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pull request creation load test",
	Long: `Run virtual users that each build a unique pull request, POST it to
<BASE_URL>/pullRequest/create, check for 201 Created and pause before the
next iteration. The VU count follows the configured ramp stages.

Configuration is resolved in this order, later sources winning:
defaults, the --config file, the BASE_URL environment variable, flags.

Examples:
  prload run
  BASE_URL=http://reviewer:8080 prload run
  prload run --stages "10s:10,20s:50,10s:0" --pause 50ms
  prload run --config run.yaml --output result.json`,
	RunE: runLoadTest,
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")

	overrides, err := overridesFromFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(configFile, os.LookupEnv, overrides)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.Default()
	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}

	// Keep stdout clean for the JSON document.
	var consoleWriter io.Writer = cmd.OutOrStdout()
	if jsonOutput && outputPath == "" {
		consoleWriter = cmd.ErrOrStderr()
	}
	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		Writer:  consoleWriter,
		Quiet:   quiet,
		NoColor: noColor,
	})

	base, err := scenario.ParseBaseURL(cfg.BaseURL)
	if err != nil {
		return err
	}
	console.PrintHeader(cfg.Name, cfg.Executor, scenario.EndpointURL(base, scenario.CreatePath), cfg.ExecutorConfig().Stages)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var interrupted atomic.Bool
	go func() {
		if handleInterrupts(ctx, sigCh, eng, cancel, logger) {
			interrupted.Store(true)
		}
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		console.Watch(watchCtx, eng, time.Second)
	}()

	result, runErr := eng.Run(ctx)
	stopWatch()
	wg.Wait()

	if interrupted.Load() {
		logger.Warn("run interrupted")
	}

	if result != nil {
		console.PrintSummary(result)
		if err := writeResult(cmd.OutOrStdout(), result, jsonOutput, outputPath); err != nil {
			return err
		}
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	if result != nil && !result.Passed {
		return errRunFailed
	}
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

// handleInterrupts ends the run gracefully on the first signal and aborts it
// on the second. It returns true if a signal arrived before ctx ended.
func handleInterrupts(ctx context.Context, sigCh <-chan os.Signal, eng stopper, abort context.CancelFunc, logger *slog.Logger) bool {
	select {
	case <-ctx.Done():
		return false
	case sig := <-sigCh:
		logger.Warn("stopping run, in-flight iterations get the graceful stop period; interrupt again to abort", "signal", sig)
	}

	if err := eng.Stop(ctx); err != nil {
		logger.Error("graceful stop failed", "error", err)
		abort()
		return true
	}

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Warn("aborting run", "signal", sig)
		abort()
	}
	return true
}

// overridesFromFlags collects the flags the user set explicitly.
func overridesFromFlags(cmd *cobra.Command) (config.Overrides, error) {
	var o config.Overrides
	flags := cmd.Flags()

	if flags.Changed("base-url") {
		v, _ := flags.GetString("base-url")
		o.BaseURL = &v
	}
	if flags.Changed("stages") {
		v, _ := flags.GetString("stages")
		stages, err := config.ParseStages(v)
		if err != nil {
			return o, fmt.Errorf("invalid --stages: %w", err)
		}
		o.Stages = stages
	}
	if flags.Changed("pause") {
		v, _ := flags.GetDuration("pause")
		o.Pause = &v
	}
	if flags.Changed("timeout") {
		v, _ := flags.GetDuration("timeout")
		o.HTTPTimeout = &v
	}
	return o, nil
}

func writeResult(stdout io.Writer, result *engine.TestResult, jsonOutput bool, outputPath string) error {
	switch {
	case outputPath != "":
		if err := output.WriteJSONFile(outputPath, result); err != nil {
			return err
		}
		slog.Info("results written", "path", outputPath)
	case jsonOutput:
		return output.WriteJSON(stdout, result)
	}
	return nil
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Configuration file (YAML or JSON)")
	runCmd.Flags().String("base-url", "", "Base URL of the target service (overrides BASE_URL)")
	runCmd.Flags().String("stages", "", "Ramp stages as 'duration:target,...', e.g. '10s:10,20s:50,10s:0'")
	runCmd.Flags().Duration("pause", 100*time.Millisecond, "Pause at the end of every iteration")
	runCmd.Flags().DurationP("timeout", "t", 30*time.Second, "Request timeout")

	runCmd.Flags().Bool("json", false, "Write the result as JSON to stdout")
	runCmd.Flags().StringP("output", "o", "", "Write the result as JSON to this file")
	runCmd.Flags().BoolP("quiet", "q", false, "Disable live progress output, print only PASSED or FAILED")
	runCmd.Flags().Bool("no-color", false, "Disable colored output")
}
