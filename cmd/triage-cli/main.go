// Package main provides the triage command-line interface.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clinicaflow/go-triage/internal/config"
	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/engine"
	"github.com/clinicaflow/go-triage/internal/policy"
	"github.com/clinicaflow/go-triage/pkg/workerpool"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "triage-cli",
		Short:        "Run the clinical triage pipeline from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")

	root.AddCommand(newRunCmd(&configFile))
	root.AddCommand(newBatchCmd(&configFile))
	root.AddCommand(newHashCmd())
	return root
}

func loadConfig(configFile string) (config.Config, error) {
	cfg := config.Load()
	if configFile == "" {
		return cfg, nil
	}
	return config.LoadFile(configFile, cfg)
}

func newRunCmd(configFile *string) *cobra.Command {
	var input, output string
	var pretty bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one intake JSON file through the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			eng, err := engine.New(cfg, nil, zap.NewNop())
			if err != nil {
				return err
			}

			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read intake: %w", err)
			}
			var in triage.Intake
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse intake: %w", err)
			}

			result, err := eng.Pipeline.Triage(cmd.Context(), &in, "")
			if err != nil {
				return err
			}

			var encoded []byte
			if pretty {
				encoded, err = json.MarshalIndent(result, "", "  ")
			} else {
				encoded, err = json.Marshal(result)
			}
			if err != nil {
				return err
			}
			if output != "" {
				return os.WriteFile(output, append(encoded, '\n'), 0o644)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "path to intake JSON file")
	cmd.Flags().StringVar(&output, "output", "", "optional output path")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "pretty-print JSON output")
	cmd.MarkFlagRequired("input")
	return cmd
}

func newBatchCmd(configFile *string) *cobra.Command {
	var input, output string
	var workers int

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run an NDJSON file of intakes through the pipeline on a worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			logger, _ := zap.NewProduction()
			defer logger.Sync()

			eng, err := engine.New(cfg, nil, logger)
			if err != nil {
				return err
			}

			in, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open batch input: %w", err)
			}
			defer in.Close()

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create batch output: %w", err)
				}
				defer f.Close()
				out = f
			}

			pool, err := workerpool.New(workerpool.Config{Workers: workers}, func(ctx context.Context, task *workerpool.Task) *workerpool.Result {
				intake := task.Payload.(*triage.Intake)
				result, err := eng.Pipeline.Triage(ctx, intake, task.ID)
				if err != nil {
					return &workerpool.Result{TaskID: task.ID, Success: false, Error: err}
				}
				return &workerpool.Result{TaskID: task.ID, Success: true, Data: result}
			}, logger)
			if err != nil {
				return err
			}
			pool.Start()

			// Feed lines concurrently; results stream out in completion order.
			feedErr := make(chan error, 1)
			go func() {
				defer pool.Close()
				scanner := bufio.NewScanner(in)
				scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
				line := 0
				for scanner.Scan() {
					line++
					raw := scanner.Bytes()
					if len(raw) == 0 {
						continue
					}
					var intake triage.Intake
					if err := json.Unmarshal(raw, &intake); err != nil {
						logger.Warn("skipping malformed batch line", zap.Int("line", line), zap.Error(err))
						continue
					}
					task := &workerpool.Task{ID: fmt.Sprintf("batch-%d", line), Payload: &intake}
					if err := pool.Submit(cmd.Context(), task); err != nil {
						feedErr <- err
						return
					}
				}
				feedErr <- scanner.Err()
			}()

			enc := json.NewEncoder(out)
			for res := range pool.Results() {
				if !res.Success {
					enc.Encode(map[string]string{"task_id": res.TaskID, "error": res.Error.Error()})
					continue
				}
				enc.Encode(res.Data)
			}
			if err := <-feedErr; err != nil {
				return err
			}

			stats := pool.Stats()
			fmt.Fprintf(cmd.ErrOrStderr(), "batch complete: %d submitted, %d ok, %d failed\n",
				stats.TasksSubmitted, stats.TasksCompleted, stats.TasksFailed)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "path to NDJSON intake file")
	cmd.Flags().StringVar(&output, "output", "", "optional NDJSON output path")
	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent workers")
	cmd.MarkFlagRequired("input")
	return cmd
}

func newHashCmd() *cobra.Command {
	var packPath string

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the canonical SHA-256 of a policy pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := policy.Load(packPath, zap.NewNop())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", snapshot.SHA256(), snapshot.Source())
			return nil
		},
	}
	cmd.Flags().StringVar(&packPath, "pack", "", "policy pack path (embedded default when empty)")
	return cmd
}
