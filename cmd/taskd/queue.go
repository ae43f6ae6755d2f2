package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/ledger"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/queue"
)

// Local queue operations against the state dir, for use without a
// running daemon. A daemon and these commands share the ledger file
// safely only through the daemon's API; concurrent direct use is
// last-writer-wins.

var (
	dispatchPriority int
	dispatchData     string
	processMax       int
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <task-type>",
	Short: "Add a task to the local queue",
	Long: `Create a task in the local ledger without executing it. The task
payload is given as a JSON object via --data.

Examples:
  taskd dispatch research --data '{"topic":"rate limiters"}'
  taskd dispatch custom --priority 9 --data '{"content":"draft text"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runDispatch,
}

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show queue statistics or a single task",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a non-terminal task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run pending tasks from the local queue",
	Long: `Execute pending tasks with the built-in workers, bounded by the
configured concurrency limit. Use --max to cap the batch size.`,
	RunE: runProcess,
}

func init() {
	dispatchCmd.Flags().IntVar(&dispatchPriority, "priority", 0, "task priority 1-10 (0 uses the default)")
	dispatchCmd.Flags().StringVar(&dispatchData, "data", "{}", "task payload as a JSON object")
	processCmd.Flags().IntVar(&processMax, "max", 0, "maximum tasks to process (0 = all pending)")
}

// openQueue wires config -> logger -> store -> queue for CLI use.
func openQueue() (*config.Config, *queue.Queue, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New("warn", "console")
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := ledger.NewStore(cfg.Queue.StateDir, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open task ledger: %w", err)
	}
	q, err := queue.New(store, nil, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	q.SetMaxRetries(cfg.Queue.MaxRetries)
	return cfg, q, logger, nil
}

func runDispatch(cmd *cobra.Command, args []string) error {
	var sourceData map[string]any
	if err := json.Unmarshal([]byte(dispatchData), &sourceData); err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}

	_, q, _, err := openQueue()
	if err != nil {
		return err
	}

	task, err := q.Create(cmd.Context(), args[0], sourceData, dispatchPriority)
	if err != nil {
		return err
	}
	fmt.Printf("created task %s (type=%s priority=%d)\n", task.ID, task.Type, task.Priority)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, q, _, err := openQueue()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		task, err := q.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(task)
	}

	meta, err := q.Stats(cmd.Context())
	if err != nil {
		return err
	}
	pending, err := q.Pending(cmd.Context(), "")
	if err != nil {
		return err
	}
	fmt.Printf("total: %d  completed: %d  failed: %d  pending: %d\n",
		meta.TotalTasks, meta.CompletedTasks, meta.FailedTasks, len(pending))
	for _, t := range pending {
		fmt.Printf("  %-40s %-20s priority=%d retries=%d/%d\n",
			t.ID, t.Type, t.Priority, t.RetryCount, t.MaxRetries)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	_, q, _, err := openQueue()
	if err != nil {
		return err
	}
	task, err := q.Cancel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("cancelled task %s\n", task.ID)
	return nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, q, logger, err := openQueue()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	orch, err := orchestrator.New(q, registry, orchestrator.Config{
		MaxConcurrentWorkers: cfg.Orchestrator.MaxConcurrentWorkers,
	}, logger)
	if err != nil {
		return err
	}

	results, err := orch.ProcessQueue(context.Background(), processMax)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no pending tasks")
		return nil
	}
	for _, r := range results {
		fmt.Printf("  %-40s %-15s confidence=%.2f\n", r.TaskID, r.Status, r.Confidence)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
