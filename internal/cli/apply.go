package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notestream/internal/harness"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Queue bool // Apply through the engine's mutation queue
}

// ApplyResult is the JSON payload of the apply command.
type ApplyResult struct {
	UsersCreated int                  `json:"users_created"`
	Applied      int                  `json:"applied"`
	Failed       int                  `json:"failed"`
	Trace        []harness.TraceEvent `json:"trace,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <batch.yaml>",
		Short: "Apply a batch of mutations",
		Long: `Apply the users and steps of a batch file to the database.

Steps use the scenario step format (op, as, type, id, attrs, parent,
email, post, user). By default each step is applied synchronously and
reported with the notes it produced. With --queue the steps are
enqueued and drained by the engine's run loop; a failed step is logged
and the loop continues. Press Ctrl+C to stop the loop early.`,
		Example: `  # Apply a batch and show the notes produced
  notestream apply changes.yaml

  # Drain the batch through the mutation queue
  notestream apply changes.yaml --queue -v`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Queue, "queue", false, "apply through the mutation queue")

	return cmd
}

func runApply(cmd *cobra.Command, opts *ApplyOptions, path string) error {
	formatter := opts.formatter(cmd)

	batch, err := harness.LoadBatch(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load batch", err)
	}

	env, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	result := ApplyResult{}
	result.UsersCreated, err = harness.SeedUsers(ctx, env.store, batch.Users, true)
	if err != nil {
		return formatter.Fail("failed to seed users", err)
	}

	if opts.Queue {
		if err := drainQueue(ctx, env, formatter, batch.Steps); err != nil {
			return err
		}
		result.Applied = len(batch.Steps)
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		return formatter.Success(fmt.Sprintf("Drained %d mutations", result.Applied))
	}

	for i, step := range batch.Steps {
		event, err := harness.Execute(ctx, env.engine, i, step, time.Now())
		if err != nil {
			return formatter.Fail(fmt.Sprintf("step %d", i), err)
		}
		result.Trace = append(result.Trace, event)
		if event.Error != "" {
			result.Failed++
		} else {
			result.Applied++
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		writeTrace(formatter.Writer, result.Trace)
		fmt.Fprintf(formatter.Writer, "\nApplied: %d, Failed: %d\n", result.Applied, result.Failed)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d steps failed", result.Failed))
	}
	return nil
}

// drainQueue enqueues every step and runs the engine loop until the
// queue is empty or a shutdown signal arrives.
func drainQueue(ctx context.Context, env *env, formatter *OutputFormatter, steps []harness.Step) error {
	for i, step := range steps {
		actor, err := env.actor(ctx, step.As)
		if err != nil {
			return formatter.Fail(fmt.Sprintf("step %d: resolve actor %q", i, step.As), err)
		}
		env.engine.Enqueue(step.Mutation(actor))
	}
	env.engine.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			formatter.VerboseLog("Received %s, stopping...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	formatter.VerboseLog("Draining %d mutations", len(steps))
	if err := env.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	return nil
}

func writeTrace(w io.Writer, trace []harness.TraceEvent) {
	for _, ev := range trace {
		status := "✓"
		if ev.Error != "" {
			status = "✗"
		}
		fmt.Fprintf(w, "%s [%d] %s %s by %s", status, ev.Step, ev.Op, ev.Target, ev.Actor)
		if ev.Error != "" {
			fmt.Fprintf(w, ": %s", ev.Error)
		}
		fmt.Fprintln(w)
		for _, n := range ev.Notes {
			fmt.Fprintf(w, "    %s\n", n)
		}
		if len(ev.Followed) > 0 {
			fmt.Fprintf(w, "    followed: %s\n", strings.Join(ev.Followed, ", "))
		}
	}
}
