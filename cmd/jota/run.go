package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/metalagman/jota/internal/orchestrator"
	"github.com/metalagman/jota/internal/tui"
)

type runFlags struct {
	owner    string
	parallel int
	retries  int
	tui      bool
}

func runCmd(opts *rootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <objective>...",
		Short: "Plan and execute one or more objectives",
		Long: "Plan and execute each objective as an independent run. Several objectives run concurrently, " +
			"bounded by --parallel. A failed run is retried from its failed step up to --retries times.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.parallel <= 0 {
				return fmt.Errorf("--parallel must be > 0")
			}
			if flags.retries < 0 {
				return fmt.Errorf("--retries must be >= 0")
			}
			if flags.tui && len(args) > 1 {
				return fmt.Errorf("--tui shows a single objective")
			}
			if flags.tui {
				return runWithTUI(cmd, opts, flags, args[0])
			}
			return runPlain(cmd, opts, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.owner, "owner", "", "teacher id the run acts for")
	cmd.Flags().IntVar(&flags.parallel, "parallel", 2, "maximum concurrent runs")
	cmd.Flags().IntVar(&flags.retries, "retries", 0, "retry a failed step this many times")
	cmd.Flags().BoolVar(&flags.tui, "tui", false, "show live progress")
	return cmd
}

// narrationPrinter streams narrations to w as runs produce them.
type narrationPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix bool
}

func (p *narrationPrinter) Observe(_ context.Context, ev orchestrator.Event) error {
	if ev.Type != orchestrator.EventNarration || ev.Narration == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prefix {
		_, err := fmt.Fprintf(p.w, "[%s] %s\n", shortID(ev.RunID), ev.Narration.Text)
		return err
	}
	_, err := fmt.Fprintln(p.w, ev.Narration.Text)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runPlain(cmd *cobra.Command, opts *rootOptions, flags *runFlags, objectives []string) error {
	out := cmd.OutOrStdout()
	printer := &narrationPrinter{w: out, prefix: len(objectives) > 1}
	rt, closeFn, err := openRuntime(cmd.Context(), cmd, opts, printer)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	results := make([]*orchestrator.Execution, len(objectives))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(flags.parallel)
	for i, objective := range objectives {
		g.Go(func() error {
			exec, err := execute(ctx, rt.Orchestrator, objective, flags)
			results[i] = exec
			if errors.Is(err, context.Canceled) {
				return err
			}
			// A failed run does not stop its siblings.
			return nil
		})
	}
	waitErr := g.Wait()

	failed := 0
	for _, exec := range results {
		if exec == nil {
			continue
		}
		fmt.Fprintf(out, "%s %s: %s\n", shortID(exec.RunID), exec.State, exec.Objective)
		if exec.State != orchestrator.StateCompleted {
			failed++
			if text := exec.FailureText(); text != "" {
				fmt.Fprintf(out, "  %s\n", text)
			}
		}
	}
	if waitErr != nil {
		return waitErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d run(s) did not complete", failed, len(objectives))
	}
	return nil
}

func execute(ctx context.Context, orch *orchestrator.Orchestrator, objective string, flags *runFlags) (*orchestrator.Execution, error) {
	exec, err := orch.Run(ctx, strings.TrimSpace(objective), orchestrator.RunOptions{Owner: flags.owner})
	for attempt := 0; attempt < flags.retries && exec.State == orchestrator.StateFailed && exec.FailedStep != nil; attempt++ {
		log.Debug().Str("run_id", exec.RunID).Int("attempt", attempt+1).Msg("retry requested")
		exec, err = orch.Retry(ctx, exec)
	}
	return exec, err
}

func runWithTUI(cmd *cobra.Command, opts *rootOptions, flags *runFlags, objective string) error {
	fwd := &tui.Forwarder{}
	rt, closeFn, err := openRuntime(cmd.Context(), cmd, opts, fwd)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	return tui.Run(cmd.Context(), objective, fwd, func(ctx context.Context) error {
		_, err := execute(ctx, rt.Orchestrator, objective, flags)
		return err
	})
}
