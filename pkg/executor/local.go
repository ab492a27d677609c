// Package executor runs a linked action graph to completion, either
// locally (this file) or through an external distributed coordinator
// (distributed.go).
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sort"
	"sync"

	"github.com/creack/pty"
	"github.com/sourcegraph/conc/pool"

	"github.com/forgebuild/forge/pkg/builderr"
	"github.com/forgebuild/forge/pkg/graph"
	"github.com/forgebuild/forge/pkg/logger"
)

var executorLog = logger.New("forge:executor")

// LocalOptions configures the local parallel executor.
type LocalOptions struct {
	// MaxProcessorCount caps parallelism; 0 means no explicit user cap.
	MaxProcessorCount int
	// Multiplier scales cpu_count before the cap is applied (spec.md §4.3).
	Multiplier float64
	StopOnError bool
	OnActionDone func(completed, total int, a *graph.Action, output string, err error)
	// UsePTY attaches each spawned child's combined output through a
	// pty-backed pipe instead of a plain byte buffer, so compilers that
	// colorize their diagnostics only when talking to a terminal still
	// do so (forge build --pty).
	UsePTY bool
}

// ActionResult is one action's outcome.
type ActionResult struct {
	ID     graph.ActionID
	Output string
	Err    error
}

// RunLocal executes toExecute from g with a bounded worker pool, per
// spec.md §4.3: build a ready queue of actions with zero missing
// dependencies, sorted by descending total-dependant-count; launch
// workers up to P; on completion decrement dependants and push newly
// ready actions. Grounded on the teacher's downloadRunArtifactsConcurrent
// in pkg/cli/logs.go, generalized from a flat independent-item fan-out
// to a dependency-respecting ready queue feeding a conc/pool.Pool.
func RunLocal(ctx context.Context, g *graph.Graph, toExecute map[graph.ActionID]bool, opts LocalOptions) ([]ActionResult, error) {
	p := parallelism(opts)
	executorLog.Printf("starting local executor: actions=%d parallelism=%d", len(toExecute), p)

	missing := make(map[graph.ActionID]int, len(toExecute))
	for id := range toExecute {
		count := 0
		for _, prereq := range g.Actions[id].PrerequisiteItems {
			if producer, ok := g.ProducerOf(prereq); ok && toExecute[producer] {
				count++
			}
		}
		missing[id] = count
	}

	var mu sync.Mutex
	ready := readyQueue(g, missing, toExecute)
	var results []ActionResult
	completed := 0
	total := len(toExecute)
	stopped := false

	wp := pool.NewWithResults[ActionResult]().WithMaxGoroutines(p).WithContext(ctx)

	for len(ready) > 0 {
		batch := ready
		ready = nil

		for _, id := range batch {
			id := id
			wp.Go(func(ctx context.Context) (ActionResult, error) {
				a := g.Actions[id]
				out, err := runAction(ctx, g, a, opts.UsePTY)
				return ActionResult{ID: id, Output: out, Err: err}, nil
			})
		}

		batchResults, err := wp.Wait()
		if err != nil {
			return results, err
		}

		mu.Lock()
		for _, r := range batchResults {
			completed++
			results = append(results, r)
			if opts.OnActionDone != nil {
				opts.OnActionDone(completed, total, g.Actions[r.ID], r.Output, r.Err)
			}
			if r.Err != nil {
				if opts.StopOnError {
					stopped = true
				}
				continue
			}
			for _, dep := range g.Actions[r.ID].Dependants {
				if !toExecute[dep] {
					continue
				}
				missing[dep]--
				if missing[dep] == 0 {
					ready = append(ready, dep)
				}
			}
		}
		mu.Unlock()

		if stopped {
			ready = nil
		}
		if len(ready) > 0 {
			wp = pool.NewWithResults[ActionResult]().WithMaxGoroutines(p).WithContext(ctx)
		}
	}

	return results, nil
}

func parallelism(opts LocalOptions) int {
	mult := opts.Multiplier
	if mult <= 0 {
		mult = 1
	}
	p := int(float64(runtime.NumCPU()) * mult)
	if p < 1 {
		p = 1
	}
	if opts.MaxProcessorCount > 0 && p > opts.MaxProcessorCount {
		p = opts.MaxProcessorCount
	}
	return p
}

func readyQueue(g *graph.Graph, missing map[graph.ActionID]int, toExecute map[graph.ActionID]bool) []graph.ActionID {
	var ready []graph.ActionID
	for id := range toExecute {
		if missing[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		ai, aj := g.Actions[ready[i]], g.Actions[ready[j]]
		if ai.TotalDependantCount != aj.TotalDependantCount {
			return ai.TotalDependantCount > aj.TotalDependantCount
		}
		return ready[i] < ready[j]
	})
	return ready
}

func runAction(ctx context.Context, g *graph.Graph, a *graph.Action, usePTY bool) (string, error) {
	cmdPath := g.Paths.Path(a.CommandPath)
	cmd := exec.CommandContext(ctx, cmdPath, splitArgs(a.CommandArguments)...)
	cmd.Dir = g.Paths.DirPath(a.WorkingDirectory)

	var buf bytes.Buffer

	if usePTY {
		f, err := pty.Start(cmd)
		if err != nil {
			return "", &builderr.BuildError{
				Kind:    builderr.ActionFailed,
				Message: fmt.Sprintf("%s failed to start under pty: %v", cmdPath, err),
				Path:    cmdPath,
				Cause:   err,
			}
		}
		io.Copy(&buf, f)
		f.Close()
		if err := cmd.Wait(); err != nil {
			return buf.String(), &builderr.BuildError{
				Kind:    builderr.ActionFailed,
				Message: fmt.Sprintf("%s exited with error: %v", cmdPath, err),
				Path:    cmdPath,
				Cause:   err,
			}
		}
		return buf.String(), nil
	}

	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		return buf.String(), &builderr.BuildError{
			Kind:    builderr.ActionFailed,
			Message: fmt.Sprintf("%s exited with error: %v", cmdPath, err),
			Path:    cmdPath,
			Cause:   err,
		}
	}
	return buf.String(), nil
}

// splitArgs is a minimal shell-word splitter; command arguments in this
// domain never need quoting semantics beyond plain whitespace separation
// since the rule-assembly collaborator already produces fully-expanded
// argument strings.
func splitArgs(args string) []string {
	var out []string
	start := -1
	for i, r := range args {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				out = append(out, args[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, args[start:])
	}
	return out
}
