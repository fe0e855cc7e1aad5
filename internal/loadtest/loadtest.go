// Package loadtest measures the remote task store under concurrent devices.
//
// Each simulated device alternates between the two calls a device makes
// when it comes back online: replaying a queued edit and fetching the full
// task list. Latency is recorded per call and summarized per kind.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/fieldwork/tasksync/internal/gateway"
	"github.com/fieldwork/tasksync/internal/schema"
)

// Remote is the part of the gateway a load test drives.
type Remote interface {
	FetchAll(ctx context.Context) ([]schema.Task, error)
	ReplayQueue(ctx context.Context, entries []schema.Mutation) ([]schema.Mutation, error)
}

var _ Remote = (*gateway.Gateway)(nil)

// Config sizes a run.
type Config struct {
	// Devices is the number of concurrent simulated devices.
	Devices int

	// Rounds is how many replay+fetch pairs each device performs.
	Rounds int

	// Seed makes the choice of edited tasks reproducible.
	Seed int64
}

// DefaultConfig returns a small run.
func DefaultConfig() *Config {
	return &Config{
		Devices: 10,
		Rounds:  5,
		Seed:    42,
	}
}

// LatencyStats summarizes one kind of call.
type LatencyStats struct {
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	P50    time.Duration // Median
	P95    time.Duration
	P99    time.Duration
	Calls  int
	Errors int
}

// Report is the outcome of Run.
type Report struct {
	Replay  LatencyStats
	Fetch   LatencyStats
	Elapsed time.Duration
}

// Seed writes count tasks to the remote store through a single replay and
// returns them.
func Seed(ctx context.Context, remote Remote, count int) ([]schema.Task, error) {
	if count <= 0 {
		return nil, fmt.Errorf("task count must be positive, got %d", count)
	}

	base := time.Now().UTC().Add(-30 * 24 * time.Hour)
	tasks := make([]schema.Task, count)
	entries := make([]schema.Mutation, count)
	for i := range tasks {
		at := base.Add(time.Duration(i) * time.Minute)
		task := schema.NewTask(schema.Input{
			Title:       fmt.Sprintf("Load test task %d", i),
			Description: fmt.Sprintf("batch %d", i/100),
			AssignedTo:  fmt.Sprintf("device-%d@loadtest.local", i%10),
		}, "loadtest", at)
		tasks[i] = task
		entries[i] = schema.NewMutation(schema.MutationCreate, task, at)
	}

	done, err := remote.ReplayQueue(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to seed tasks (%d of %d written): %w", len(done), count, err)
	}
	return tasks, nil
}

// Cleanup deletes tasks from the remote store.
func Cleanup(ctx context.Context, remote Remote, tasks []schema.Task) error {
	now := time.Now().UTC()
	entries := make([]schema.Mutation, len(tasks))
	for i, task := range tasks {
		entries[i] = schema.NewMutation(schema.MutationDelete, task, now)
	}
	done, err := remote.ReplayQueue(ctx, entries)
	if err != nil {
		return fmt.Errorf("failed to remove seeded tasks (%d of %d removed): %w", len(done), len(tasks), err)
	}
	return nil
}

// Run starts cfg.Devices goroutines that each edit random tasks from
// tasks and fetch the full list, cfg.Rounds times.
func Run(ctx context.Context, remote Remote, tasks []schema.Task, cfg *Config) (*Report, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks to edit; seed the store first")
	}
	if cfg.Devices <= 0 || cfg.Rounds <= 0 {
		return nil, fmt.Errorf("devices and rounds must be positive")
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		replays      []time.Duration
		fetches      []time.Duration
		replayErrors int
		fetchErrors  int
	)

	start := time.Now()
	for d := 0; d < cfg.Devices; d++ {
		wg.Add(1)
		go func(device int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(cfg.Seed + int64(device)))
			var r, f []time.Duration
			var rErr, fErr int

			for round := 0; round < cfg.Rounds; round++ {
				if ctx.Err() != nil {
					break
				}

				task := tasks[rng.Intn(len(tasks))]
				task.Title = fmt.Sprintf("Edited by device %d in round %d", device, round)
				task.UpdatedAt = time.Now().UTC()
				m := schema.NewMutation(schema.MutationUpdate, task, task.UpdatedAt)

				began := time.Now()
				_, err := remote.ReplayQueue(ctx, []schema.Mutation{m})
				r = append(r, time.Since(began))
				if err != nil {
					rErr++
				}

				began = time.Now()
				_, err = remote.FetchAll(ctx)
				f = append(f, time.Since(began))
				if err != nil {
					fErr++
				}
			}

			mu.Lock()
			replays = append(replays, r...)
			fetches = append(fetches, f...)
			replayErrors += rErr
			fetchErrors += fErr
			mu.Unlock()
		}(d)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{
		Replay:  computeLatencyStats(replays),
		Fetch:   computeLatencyStats(fetches),
		Elapsed: time.Since(start),
	}
	report.Replay.Errors = replayErrors
	report.Fetch.Errors = fetchErrors
	return report, nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(sorted)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Calls: len(sorted),
	}
}

// Print writes the statistics under name.
func (s LatencyStats) Print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  Calls:        %d\n", s.Calls)
	fmt.Fprintf(w, "  Errors:       %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:          %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median): %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:         %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:          %v\n", s.P95)
	fmt.Fprintf(w, "  P99:          %v\n", s.P99)
	fmt.Fprintf(w, "  Max:          %v\n", s.Max)
}

// Errors is the total number of failed calls.
func (r *Report) Errors() int {
	return r.Replay.Errors + r.Fetch.Errors
}
