// ============================================================================
// TheSquid Squad - Task Builders
// ============================================================================
//
// Package: internal/squad
// File: tasks.go
// Purpose: Build well-formed tasks and append them to the pending queue
//
// Every payload value is a JSON string, matching what the handlers expect
// on the other side of the wire.
//
// ============================================================================

package squad

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/thesquid/thesquid/internal/render"
	"github.com/thesquid/thesquid/pkg/gset"
	"github.com/thesquid/thesquid/pkg/types"
)

// enqueue appends a task to the pending queue
func (s *Squad) enqueue(task *types.Task) {
	s.tasks.Append(task)
	if s.collector != nil {
		s.collector.RecordEnqueue()
	}
}

// AddTaskDummy appends a health-check task. The worker sleeps for the id
// value in seconds and echoes it negated.
func (s *Squad) AddTaskDummy(id uint64, maxWait time.Duration) {
	payload, _ := json.Marshal(map[string]string{
		"v": strconv.FormatUint(id, 10),
	})
	s.enqueue(&types.Task{
		Type:    types.TaskDummy,
		ID:      id,
		Payload: string(payload),
		MaxWait: maxWait,
	})
}

// BenchmarkPayload builds the synthetic payload string of the given size
func BenchmarkPayload(size int) string {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte('a' + i%26)
	}
	return string(buf)
}

// AddTaskBenchmark appends a capacity-measurement task running the fixed
// CPU kernel nb times over a synthetic payload of payloadSize bytes.
func (s *Squad) AddTaskBenchmark(id uint64, maxWait time.Duration, nb, payloadSize int) {
	payload, _ := json.Marshal(map[string]string{
		"id": strconv.FormatUint(id, 10),
		"nb": strconv.Itoa(nb),
		"v":  BenchmarkPayload(payloadSize),
	})
	s.enqueue(&types.Task{
		Type:    types.TaskBenchmark,
		ID:      id,
		Payload: string(payload),
		MaxWait: maxWait,
	})
}

// AddTaskRender splits a render job into fragments and appends one task per
// fragment, in random order.
//
// The fragment edge is width/nbWorkers clamped into [minFrag, maxFrag] and
// used on both axes; the worker count is only a sizing hint. Randomizing
// the fragment order spreads rendering cost across workers, since adjacent
// fragments tend to have similar complexity.
//
// A validation failure (unreadable or incomplete render config) is fatal to
// this call only.
func (s *Squad) AddTaskRender(id uint64, maxWait time.Duration, iniPath string, minFrag, maxFrag int) error {
	cfg, err := render.ParseConfig(iniPath)
	if err != nil {
		return err
	}

	// A previous run's output would corrupt the composition
	if err := os.Remove(cfg.OutputFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove previous output: %w", err)
	}

	edge := render.FragmentEdge(minFrag, maxFrag, cfg.Width, s.nbWorkers)
	fragments := render.SplitFragments(cfg.Width, cfg.Height, edge)

	batch := gset.New[*types.Task]()
	for i, frag := range fragments {
		subID := uint64(i + 1)
		payload, err := render.EncodePayload(iniPath, frag, cfg, subID)
		if err != nil {
			return err
		}
		batch.Append(&types.Task{
			Type:    types.TaskRender,
			ID:      id,
			SubID:   subID,
			Payload: payload,
			MaxWait: maxWait,
		})
	}
	batch.Shuffle()

	it := batch.Iter()
	for it.Next() {
		s.enqueue(it.Value())
	}
	s.historyAdd("render job %d split into %d fragments (edge %d)", id, len(fragments), edge)
	return nil
}

// TryAgain puts a completed-but-failed task back into the pending queue.
// The engine itself only requeues on timeout and connection failure;
// worker-reported failures are the caller's call.
func (s *Squad) TryAgain(task *types.Task) {
	task.Buffer = ""
	s.enqueue(task)
}
