// ============================================================================
// TheSquid Squad - Dispatch Engine
// ============================================================================
//
// Package: internal/squad
// File: squad.go
// Purpose: Stateful matching of pending tasks to idle workers
//
// Architecture:
//   The squad owns three ordered collections:
//   - workers: idle squidlets
//   - tasks:   pending queue
//   - running: dispatched tasks, each pairing a task with its worker and
//              start time
//
// Task State Machine:
//   Pending -> Dispatching -> Running -> (Completed | Failed-Requeued -> Pending)
//   - Pending -> Dispatching on pop
//   - Dispatching -> Running on accept + payload ok
//   - Dispatching -> Pending on any send/accept failure (push-front)
//   - Running -> Completed on result
//   - Running -> Failed-Requeued on timeout (append)
//
// Worker State Machine:
//   Available -> InUse -> Available. Workers are never evicted by the
//   engine; an unreachable worker keeps failing dispatches until the
//   operator fixes or removes it.
//
// Concurrency:
//   Single-threaded cooperative. One Step() runs to completion and the
//   caller paces the loop; no locks are needed on the collections. The only
//   blocking points inside a step are the short metadata exchanges and the
//   deadline-bounded body read after a positive size probe. The size probe
//   itself waits at most a millisecond, so a slow task cannot stall the step.
//
// Failure Policy:
//   The engine never surfaces errors from Step; every failure becomes a
//   requeue plus a history entry. Callers learn about worker-reported
//   failures by inspecting the success flag of completed tasks and may
//   requeue those via TryAgain.
//
// ============================================================================

// Package squad implements the dispatcher
package squad

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thesquid/thesquid/internal/metrics"
	"github.com/thesquid/thesquid/internal/panel"
	"github.com/thesquid/thesquid/internal/protocol"
	"github.com/thesquid/thesquid/internal/render"
	"github.com/thesquid/thesquid/pkg/gset"
	"github.com/thesquid/thesquid/pkg/types"
)

// DefaultHistorySize is the number of history lines kept in the ring
const DefaultHistorySize = 20

// Squad is the dispatcher
type Squad struct {
	workers *gset.Set[*types.WorkerInfo]  // Available workers
	tasks   *gset.Set[*types.Task]        // Pending tasks
	running *gset.Set[*types.RunningTask] // Dispatched tasks

	nbWorkers int // Total configured workers, in-use included

	// History ring: the last historySize event lines, indexed by a
	// monotonic sequence counter.
	history     []string
	historySize int
	historySeq  uint64

	display   *panel.Panel
	collector *metrics.Collector
	log       *zap.Logger
}

// New creates an empty squad. logger and collector may be nil.
func New(logger *zap.Logger, collector *metrics.Collector) *Squad {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Squad{
		workers:     gset.New[*types.WorkerInfo](),
		tasks:       gset.New[*types.Task](),
		running:     gset.New[*types.RunningTask](),
		historySize: DefaultHistorySize,
		collector:   collector,
		log:         logger,
	}
}

// SetVerbose toggles the telemetry panel. Disabled costs nothing on the
// step path beyond the history ring.
func (s *Squad) SetVerbose(verbose bool) {
	if verbose && s.display == nil {
		s.display = panel.New()
	}
	if !verbose {
		s.display = nil
	}
}

// SetHistorySize resizes the history ring
func (s *Squad) SetHistorySize(n int) {
	if n > 0 {
		s.historySize = n
	}
}

// NbWorkers returns the total number of configured workers
func (s *Squad) NbWorkers() int {
	return s.nbWorkers
}

// NbWorkersAvailable returns the number of idle workers
func (s *Squad) NbWorkersAvailable() int {
	return s.workers.Len()
}

// NbPendingTasks returns the number of tasks waiting for a worker
func (s *Squad) NbPendingTasks() int {
	return s.tasks.Len()
}

// NbRunningTasks returns the number of tasks in flight
func (s *Squad) NbRunningTasks() int {
	return s.running.Len()
}

// NbTaskToComplete returns the number of tasks not yet handed to the caller
func (s *Squad) NbTaskToComplete() int {
	return s.tasks.Len() + s.running.Len()
}

// historyAdd stamps an event line into the ring and mirrors it to the log
func (s *Squad) historyAdd(format string, args ...interface{}) {
	line := fmt.Sprintf("[%d] %s", s.historySeq, fmt.Sprintf(format, args...))
	s.historySeq++
	s.history = append(s.history, line)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
	s.log.Debug(line)
}

// Step performs one atomic sweep of the engine: collect results, time out
// expired tasks, dispatch pending tasks to idle workers, post-process
// completions, refresh telemetry. It returns the tasks completed during
// this step; ownership of those tasks passes to the caller.
func (s *Squad) Step() []*types.Task {
	completed := make([]*types.Task, 0)

	// 1. Result collection. The size probe is checked before the deadline,
	// so a result that is ready at step entry wins over its timeout.
	now := time.Now()
	it := s.running.Iter()
	for it.Next() {
		rt := it.Value()
		size, ready, err := protocol.ProbeSize(rt.Worker.Conn, &rt.SizeBuf, &rt.SizeRead)
		switch {
		case err != nil:
			s.historyAdd("lost %s on %s: %v", rt.Task.Label(), rt.Worker.Name, err)
			s.releaseWorker(rt)
			s.requeue(rt.Task)
			it.Remove()

		case ready:
			s.historyAdd("size received for %s: %d bytes", rt.Task.Label(), size)
			if body, err := s.collectResult(rt, size); err != nil {
				s.historyAdd("result lost for %s: %v", rt.Task.Label(), err)
				s.releaseWorker(rt)
				s.requeue(rt.Task)
				it.Remove()
			} else {
				rt.Task.Buffer = string(body)
				s.historyAdd("task completed %s", rt.Task.Label())
				if s.collector != nil {
					s.collector.RecordCompleted(now.Sub(rt.StartTime).Seconds())
				}
				s.releaseWorker(rt)
				completed = append(completed, rt.Task)
				it.Remove()
			}

		case rt.Expired(now):
			s.historyAdd("task timed out %s on %s", rt.Task.Label(), rt.Worker.Name)
			if s.collector != nil {
				s.collector.RecordTimeout()
			}
			s.releaseWorker(rt)
			s.requeue(rt.Task)
			it.Remove()
		}
	}

	// 2. Dispatch. Pairs form in iteration order of both collections; a
	// failed attempt keeps the task hot at the front of the queue for the
	// next worker.
	wit := s.workers.Iter()
	for wit.Next() {
		worker := wit.Value()
		task, ok := s.tasks.Pop()
		if !ok {
			break
		}
		if err := s.sendTask(worker, task); err != nil {
			s.historyAdd("can't connect %s for %s: %v", worker.Name, task.Label(), err)
			if s.collector != nil {
				s.collector.RecordDispatchFailure()
			}
			s.tasks.Push(task)
			continue
		}
		s.historyAdd("task accepted %s by %s", task.Label(), worker.Name)
		if s.collector != nil {
			s.collector.RecordDispatch()
		}
		s.running.Append(&types.RunningTask{
			Task:      task,
			Worker:    worker,
			StartTime: time.Now(),
		})
		wit.Remove()
	}

	// 3. Post-processing
	for _, task := range completed {
		s.postProcess(task)
	}

	// 4. Telemetry
	if s.collector != nil {
		s.collector.UpdateQueueStats(s.tasks.Len(), s.running.Len(), s.workers.Len())
	}
	if s.display != nil {
		s.display.Refresh(s.panelStatus())
	}

	return completed
}

// sendTask runs the connect/header/accept/payload sequence against one
// worker. On success the connection stays open on the worker for the
// result; on failure it is torn down and the error returned.
func (s *Squad) sendTask(worker *types.WorkerInfo, task *types.Task) error {
	conn, err := protocol.Dial(worker.Addr())
	if err != nil {
		return err
	}
	s.historyAdd("connection made to %s", worker.Name)

	header := protocol.Header{
		Type:    task.Type,
		ID:      task.ID,
		SubID:   task.SubID,
		MaxWait: uint64(task.MaxWait / time.Second),
	}
	if err := protocol.WriteHeader(conn, header); err != nil {
		conn.Close()
		return err
	}
	if err := protocol.ReadAcceptByte(conn); err != nil {
		conn.Close()
		return err
	}
	if err := protocol.WriteBlob(conn, []byte(task.Payload)); err != nil {
		conn.Close()
		return err
	}

	worker.Conn = conn
	return nil
}

// collectResult acknowledges the size, reads the body with the
// size-proportional deadline, and acknowledges the body.
func (s *Squad) collectResult(rt *types.RunningTask, size uint64) ([]byte, error) {
	conn := rt.Worker.Conn
	if err := protocol.WriteAck(conn); err != nil {
		return nil, err
	}
	body, err := protocol.ReadBodyAfterProbe(conn, size)
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteAck(conn); err != nil {
		return nil, err
	}
	s.historyAdd("result received for %s", rt.Task.Label())
	return body, nil
}

// releaseWorker tears down the in-flight connection and returns the worker
// to the available set
func (s *Squad) releaseWorker(rt *types.RunningTask) {
	if rt.Worker.Conn != nil {
		rt.Worker.Conn.Close()
		rt.Worker.Conn = nil
	}
	s.workers.Append(rt.Worker)
}

// requeue clears a failed task's result buffer and appends it to the
// pending queue
func (s *Squad) requeue(task *types.Task) {
	task.Buffer = ""
	s.tasks.Append(task)
}

// postProcess runs the kind-specific completion hook. Only render tasks
// have a non-trivial one: compositing the fragment into the final image.
func (s *Squad) postProcess(task *types.Task) {
	if task.Type != types.TaskRender || !task.HasSucceeded() {
		return
	}
	p, err := render.DecodePayload(task.Buffer)
	if err != nil {
		s.historyAdd("compose failed for %s: %v", task.Label(), err)
		return
	}
	if err := render.Compose(p); err != nil {
		s.historyAdd("compose failed for %s: %v", task.Label(), err)
		return
	}
	s.historyAdd("fragment composed %s", task.Label())
}

// panelStatus snapshots the engine state for the telemetry panel
func (s *Squad) panelStatus() panel.Status {
	tasks := make([]string, 0, s.running.Len()+s.tasks.Len())
	rit := s.running.Iter()
	for rit.Next() {
		rt := rit.Value()
		tasks = append(tasks, fmt.Sprintf("run  %s on %s (%.0fs)",
			rt.Task.Label(), rt.Worker.Name, time.Since(rt.StartTime).Seconds()))
	}
	tit := s.tasks.Iter()
	for tit.Next() {
		tasks = append(tasks, fmt.Sprintf("wait %s", tit.Value().Label()))
	}
	return panel.Status{
		Running:   s.running.Len(),
		Pending:   s.tasks.Len(),
		Available: s.workers.Len(),
		History:   append([]string(nil), s.history...),
		Tasks:     tasks,
	}
}
