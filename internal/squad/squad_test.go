package squad

// ============================================================================
// Dispatch Engine Tests
// Purpose: Verify the step state machine: dispatch, collection, timeout,
// requeue, and the worker conservation invariant
// ============================================================================

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesquid/thesquid/internal/squidlet"
	"github.com/thesquid/thesquid/pkg/types"
)

// ============================================================================
// Helpers
// ============================================================================

// addWorker registers a worker directly, bypassing the config file
func addWorker(s *Squad, name, ip string, port int) *types.WorkerInfo {
	w := &types.WorkerInfo{Name: name, IP: ip, Port: port}
	s.workers.Append(w)
	s.nbWorkers++
	return w
}

// startSquidlet runs a real executor on a probed loopback port
func startSquidlet(t *testing.T) *squidlet.Squidlet {
	t.Helper()
	s, err := squidlet.New("127.0.0.1", 0, nil)
	require.NoError(t, err)
	go s.Run()
	t.Cleanup(s.Stop)
	return s
}

// freePort returns a port with nothing listening on it
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// enqueueDummy appends a dummy task with an explicit sleep value
func enqueueDummy(s *Squad, id uint64, v int, maxWait time.Duration) *types.Task {
	task := &types.Task{
		Type:    types.TaskDummy,
		ID:      id,
		Payload: fmt.Sprintf(`{"v":"%d"}`, v),
		MaxWait: maxWait,
	}
	s.enqueue(task)
	return task
}

// assertWorkerConservation checks that every worker is either available or
// attached to exactly one running task
func assertWorkerConservation(t *testing.T, s *Squad) {
	t.Helper()
	assert.Equal(t, s.NbWorkers(), s.NbWorkersAvailable()+s.NbRunningTasks())
}

func historyContains(s *Squad, substr string) bool {
	for _, line := range s.history {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// scriptedConn is a net.Conn fed from a fixed byte script, for
// deterministic collection tests
type scriptedConn struct {
	r *bytes.Reader
	w bytes.Buffer
}

func newScriptedConn(script []byte) *scriptedConn {
	return &scriptedConn{r: bytes.NewReader(script)}
}

// Read behaves like a socket probed with a short deadline: scripted bytes
// first, then would-block.
func (c *scriptedConn) Read(p []byte) (int, error) {
	if c.r.Len() == 0 {
		return 0, timeoutError{}
	}
	return c.r.Read(p)
}

func (c *scriptedConn) Write(p []byte) (int, error)        { return c.w.Write(p) }
func (c *scriptedConn) Close() error                       { return nil }
func (c *scriptedConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *scriptedConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *scriptedConn) SetDeadline(t time.Time) error      { return nil }
func (c *scriptedConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *scriptedConn) SetWriteDeadline(t time.Time) error { return nil }

// timeoutError mimics the error a deadline-expired socket read returns
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// resultScript frames a result body the way a squidlet streams it
func resultScript(body string) []byte {
	script := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint64(script, uint64(len(body)))
	return append(script, body...)
}

// stepUntil steps the squad until the predicate holds or the deadline
// passes, collecting completed tasks
func stepUntil(s *Squad, timeout time.Duration, done func([]*types.Task) bool) []*types.Task {
	var completed []*types.Task
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		completed = append(completed, s.Step()...)
		if done(completed) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return completed
}

// ============================================================================
// Dispatch and Collection
// ============================================================================

func TestStepEmptySquad(t *testing.T) {
	s := New(nil, nil)
	assert.Empty(t, s.Step())
	assert.Equal(t, 0, s.NbTaskToComplete())
}

// Two workers drain six quick tasks; every worker ends up available and
// every result carries the success flag.
func TestStepFanOut(t *testing.T) {
	s := New(nil, nil)
	for i := 0; i < 2; i++ {
		sq := startSquidlet(t)
		addWorker(s, fmt.Sprintf("w%d", i), "127.0.0.1", sq.Port())
	}
	for id := uint64(0); id < 6; id++ {
		enqueueDummy(s, id, 0, 5*time.Second)
	}

	completed := stepUntil(s, 15*time.Second, func(done []*types.Task) bool {
		assertWorkerConservation(t, s)
		return len(done) == 6
	})

	require.Len(t, completed, 6)
	for _, task := range completed {
		assert.True(t, task.HasSucceeded(), "task %s: %s", task.Label(), task.Buffer)
		assert.NotEmpty(t, task.Buffer)
	}
	assert.Equal(t, 0, s.NbTaskToComplete())
	assert.Equal(t, 2, s.NbWorkersAvailable())
}

// An unreachable worker fails the dispatch; the task stays pending and the
// worker stays available.
func TestStepWorkerUnreachable(t *testing.T) {
	s := New(nil, nil)
	addWorker(s, "ghost", "127.0.0.1", freePort(t))
	enqueueDummy(s, 0, 0, 5*time.Second)

	completed := s.Step()

	assert.Empty(t, completed)
	assert.Equal(t, 1, s.NbPendingTasks())
	assert.Equal(t, 0, s.NbRunningTasks())
	assert.Equal(t, 1, s.NbWorkersAvailable())
	assert.True(t, historyContains(s, "can't connect"))
	assertWorkerConservation(t, s)
}

// A result that is already waiting at step entry wins over the deadline:
// the probe runs before the expiry check.
func TestStepResultBeatsTimeout(t *testing.T) {
	s := New(nil, nil)
	worker := &types.WorkerInfo{Name: "w0", IP: "127.0.0.1", Port: 9000}
	s.nbWorkers = 1

	task := &types.Task{Type: types.TaskDummy, ID: 1, MaxWait: 1 * time.Second}
	worker.Conn = newScriptedConn(resultScript(`{"success":"1","v":"0"}`))
	s.running.Append(&types.RunningTask{
		Task:      task,
		Worker:    worker,
		StartTime: time.Now().Add(-10 * time.Second), // long past the deadline
	})

	completed := s.Step()

	require.Len(t, completed, 1)
	assert.True(t, completed[0].HasSucceeded())
	assert.Equal(t, 0, s.NbPendingTasks())
	assert.Equal(t, 1, s.NbWorkersAvailable())
}

// A running task with no result past its deadline is torn down and
// re-appended to the pending queue with a cleared buffer.
func TestStepTimeoutRequeues(t *testing.T) {
	s := New(nil, nil)
	worker := &types.WorkerInfo{Name: "w0", IP: "127.0.0.1", Port: freePort(t)}
	s.nbWorkers = 1

	task := &types.Task{Type: types.TaskDummy, ID: 1, MaxWait: 1 * time.Second, Buffer: "stale"}
	worker.Conn = newScriptedConn(nil) // no result bytes: every probe would block
	s.running.Append(&types.RunningTask{
		Task:      task,
		Worker:    worker,
		StartTime: time.Now().Add(-5 * time.Second),
	})

	completed := s.Step()

	assert.Empty(t, completed)
	assert.Equal(t, 1, s.NbPendingTasks())
	assert.Equal(t, 0, s.NbRunningTasks())
	assert.Empty(t, task.Buffer)
	assert.Nil(t, worker.Conn)
	assertWorkerConservation(t, s)
}

// A task that failed and was requeued completes identically to one that
// succeeded on the first attempt.
func TestRequeueThenSucceed(t *testing.T) {
	s := New(nil, nil)

	// First attempt: dead connection, timed out and requeued
	worker := &types.WorkerInfo{Name: "w0", IP: "127.0.0.1", Port: freePort(t)}
	s.nbWorkers = 1
	task := &types.Task{
		Type:    types.TaskDummy,
		ID:      3,
		Payload: `{"v":"0"}`,
		MaxWait: 1 * time.Second,
	}
	worker.Conn = newScriptedConn(nil)
	s.running.Append(&types.RunningTask{
		Task:      task,
		Worker:    worker,
		StartTime: time.Now().Add(-5 * time.Second),
	})
	s.Step()
	require.Equal(t, 1, s.NbPendingTasks())

	// Point the worker at a live squidlet for the retry
	sq := startSquidlet(t)
	worker.Port = sq.Port()

	completed := stepUntil(s, 10*time.Second, func(done []*types.Task) bool {
		return len(done) == 1
	})

	require.Len(t, completed, 1)
	assert.Same(t, task, completed[0])
	assert.True(t, task.HasSucceeded())
	assert.Contains(t, task.Buffer, `"v":"0"`)
}

func TestTryAgain(t *testing.T) {
	s := New(nil, nil)
	task := &types.Task{Type: types.TaskDummy, ID: 1, Buffer: `{"success":"0"}`}

	s.TryAgain(task)

	assert.Equal(t, 1, s.NbPendingTasks())
	assert.Empty(t, task.Buffer)
}

// ============================================================================
// History Ring
// ============================================================================

func TestHistoryRingBounded(t *testing.T) {
	s := New(nil, nil)
	s.SetHistorySize(5)

	for i := 0; i < 20; i++ {
		s.historyAdd("event %d", i)
	}

	require.Len(t, s.history, 5)
	// The ring keeps the newest lines, stamped by a monotonic counter
	assert.Contains(t, s.history[4], "[19]")
	assert.Contains(t, s.history[4], "event 19")
	assert.Contains(t, s.history[0], "[15]")
}

// ============================================================================
// Builders
// ============================================================================

func TestAddTaskDummyPayload(t *testing.T) {
	s := New(nil, nil)
	s.AddTaskDummy(7, 5*time.Second)

	task, ok := s.tasks.Pop()
	require.True(t, ok)
	assert.Equal(t, types.TaskDummy, task.Type)
	assert.Equal(t, uint64(7), task.ID)
	assert.JSONEq(t, `{"v":"7"}`, task.Payload)
	assert.Equal(t, 5*time.Second, task.MaxWait)
}

func TestAddTaskBenchmarkPayload(t *testing.T) {
	s := New(nil, nil)
	s.AddTaskBenchmark(1, 100*time.Second, 4, 10)

	task, ok := s.tasks.Pop()
	require.True(t, ok)
	assert.Equal(t, types.TaskBenchmark, task.Type)
	assert.Contains(t, task.Payload, `"nb":"4"`)
	assert.Contains(t, task.Payload, `"v":"abcdefghij"`)
}

func TestBenchmarkPayloadContent(t *testing.T) {
	assert.Equal(t, "abc", BenchmarkPayload(3))
	assert.Len(t, BenchmarkPayload(100), 100)
}
