// ============================================================================
// TheSquid Core Type Definitions
// ============================================================================
//
// Package: pkg/types
// Purpose: Core domain models shared by the squad (dispatcher) and the
//          squidlet (executor)
//
// Core Types:
//   - TaskType: closed set of task kinds (null/dummy/benchmark/render)
//   - Task: request envelope with JSON payload and per-task deadline
//   - WorkerInfo: identity of a remote squidlet
//   - RunningTask: a Task paired with the worker it was dispatched to
//
// The engine treats task ids as opaque labels; uniqueness is the caller's
// responsibility. (id, subID) only appear in history lines and filenames.
//
// ============================================================================

// Package types defines core domain models for the squid system
package types

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// TaskType identifies a task kind. Values are shared between the wire
// header, the tasks config file and the handlers, so they must not change.
type TaskType uint32

// Task kind constants
const (
	TaskNull      TaskType = 0 // No-op, refused by squidlets
	TaskDummy     TaskType = 1 // Sleep-and-echo health check
	TaskBenchmark TaskType = 2 // Fixed CPU kernel for capacity measurement
	TaskRender    TaskType = 3 // One fragment of a split render job
)

// String returns a short human-readable kind name
func (t TaskType) String() string {
	switch t {
	case TaskNull:
		return "null"
	case TaskDummy:
		return "dummy"
	case TaskBenchmark:
		return "benchmark"
	case TaskRender:
		return "render"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// Task is the immutable request envelope handed to a squidlet.
//
// Buffer is empty while the task is pending or running and holds the result
// JSON exactly when the task has been completed and handed back to the
// caller.
type Task struct {
	Type    TaskType      // Task kind
	ID      uint64        // Caller-chosen task id
	SubID   uint64        // Sub-unit label (e.g. fragment index of a render job)
	Payload string        // Kind-specific JSON arguments
	MaxWait time.Duration // Wall-clock deadline, measured from acceptance
	Buffer  string        // Result JSON, empty until completed
}

// Label returns the (id, subID) observability label of the task
func (t *Task) Label() string {
	return fmt.Sprintf("%s(%d/%d)", t.Type, t.ID, t.SubID)
}

// HasSucceeded reports whether the task result carries the in-band success
// flag. Any other value, including a missing field or an empty buffer, is a
// failure.
func (t *Task) HasSucceeded() bool {
	if t.Buffer == "" {
		return false
	}
	var result struct {
		Success string `json:"success"`
	}
	if err := json.Unmarshal([]byte(t.Buffer), &result); err != nil {
		return false
	}
	return result.Success == "1"
}

// WorkerInfo is the identity of a remote squidlet.
//
// Conn is transient: non-nil only while a task is in flight to the worker.
// A WorkerInfo moves between the squad's available and in-use states by
// collection membership, never by copy.
type WorkerInfo struct {
	Name string   // Human-readable name
	IP   string   // Dotted IPv4 address
	Port int      // TCP port the squidlet listens on
	Conn net.Conn // Open connection while a task is in flight
}

// Addr returns the dial address of the worker
func (w *WorkerInfo) Addr() string {
	return fmt.Sprintf("%s:%d", w.IP, w.Port)
}

// RunningTask pairs a dispatched Task with the worker executing it.
//
// SizeBuf/SizeRead accumulate the bytes of the result-size field across
// non-blocking probes; a probe may deliver fewer than eight bytes and the
// remainder arrives on a later step.
type RunningTask struct {
	Task      *Task       // The dispatched task
	Worker    *WorkerInfo // Worker the task was sent to
	StartTime time.Time   // Instant the squidlet accepted the request
	SizeBuf   [8]byte     // Partial result-size bytes
	SizeRead  int         // Number of valid bytes in SizeBuf
}

// Expired reports whether the task has outlived its deadline
func (r *RunningTask) Expired(now time.Time) bool {
	return now.Sub(r.StartTime) > r.Task.MaxWait
}
