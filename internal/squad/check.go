// ============================================================================
// TheSquid Squad - Pool Checks and Benchmark
// ============================================================================
//
// Package: internal/squad
// File: check.go
// Purpose: Operator-facing reachability check and capacity benchmark
//
// CheckSquidlets issues one synchronous dummy task per configured worker
// and reports reachability and round-trip time. Benchmark sweeps payload
// size and kernel loop count while keeping every worker busy, reporting
// completed tasks and ms/task per cell.
//
// ============================================================================

package squad

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/thesquid/thesquid/internal/protocol"
	"github.com/thesquid/thesquid/pkg/types"
)

// checkMaxWait bounds one reachability probe
const checkMaxWait = 5 * time.Second

// CheckSquidlets verifies every configured worker answers a dummy task.
// One line per worker is written to w; the return value is false if any
// worker failed.
func (s *Squad) CheckSquidlets(w io.Writer) bool {
	allOK := true
	it := s.workers.Iter()
	for it.Next() {
		worker := it.Value()
		start := time.Now()
		err := s.checkOne(worker)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(w, "%s (%s): KO: %v\n", worker.Name, worker.Addr(), err)
			allOK = false
		} else {
			fmt.Fprintf(w, "%s (%s): OK (%.0fms)\n",
				worker.Name, worker.Addr(), float64(elapsed.Milliseconds()))
		}
	}
	return allOK
}

// checkOne runs one full dummy exchange synchronously against a worker
func (s *Squad) checkOne(worker *types.WorkerInfo) error {
	task := &types.Task{
		Type:    types.TaskDummy,
		Payload: `{"v":"0"}`,
		MaxWait: checkMaxWait,
	}
	if err := s.sendTask(worker, task); err != nil {
		return err
	}
	conn := worker.Conn
	defer func() {
		conn.Close()
		worker.Conn = nil
	}()

	sizeBuf := make([]byte, 8)
	conn.SetReadDeadline(time.Now().Add(checkMaxWait))
	if _, err := io.ReadFull(conn, sizeBuf); err != nil {
		return fmt.Errorf("read result size: %w", err)
	}
	size := binary.LittleEndian.Uint64(sizeBuf)
	if err := protocol.WriteAck(conn); err != nil {
		return err
	}
	body, err := protocol.ReadBodyAfterProbe(conn, size)
	if err != nil {
		return err
	}
	if err := protocol.WriteAck(conn); err != nil {
		return err
	}

	task.Buffer = string(body)
	if !task.HasSucceeded() {
		return fmt.Errorf("worker reported failure: %s", task.Buffer)
	}
	return nil
}

// Benchmark sweep bounds
var (
	benchmarkPayloadSizes = []int{100, 1000}
	benchmarkMaxLoops     = 32
)

// Benchmark measures pool capacity: for each (payload size, loop count)
// cell it keeps every worker saturated with benchmark tasks for
// cellDuration and reports throughput. Stops at the first failed task.
func (s *Squad) Benchmark(w io.Writer, cellDuration time.Duration) error {
	info, err := host.Info()
	if err == nil {
		cores, _ := cpu.Counts(true)
		fmt.Fprintf(w, "host: %s (%s) cores: %d\n", info.Hostname, info.Platform, cores)
	}
	fmt.Fprintf(w, "workers: %d\n", s.nbWorkers)
	fmt.Fprintf(w, "nbLoopPerTask\tnbBytePayload\tnbTaskComp\ttimeMsPerTask\n")

	const maxWait = 100 * time.Second
	var id uint64

	for _, sizePayload := range benchmarkPayloadSizes {
		for nbLoop := 1; nbLoop <= benchmarkMaxLoops; nbLoop *= 2 {
			start := time.Now()
			var nbComplete uint64

			for time.Since(start) < cellDuration {
				// Keep one task in flight or waiting per worker
				for s.NbTaskToComplete() < s.nbWorkers {
					s.AddTaskBenchmark(id, maxWait, nbLoop, sizePayload)
					id++
				}

				completed := s.Step()
				for _, task := range completed {
					if !task.HasSucceeded() {
						return fmt.Errorf("benchmark task %s failed: %s",
							task.Label(), task.Buffer)
					}
					nbComplete++
				}
				time.Sleep(100 * time.Millisecond)
			}

			elapsed := time.Since(start)
			msPerTask := 0.0
			if nbComplete > 0 {
				msPerTask = float64(elapsed.Milliseconds()) / float64(nbComplete)
			}
			fmt.Fprintf(w, "%03d\t%08d\t%07d\t%011.2f\n",
				nbLoop, sizePayload, nbComplete, msPerTask)
		}
	}
	return nil
}
