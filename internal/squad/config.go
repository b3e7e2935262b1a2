// ============================================================================
// TheSquid Squad - Operator Config Files
// ============================================================================
//
// Package: internal/squad
// File: config.go
// Purpose: Load the squidlets and tasks JSON files
//
// Both files keep every value as a JSON string, ports and counts included;
// the loaders convert and validate. Malformed files are fatal to the load,
// never silently skipped.
//
// ============================================================================

package squad

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/thesquid/thesquid/pkg/types"
)

// squidletsFile mirrors the workers config:
// {"_squidlets":[{"_name":"...","_ip":"a.b.c.d","_port":"9000"}, ...]}
type squidletsFile struct {
	Squidlets []struct {
		Name string `json:"_name"`
		IP   string `json:"_ip"`
		Port string `json:"_port"`
	} `json:"_squidlets"`
}

// LoadSquidlets reads the workers config and registers every worker as
// available. A missing _name gets a generated one.
func (s *Squad) LoadSquidlets(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read squidlets config: %w", err)
	}

	var file squidletsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse squidlets config: %w", err)
	}

	for i, entry := range file.Squidlets {
		port, err := strconv.Atoi(entry.Port)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("squidlet #%d: invalid port %q", i, entry.Port)
		}
		if entry.IP == "" {
			return fmt.Errorf("squidlet #%d: missing _ip", i)
		}
		name := entry.Name
		if name == "" {
			name = "squidlet-" + uuid.NewString()[:8]
		}
		s.workers.Append(&types.WorkerInfo{
			Name: name,
			IP:   entry.IP,
			Port: port,
		})
		s.nbWorkers++
	}
	return nil
}

// tasksFile mirrors the tasks config:
// {"tasks":[{"SquidletTaskType":"1","id":"0","maxWait":"5", ...}, ...]}
type tasksFile struct {
	Tasks []taskEntry `json:"tasks"`
}

type taskEntry struct {
	Type    string `json:"SquidletTaskType"`
	ID      string `json:"id"`
	MaxWait string `json:"maxWait"`

	// Benchmark
	Nb          string `json:"nb"`
	PayloadSize string `json:"payloadSize"`

	// Render
	Ini             string `json:"ini"`
	SizeMinFragment string `json:"sizeMinFragment"`
	SizeMaxFragment string `json:"sizeMaxFragment"`
}

// LoadTasks reads the tasks config and appends every task to the pending
// queue through the kind-specific builders.
func (s *Squad) LoadTasks(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read tasks config: %w", err)
	}

	var file tasksFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse tasks config: %w", err)
	}

	for i, entry := range file.Tasks {
		if err := s.loadTask(entry); err != nil {
			return fmt.Errorf("task #%d: %w", i, err)
		}
	}
	return nil
}

func (s *Squad) loadTask(entry taskEntry) error {
	id, err := strconv.ParseUint(entry.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", entry.ID)
	}
	maxWaitSec, err := strconv.ParseUint(entry.MaxWait, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid maxWait %q", entry.MaxWait)
	}
	maxWait := time.Duration(maxWaitSec) * time.Second

	kind, err := strconv.Atoi(entry.Type)
	if err != nil {
		return fmt.Errorf("invalid SquidletTaskType %q", entry.Type)
	}

	switch types.TaskType(kind) {
	case types.TaskDummy:
		s.AddTaskDummy(id, maxWait)
		return nil

	case types.TaskBenchmark:
		nb, err := strconv.Atoi(entry.Nb)
		if err != nil || nb < 1 {
			return fmt.Errorf("invalid nb %q", entry.Nb)
		}
		payloadSize, err := strconv.Atoi(entry.PayloadSize)
		if err != nil || payloadSize < 1 {
			return fmt.Errorf("invalid payloadSize %q", entry.PayloadSize)
		}
		s.AddTaskBenchmark(id, maxWait, nb, payloadSize)
		return nil

	case types.TaskRender:
		minFrag, err := strconv.Atoi(entry.SizeMinFragment)
		if err != nil || minFrag < 1 {
			return fmt.Errorf("invalid sizeMinFragment %q", entry.SizeMinFragment)
		}
		maxFrag, err := strconv.Atoi(entry.SizeMaxFragment)
		if err != nil || maxFrag < minFrag {
			return fmt.Errorf("invalid sizeMaxFragment %q", entry.SizeMaxFragment)
		}
		return s.AddTaskRender(id, maxWait, entry.Ini, minFrag, maxFrag)

	default:
		return fmt.Errorf("unknown SquidletTaskType %q", entry.Type)
	}
}
