// ============================================================================
// TheSquid Squidlet - Task Handlers
// ============================================================================
//
// Package: internal/squidlet
// File: handlers.go
// Purpose: Kind-specific execution of dispatched tasks
//
// Every handler returns a JSON result string carrying "success" in-band:
// "1" on success, anything else is treated as failure by the caller. All
// handlers are idempotent at the task level, which keeps duplicate
// execution after a squad-side timeout harmless.
//
// ============================================================================

package squidlet

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/thesquid/thesquid/internal/bench"
	"github.com/thesquid/thesquid/internal/protocol"
	"github.com/thesquid/thesquid/internal/render"
	"github.com/thesquid/thesquid/internal/sensors"
)

// rendererCmd is the external renderer invoked for render fragments
const rendererCmd = "povray"

// Handler executes one task and returns the result JSON
type Handler func(s *Squidlet, h protocol.Header, payload string) string

// failure builds a failed result with an error description
func failure(err error) string {
	result, _ := json.Marshal(map[string]string{
		"success": "0",
		"err":     err.Error(),
	})
	return string(result)
}

// handleDummy sleeps for the requested number of seconds and echoes the
// negated value. Used by the squad for health checks.
func handleDummy(s *Squidlet, h protocol.Header, payload string) string {
	var req struct {
		V string `json:"v"`
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return failure(fmt.Errorf("dummy payload: %w", err))
	}
	v, err := strconv.Atoi(req.V)
	if err != nil {
		return failure(fmt.Errorf("dummy payload: invalid v %q", req.V))
	}

	time.Sleep(time.Duration(v) * time.Second)

	result, _ := json.Marshal(map[string]string{
		"success":     "1",
		"v":           strconv.Itoa(-v),
		"temperature": sensors.Temperature(),
	})
	return string(result)
}

// handleBenchmark runs the fixed CPU kernel nb times over the payload and
// reports the elapsed time in milliseconds.
func handleBenchmark(s *Squidlet, h protocol.Header, payload string) string {
	var req struct {
		ID string `json:"id"`
		Nb string `json:"nb"`
		V  string `json:"v"`
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return failure(fmt.Errorf("benchmark payload: %w", err))
	}
	nb, err := strconv.Atoi(req.Nb)
	if err != nil || nb < 1 {
		return failure(fmt.Errorf("benchmark payload: invalid nb %q", req.Nb))
	}

	start := time.Now()
	bench.Run(nb, req.V)
	elapsed := time.Since(start)

	result, _ := json.Marshal(map[string]string{
		"success":     "1",
		"temperature": sensors.Temperature(),
		"v":           strconv.FormatInt(elapsed.Milliseconds(), 10),
		"err":         "",
	})
	return string(result)
}

// handleRender shells out to the renderer for one fragment and replies with
// the request payload augmented with the success flag and temperature. The
// fragment file path is unique per sub-id, so concurrent squidlets never
// collide; re-rendering the same fragment just overwrites it.
func handleRender(s *Squidlet, h protocol.Header, payload string) string {
	p, err := render.DecodePayload(payload)
	if err != nil {
		return failure(err)
	}

	args := []string{
		"+I" + p.Ini,
		"+SC" + p.Left,
		"+EC" + p.Right,
		"+SR" + p.Top,
		"+ER" + p.Bottom,
		"+O" + p.Fragment,
		"+FT",
		"-D",
	}
	cmd := exec.Command(rendererCmd, args...)
	out, err := cmd.CombinedOutput()

	// Echo the request fields so the squad's compositor has the rectangle
	// and file paths without keeping its own copy.
	var fields map[string]string
	if uerr := json.Unmarshal([]byte(payload), &fields); uerr != nil {
		return failure(uerr)
	}
	fields["temperature"] = sensors.Temperature()
	if err != nil {
		s.log.Warn("renderer failed",
			zap.Uint64("id", h.ID),
			zap.Uint64("subID", h.SubID),
			zap.ByteString("output", out),
			zap.Error(err))
		fields["success"] = "0"
		fields["err"] = err.Error()
	} else {
		fields["success"] = "1"
	}

	result, _ := json.Marshal(fields)
	return string(result)
}
