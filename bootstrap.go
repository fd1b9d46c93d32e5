package zipline

import (
	"log"
	"time"

	"github.com/ziplinekit/zipline/internal/timers"
)

// JSRunner is the minimal JS-engine surface the host bootstrap needs: the
// ability to resume a scheduled job by id (spec §4.7 `js.runJob(timeoutId)`).
// A concrete engine backend (internal/jsengine) implements this.
type JSRunner interface {
	RunJob(timeoutID int)
}

// HostBootstrap implements the two well-known host services named in spec
// §4.7, `host.setTimeout` and `host.consoleMessage`, as Go methods. It does
// not bind them on an Endpoint. It owns the timers registry for the lifetime
// of one Zipline instance.
type HostBootstrap struct {
	runner JSRunner
	timers *timers.Registry
}

// NewHostBootstrap wires a HostBootstrap to the engine that will run resumed
// jobs.
func NewHostBootstrap(runner JSRunner) *HostBootstrap {
	return &HostBootstrap{runner: runner, timers: timers.New()}
}

// SetTimeout schedules js.runJob(timeoutID) to fire after delayMs on its own
// goroutine, matching spec §4.7. Returns a handle usable with ClearTimeout.
func (h *HostBootstrap) SetTimeout(timeoutID int, delayMs int64) int {
	return h.timers.RegisterTimer(time.Duration(delayMs)*time.Millisecond, func() {
		h.runner.RunJob(timeoutID)
	})
}

// ClearTimeout cancels a pending timer registered via SetTimeout.
func (h *HostBootstrap) ClearTimeout(handle int) {
	h.timers.ClearTimer(handle)
}

// Close cancels every timer still pending. Zipline.Close calls it; closing a
// ZiplineScope does not.
func (h *HostBootstrap) Close() {
	h.timers.CancelAll()
}

// consoleSeverity is the host log severity consoleMessage maps onto (spec
// §4.7: warn -> warning, error -> severe, else info).
type consoleSeverity int

const (
	severityInfo consoleSeverity = iota
	severityWarning
	severitySevere
)

func (s consoleSeverity) String() string {
	switch s {
	case severityWarning:
		return "WARNING"
	case severitySevere:
		return "SEVERE"
	default:
		return "INFO"
	}
}

// ConsoleMessage routes a JS console call to the host log at the mapped
// severity (spec §4.7).
func (h *HostBootstrap) ConsoleMessage(level, text string) {
	sev := severityInfo
	switch level {
	case "warn":
		sev = severityWarning
	case "error":
		sev = severitySevere
	}
	log.Printf("zipline: console [%s] %s", sev, text)
}
