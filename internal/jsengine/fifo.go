// Package jsengine wires a zipline.CallChannel to a real JS runtime over
// spec §6's Channel ABI: two global functions, named
// app_cash_zipline_inboundChannel (exported by JS) and
// app_cash_zipline_outboundChannel (published by the host), each exposing
// the same four-method contract with array<string> arguments.
//
// Two build-tagged implementations back this package, selected the way the
// teacher's root Engine facade picks between its quickjs and v8engine
// backends: jsengine_quickjs.go (default) and jsengine_v8.go (-tags v8).
package jsengine

import "context"

// InboundChannelName and OutboundChannelName are the two ABI symbols spec §6
// requires every JS engine to expose.
const (
	InboundChannelName  = "app_cash_zipline_inboundChannel"
	OutboundChannelName = "app_cash_zipline_outboundChannel"
)

// Runner loads zipline's JS runtime support into an engine instance and
// evaluates application module bytecode inside it.
type Runner interface {
	// Install evaluates a module's decoded JS source in the engine,
	// making its top-level bindings (including any inboundChannel
	// service registrations) visible to later calls.
	Install(ctx context.Context, moduleID string, source []byte) error

	// RunJob pumps one scheduled job — a fired setTimeout/setInterval
	// callback identified by timeoutID — exactly as zipline's host
	// bootstrap expects (spec §4.7).
	RunJob(timeoutID int)

	// Close releases the underlying JS engine instance.
	Close() error
}
