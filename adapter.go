package zipline

import (
	"context"
	"encoding/json"
)

// FuncSpec describes one function of a service interface (spec §4.4):
// its stable signature string (used for logging and the close() special
// case), whether it suspends, and the encode/decode hooks for its argument
// list and result. Ordinals are the function's index within its Adapter's
// Funcs slice — that index is the only thing that crosses the wire to
// identify which function is being called (spec §3 "Function").
type FuncSpec struct {
	Signature    string
	IsSuspending bool

	// EncodeArgs/DecodeArgs convert between a Go argument list and the
	// call envelope's "a" array of per-argument JSON values. Generated/hand-written per
	// function so that each parameter can use its own serializer.
	EncodeArgs func(args []any) ([]json.RawMessage, error)
	DecodeArgs func(raw []json.RawMessage) ([]any, error)

	// EncodeResult/DecodeResult convert the function's return value.
	EncodeResult func(result any) (json.RawMessage, error)
	DecodeResult func(raw json.RawMessage) (any, error)
}

// isClose reports whether this FuncSpec is the interface's close() method,
// which the outbound proxy treats specially (spec §4.4): it marks the call
// handler closed and triggers scope removal, and any later call on the same
// proxy fails with ServiceClosed.
func (f FuncSpec) isClose() bool {
	return f.Signature == "fun close(): kotlin.Unit" || f.Signature == "close()"
}

// CallHandler is what an outbound proxy calls into. The Endpoint supplies
// the concrete implementation from Take; a hand-written or generated proxy
// forwards each interface method to Call or CallSuspending with that
// method's ordinal and already-boxed arguments.
type CallHandler interface {
	// Call performs a synchronous outbound call and returns the decoded
	// result or the decoded application error.
	Call(ordinal int, args []any) (any, error)
	// CallSuspending performs a suspending outbound call. It blocks the
	// calling goroutine until the peer reports the call's outcome.
	// Cancelling ctx fires the peer's cancel service at most once (spec §5);
	// the call still returns only once the peer's outcome arrives.
	CallSuspending(ctx context.Context, ordinal int, args []any) (any, error)
	// Closed reports whether close() has already been observed on this
	// handler.
	Closed() bool
}

// Adapter is the per-interface descriptor an Endpoint depends on (spec
// §4.4 and §9 "Generated adapters vs. runtime reflection"). A target
// implementation may hand-write one Adapter per service interface, which is
// the approach this package takes: Adapters are ordinary Go values, not
// produced by reflection or code generation, so every service type used
// with Bind/Take must come with a hand-written Adapter[T].
type Adapter[T any] interface {
	// Funcs returns the interface's ordered function list. Ordinals are
	// stable identity — never reorder an existing Adapter's Funcs.
	Funcs() []FuncSpec
	// InvokeOnInstance dispatches an inbound call to a concrete local
	// instance (used for inbound dispatch). May suspend (block) for
	// suspending functions — the Endpoint runs it on its own goroutine and
	// passes a ctx that is cancelled when the peer invokes the call's
	// cancel service; a suspending implementation should check ctx.Done()
	// cooperatively where it can.
	InvokeOnInstance(ctx context.Context, instance T, ordinal int, args []any) (any, error)
	// CreateOutboundProxy builds a T whose methods forward to handler.
	CreateOutboundProxy(handler CallHandler) T
}
