package zipline

// CallChannel is the raw two-sided transport described in spec §4.2. Each
// side's inbound channel is the peer's outbound channel — an Endpoint is
// constructed with one CallChannel representing "the other side."
//
// All four methods are total: they must not panic, and invoke/invokeSuspending
// must not return before the outbound half of a call is fully written.
type CallChannel interface {
	// ServiceNames returns a snapshot of names currently registered on the
	// remote side.
	ServiceNames() []string

	// Invoke performs a synchronous round-trip: it must not return until
	// the peer has produced a result envelope. The JS side, by
	// construction, never yields during this call; the host side blocks.
	Invoke(encodedCall []byte) (encodedResult []byte)

	// InvokeSuspending starts a suspending call and returns immediately.
	// Its return value is typically an encoded cancelCallback reference
	// (spec §4.2); the eventual result arrives later as a separate Invoke
	// from the peer targeting suspendCallbackName.
	InvokeSuspending(encodedCall []byte, suspendCallbackName string) (encodedResult []byte)

	// Disconnect removes the named service on the remote side. Returns
	// whether a service with that name existed.
	Disconnect(name string) bool
}
