package zipline

import "fmt"

// ChannelError reports a transport failure: the channel is closed,
// unreachable, or produced a malformed frame. Fatal and local — it is never
// forwarded to the peer.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("zipline: channel error during %s", e.Op)
	}
	return fmt.Sprintf("zipline: channel error during %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// ProtocolError reports an unknown service name, a bad function ordinal, or
// an envelope that failed to decode. It is sent back to the caller as an
// exception envelope; the Endpoint stays open and the EventListener is not
// notified of it.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "zipline: protocol error: " + e.Reason }

// InvalidFrameError is returned by the wire codec when a byte sequence does
// not decode into the expected envelope shape. It is surfaced to the caller
// as a fatal local error — it does not close the channel (spec §4.1).
type InvalidFrameError struct {
	Err error
}

func (e *InvalidFrameError) Error() string { return "zipline: invalid frame: " + e.Err.Error() }
func (e *InvalidFrameError) Unwrap() error { return e.Err }

// ServiceClosedError is returned when a call is made on a proxy after its
// close() function has already been invoked.
type ServiceClosedError struct {
	Name string
}

func (e *ServiceClosedError) Error() string {
	return fmt.Sprintf("zipline: service %q is closed", e.Name)
}

// EndpointClosedError is returned for any call made on an Endpoint after
// Close() has been called, and delivered to every continuation still
// pending at close time.
type EndpointClosedError struct{}

func (e *EndpointClosedError) Error() string { return "zipline: endpoint is closed" }

// ScopeClosedError describes an attempt to register a reference on an
// already closed ZiplineScope. Nothing in this package returns it: a proxy
// added to a closed scope is closed immediately instead.
type ScopeClosedError struct {
	Name string
}

func (e *ScopeClosedError) Error() string {
	return fmt.Sprintf("zipline: scope is closed, cannot register %q", e.Name)
}

// CancellationError indicates a suspending call was cancelled before it
// completed. It is cooperative and is not logged as a failure by the
// EventListener.
type CancellationError struct {
	Service  string
	Function string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("zipline: call to %s.%s was cancelled", e.Service, e.Function)
}

// MultiError aggregates failures observed while closing a ZiplineScope —
// each contained proxy's close() is attempted regardless of earlier
// failures, and the failures are reported together rather than individually
// re-thrown (spec §4.5).
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("zipline: %d errors closing scope, first: %v", len(e.Errors), e.Errors[0])
}

func (e *MultiError) Unwrap() []error { return e.Errors }

// Loader error kinds (spec §7).

// ManifestParseError wraps a failure to decode the manifest JSON.
type ManifestParseError struct {
	URL string
	Err error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("zipline: failed to parse manifest at %s: %v", e.URL, e.Err)
}
func (e *ManifestParseError) Unwrap() error { return e.Err }

// ModuleUnavailableError is returned when no fetcher in the chain produced
// bytes for a module.
type ModuleUnavailableError struct {
	ModuleID string
	URL      string
}

func (e *ModuleUnavailableError) Error() string {
	return fmt.Sprintf("zipline: module %q unavailable (url=%s)", e.ModuleID, e.URL)
}

// Sha256MismatchError is returned when downloaded module bytes do not hash
// to the manifest's declared sha256.
type Sha256MismatchError struct {
	ModuleID string
	Want     string
	Got      string
}

func (e *Sha256MismatchError) Error() string {
	return fmt.Sprintf("zipline: module %q sha256 mismatch: want %s got %s", e.ModuleID, e.Want, e.Got)
}

// VersionMismatchError is returned when a module container's version field
// does not equal CurrentZiplineVersion.
type VersionMismatchError struct {
	Want, Got uint32
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("zipline: module version mismatch: want %d got %d", e.Want, e.Got)
}

// ManifestCycleError is returned when a manifest's module dependency graph
// contains a cycle and therefore has no valid load order.
type ManifestCycleError struct {
	ModuleID string
}

func (e *ManifestCycleError) Error() string {
	return fmt.Sprintf("zipline: manifest dependency cycle detected at module %q", e.ModuleID)
}

// ManifestUnknownDependencyError is returned when a module's dependsOnIds
// names an id with no corresponding module entry in the manifest (spec §3's
// Manifest invariant: "every referenced id exists").
type ManifestUnknownDependencyError struct {
	ModuleID    string
	DependsOnID string
}

func (e *ManifestUnknownDependencyError) Error() string {
	return fmt.Sprintf("zipline: module %q depends on unknown module %q", e.ModuleID, e.DependsOnID)
}

// Throwable is the cross-boundary representation of an application-thrown
// error (spec §7, §9): class name, message, stack, and an optional cause
// chain, preserved verbatim across the boundary.
type Throwable struct {
	ClassName  string     `json:"class_name"`
	Message    string     `json:"message"`
	StackTrace string     `json:"stack_trace,omitempty"`
	Cause      *Throwable `json:"cause,omitempty"`
}

func (t *Throwable) Error() string {
	if t.Message == "" {
		return t.ClassName
	}
	return t.ClassName + ": " + t.Message
}

// NewThrowable builds a Throwable from a Go error, walking its Unwrap chain
// to populate Cause. Errors that are already *Throwable are passed through.
func NewThrowable(err error) *Throwable {
	if err == nil {
		return nil
	}
	if t, ok := err.(*Throwable); ok {
		return t
	}
	t := &Throwable{
		ClassName: fmt.Sprintf("%T", err),
		Message:   err.Error(),
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		if cause := u.Unwrap(); cause != nil {
			t.Cause = NewThrowable(cause)
		}
	}
	return t
}
