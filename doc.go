// Package zipline implements the cross-runtime service bridge described in
// the Zipline system: a typed, bidirectional, suspending RPC layer between
// a host process and an embedded JavaScript engine, plus the code loader
// that fetches and verifies the JS modules the engine runs.
//
// The engine itself (QuickJS, V8, or any other JS runtime) is an external
// collaborator. This package only depends on the two-FIFO channel ABI
// described in the wire format (§6 of the design spec) — see internal/jsengine
// for reference implementations wired to real engines for integration tests.
package zipline
