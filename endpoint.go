package zipline

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// inboundEntry is the type-erased registration behind one name in an
// Endpoint's inbound registry (spec §3 "Service registry"). Both
// user-bound services (via Bind) and the internal one-shot suspend/cancel
// callback services share this shape.
type inboundEntry struct {
	name         string
	funcs        []FuncSpec
	dispatch     func(ordinal int, args []json.RawMessage) (result json.RawMessage, thrown *Throwable, protoErr error)
	dispatchSusp func(ctx context.Context, ordinal int, args []json.RawMessage, onDone func(result json.RawMessage, thrown *Throwable, cancelled bool))
	closeFn      func()
	instance     any // kept for EncodeRef identity dedup and event listener payloads
}

// continuationEntry tracks one outstanding outbound suspending call (spec §3
// "Continuation registry" and §4.3 "Completion invariants").
type continuationEntry struct {
	once     sync.Once
	resultCh chan continuationResult
}

type continuationResult struct {
	value     json.RawMessage
	exception *Throwable
	cancelled bool
	closedErr error
}

func (c *continuationEntry) resolve(r continuationResult) {
	c.once.Do(func() { c.resultCh <- r })
}

// Endpoint is the per-side router owning the service registry and
// continuation registry (spec §4.3). All exported methods are safe to call
// from any goroutine; internally, registry and continuation mutation is
// serialized by a mutex standing in for the single dispatcher thread the
// design spec describes (spec §5) — see DESIGN.md for why a mutex was
// chosen over a literal command-channel dispatcher goroutine.
type Endpoint struct {
	channel  CallChannel
	listener *safeListener

	mu            sync.Mutex
	inbound       map[string]*inboundEntry
	continuations map[string]*continuationEntry
	refByInstance map[any]string
	nameCounter   uint64
	closed        bool

	incompleteContinuations atomic.Int64
}

// EndpointConfig configures a new Endpoint.
type EndpointConfig struct {
	Listener EventListener
}

// NewEndpoint creates an Endpoint that routes outbound calls through
// channel. channel represents "the peer": its Invoke/InvokeSuspending
// methods must deliver bytes to the other side's inbound dispatch.
func NewEndpoint(channel CallChannel, cfg EndpointConfig) *Endpoint {
	return &Endpoint{
		channel:       channel,
		listener:      newSafeListener(cfg.Listener),
		inbound:       make(map[string]*inboundEntry),
		continuations: make(map[string]*continuationEntry),
		refByInstance: make(map[any]string),
	}
}

// GenerateName returns a fresh name of the form "<prefix>/<counter>"; the
// counter is monotonic per Endpoint (spec §4.3).
func (ep *Endpoint) GenerateName(prefix string) string {
	n := atomic.AddUint64(&ep.nameCounter, 1)
	return fmt.Sprintf("%s/%d", prefix, n)
}

// ServiceNames returns the names currently bound as inbound services on
// this Endpoint (what channel.ServiceNames on the peer side would report
// for us).
func (ep *Endpoint) ServiceNames() []string {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	names := make([]string, 0, len(ep.inbound))
	for n := range ep.inbound {
		names = append(names, n)
	}
	return names
}

// Remove removes an inbound service, invoking its close() exactly once if
// present. Idempotent (spec §3 "Service registry").
func (ep *Endpoint) Remove(name string) {
	ep.Disconnect(name)
}

// Disconnect removes the named inbound service, invoking its close() exactly
// once if present, and reports whether a service with that name existed —
// the Endpoint-side implementation of CallChannel.Disconnect (spec §4.2).
func (ep *Endpoint) Disconnect(name string) bool {
	ep.mu.Lock()
	entry, ok := ep.inbound[name]
	if ok {
		delete(ep.inbound, name)
		if entry.instance != nil {
			delete(ep.refByInstance, entry.instance)
		}
	}
	ep.mu.Unlock()
	if ok && entry.closeFn != nil {
		entry.closeFn()
	}
	return ok
}

func (ep *Endpoint) bindEntry(name string, entry *inboundEntry) {
	ep.mu.Lock()
	prior, hadPrior := ep.inbound[name]
	entry.name = name
	ep.inbound[name] = entry
	if entry.instance != nil {
		ep.refByInstance[entry.instance] = name
	}
	ep.mu.Unlock()

	if hadPrior && prior.closeFn != nil {
		prior.closeFn()
	}
	ep.listener.BindService(name, entry.instance)
}

// referenceNameForInstance finds v's existing inbound registration or
// returns "", false so the caller can register a fresh one (spec §4.3
// "Reference encoding").
func (ep *Endpoint) referenceNameForInstance(v any) (string, bool) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	name, ok := ep.refByInstance[v]
	return name, ok
}

func (ep *Endpoint) lookup(name string) (*inboundEntry, bool) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	e, ok := ep.inbound[name]
	return e, ok
}

// DispatchInvoke handles an inbound `invoke` call from the peer (spec §4.2,
// §4.3 "Inbound dispatch") for a non-suspending function, and returns the
// encoded result envelope. Also used for the peer's calls into our
// suspend-callback and cancel-callback services, since those always arrive
// via invoke regardless of whether the original user function suspended.
func (ep *Endpoint) DispatchInvoke(encodedCall []byte) []byte {
	call, err := DecodeCall(encodedCall)
	if err != nil {
		b, _ := EncodeResultException(NewThrowable(&ProtocolError{Reason: err.Error()}))
		return b
	}

	entry, ok := ep.lookup(call.Service)
	if !ok {
		b, _ := EncodeResultException(NewThrowable(&ProtocolError{
			Reason: fmt.Sprintf("unknown service %q", call.Service),
		}))
		return b
	}
	if call.Function < 0 || call.Function >= len(entry.funcs) {
		b, _ := EncodeResultException(NewThrowable(&ProtocolError{
			Reason: fmt.Sprintf("bad function ordinal %d for service %q", call.Function, call.Service),
		}))
		return b
	}

	info := CallInfo{Service: call.Service, Function: entry.funcs[call.Function].Signature}
	token := ep.listener.CallStart(info)

	value, thrown, protoErr := entry.dispatch(call.Function, call.Args)

	ep.listener.CallEnd(info, CallResult{Exception: errFromThrowable(thrown)}, token)

	if protoErr != nil {
		b, _ := EncodeResultException(NewThrowable(&ProtocolError{Reason: protoErr.Error()}))
		return b
	}
	if thrown != nil {
		b, _ := EncodeResultException(thrown)
		return b
	}
	b, _ := EncodeResultValue(value)
	return b
}

// DispatchInvokeSuspending handles an inbound `invokeSuspending` call (spec
// §4.3): it creates a cancel service, returns the cancelCallback envelope
// immediately, and schedules the handler on its own goroutine. When the
// handler finishes, the result is delivered to the peer's suspendCallback
// via a fresh outbound Invoke.
func (ep *Endpoint) DispatchInvokeSuspending(encodedCall []byte, suspendCallbackName string) []byte {
	call, err := DecodeCall(encodedCall)
	if err != nil {
		b, _ := EncodeResultException(NewThrowable(&ProtocolError{Reason: err.Error()}))
		return b
	}

	entry, ok := ep.lookup(call.Service)
	if !ok {
		b, _ := EncodeResultException(NewThrowable(&ProtocolError{
			Reason: fmt.Sprintf("unknown service %q", call.Service),
		}))
		return b
	}
	if call.Function < 0 || call.Function >= len(entry.funcs) || entry.dispatchSusp == nil {
		b, _ := EncodeResultException(NewThrowable(&ProtocolError{
			Reason: fmt.Sprintf("bad suspending function ordinal %d for service %q", call.Function, call.Service),
		}))
		return b
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancelName := ep.GenerateName("zipline/cancel")
	var fired atomic.Bool
	ep.bindEntry(cancelName, &inboundEntry{
		funcs: []FuncSpec{{Signature: "cancel"}},
		dispatch: func(int, []json.RawMessage) (json.RawMessage, *Throwable, error) {
			if fired.CompareAndSwap(false, true) {
				cancel()
			}
			return json.RawMessage("null"), nil, nil
		},
	})

	info := CallInfo{Service: call.Service, Function: entry.funcs[call.Function].Signature, IsSuspending: true}
	token := ep.listener.CallStart(info)

	go func() {
		entry.dispatchSusp(ctx, call.Function, call.Args, func(value json.RawMessage, thrown *Throwable, cancelled bool) {
			ep.Remove(cancelName)
			ep.listener.CallEnd(info, CallResult{Exception: errFromThrowable(thrown), Cancelled: cancelled}, token)

			var resultBytes []byte
			var encErr error
			switch {
			case cancelled:
				resultBytes, encErr = EncodeResultException(NewThrowable(&CancellationError{
					Service: call.Service, Function: entry.funcs[call.Function].Signature,
				}))
			case thrown != nil:
				resultBytes, encErr = EncodeResultException(thrown)
			default:
				resultBytes, encErr = EncodeResultValue(value)
			}
			if encErr != nil {
				return
			}

			cb, err := EncodeCall(&CallEnvelope{Service: suspendCallbackName, Function: 0, Args: []json.RawMessage{resultBytes}})
			if err != nil {
				return
			}
			ep.channel.Invoke(cb)
		})
	}()

	b, _ := EncodeCancelCallback(cancelName)
	return b
}

// errFromThrowable adapts a *Throwable (possibly nil) to an error for the
// EventListener's CallResult.
func errFromThrowable(t *Throwable) error {
	if t == nil {
		return nil
	}
	return t
}

// cancellationThrowableClassName is the ClassName a *CancellationError
// serializes to via NewThrowable (%T of the Go type), used to recognize a
// peer-reported cancellation after it has crossed the wire as an ordinary
// exception envelope.
var cancellationThrowableClassName = fmt.Sprintf("%T", &CancellationError{})

func isCancellationThrowable(t *Throwable) bool {
	return t != nil && t.ClassName == cancellationThrowableClassName
}

// Close marks the Endpoint closed, fails all pending continuations with
// EndpointClosed, and makes every future call fail the same way (spec §5
// "Close discipline").
func (ep *Endpoint) Close() {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return
	}
	ep.closed = true
	conts := ep.continuations
	ep.continuations = make(map[string]*continuationEntry)
	inbound := ep.inbound
	ep.inbound = make(map[string]*inboundEntry)
	ep.mu.Unlock()

	for _, c := range conts {
		c.resolve(continuationResult{closedErr: &EndpointClosedError{}})
	}
	for _, e := range inbound {
		if e.closeFn != nil {
			e.closeFn()
		}
	}
}

// IsClosed reports whether Close has run.
func (ep *Endpoint) IsClosed() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.closed
}

// --- outbound call machinery, used by generated/hand-written proxies via CallHandler ---

type endpointCallHandler struct {
	ep      *Endpoint
	name    string
	adapter interface{ Funcs() []FuncSpec }
	// closed is a separate allocation (not an embedded value) so that
	// Take's leak-detection cleanup can hold its own pointer to it without
	// keeping the handler itself reachable (spec §4.3 "leak detection").
	closed *atomic.Bool
	scope  *ZiplineScope
}

func newCallHandler(ep *Endpoint, name string, funcsProvider interface{ Funcs() []FuncSpec }, scope *ZiplineScope) *endpointCallHandler {
	return &endpointCallHandler{ep: ep, name: name, adapter: funcsProvider, scope: scope, closed: new(atomic.Bool)}
}

func (h *endpointCallHandler) Closed() bool { return h.closed.Load() }

// closeFromScope is what ZiplineScope.Close calls on each member still
// registered when the scope closes (spec §4.5 "each contained proxy
// receives close() exactly once"). If the proxy's interface has a close()
// function, it is actually invoked over the wire so the peer's bound
// instance is released, mirroring the close() special case in Call.
// ServiceClosed is swallowed since the proxy is closed either way.
func (h *endpointCallHandler) closeFromScope() error {
	if h.closed.Load() {
		return nil
	}
	for ordinal, spec := range h.adapter.Funcs() {
		if !spec.isClose() {
			continue
		}
		_, err := h.Call(ordinal, nil)
		if _, ok := err.(*ServiceClosedError); ok {
			return nil
		}
		return err
	}
	h.closed.Store(true)
	return nil
}

// Call performs a synchronous outbound call (spec §4.3 "Outbound dispatch").
func (h *endpointCallHandler) Call(ordinal int, args []any) (any, error) {
	if h.closed.Load() {
		return nil, &ServiceClosedError{Name: h.name}
	}
	if h.ep.IsClosed() {
		return nil, &EndpointClosedError{}
	}
	funcs := h.adapter.Funcs()
	spec := funcs[ordinal]

	encodedArgs, err := spec.EncodeArgs(args)
	if err != nil {
		return nil, err
	}
	callBytes, err := EncodeCall(&CallEnvelope{Service: h.name, Function: ordinal, Args: encodedArgs})
	if err != nil {
		return nil, err
	}

	info := CallInfo{Service: h.name, Function: spec.Signature, Outbound: true}
	token := h.ep.listener.CallStart(info)
	resultBytes := h.ep.channel.Invoke(callBytes)
	result, err := DecodeResult(resultBytes)
	if err != nil {
		h.ep.listener.CallEnd(info, CallResult{Exception: err}, token)
		return nil, &ChannelError{Op: "invoke", Err: err}
	}

	if result.Exception != nil {
		var t Throwable
		_ = json.Unmarshal(result.Exception, &t)
		h.ep.listener.CallEnd(info, CallResult{Exception: &t}, token)
		if spec.isClose() {
			h.closed.Store(true)
			if h.scope != nil {
				h.scope.remove(h)
			}
		}
		return nil, &t
	}
	h.ep.listener.CallEnd(info, CallResult{}, token)

	if spec.isClose() {
		h.closed.Store(true)
		if h.scope != nil {
			h.scope.remove(h)
		}
	}

	return spec.DecodeResult(result.Value)
}

// CallSuspending performs a suspending outbound call (spec §4.3, §5
// "Cancellation"). It registers a fresh suspend callback, invokes the
// channel, and installs a cancellation hook that fires the peer's cancel
// service if ctx is cancelled before the result arrives.
func (h *endpointCallHandler) CallSuspending(ctx context.Context, ordinal int, args []any) (any, error) {
	if h.closed.Load() {
		return nil, &ServiceClosedError{Name: h.name}
	}
	if h.ep.IsClosed() {
		return nil, &EndpointClosedError{}
	}
	funcs := h.adapter.Funcs()
	spec := funcs[ordinal]

	encodedArgs, err := spec.EncodeArgs(args)
	if err != nil {
		return nil, err
	}
	callBytes, err := EncodeCall(&CallEnvelope{Service: h.name, Function: ordinal, Args: encodedArgs})
	if err != nil {
		return nil, err
	}

	suspendName := "zipline/suspend/" + uuid.NewString()
	cont := &continuationEntry{resultCh: make(chan continuationResult, 1)}

	h.ep.mu.Lock()
	h.ep.continuations[suspendName] = cont
	h.ep.mu.Unlock()
	h.ep.incompleteContinuations.Add(1)

	h.ep.bindEntry(suspendName, &inboundEntry{
		funcs: []FuncSpec{{Signature: "suspendCallback"}},
		dispatch: func(_ int, callArgs []json.RawMessage) (json.RawMessage, *Throwable, error) {
			ep := h.ep
			ep.Remove(suspendName)
			ep.mu.Lock()
			delete(ep.continuations, suspendName)
			ep.mu.Unlock()
			ep.incompleteContinuations.Add(-1)

			result, err := DecodeResult(callArgs[0])
			if err != nil {
				cont.resolve(continuationResult{closedErr: &ChannelError{Op: "suspendCallback", Err: err}})
				return json.RawMessage("null"), nil, nil
			}
			if result.Exception != nil {
				var t Throwable
				_ = json.Unmarshal(result.Exception, &t)
				cont.resolve(continuationResult{exception: &t, cancelled: isCancellationThrowable(&t)})
			} else {
				cont.resolve(continuationResult{value: result.Value})
			}
			return json.RawMessage("null"), nil, nil
		},
	})

	info := CallInfo{Service: h.name, Function: spec.Signature, Outbound: true, IsSuspending: true}
	token := h.ep.listener.CallStart(info)

	initialReply := h.ep.channel.InvokeSuspending(callBytes, suspendName)
	initial, err := DecodeResult(initialReply)
	var cancelName string
	if err == nil && initial.Value != nil {
		cancelName, _ = DecodeCancelCallback(initial.Value)
	}

	select {
	case r := <-cont.resultCh:
		h.ep.listener.CallEnd(info, CallResult{Exception: errFromThrowable(r.exception), Cancelled: r.cancelled}, token)
		if r.closedErr != nil {
			return nil, r.closedErr
		}
		if r.exception != nil {
			return nil, r.exception
		}
		return spec.DecodeResult(r.value)
	case <-ctx.Done():
		if cancelName != "" {
			cancelBytes, _ := EncodeCall(&CallEnvelope{Service: cancelName, Function: 0, Args: nil})
			h.ep.channel.Invoke(cancelBytes)
		}
		// The peer may have already completed the call (successfully or
		// with an exception) before observing our cancel — r is the
		// handler's own outcome and is what resolves the continuation; a
		// CancellationError is synthesized only if the peer itself reports
		// the call as cancelled.
		r := <-cont.resultCh
		h.ep.listener.CallEnd(info, CallResult{Exception: errFromThrowable(r.exception), Cancelled: r.cancelled}, token)
		if r.closedErr != nil {
			return nil, r.closedErr
		}
		if !r.cancelled {
			if r.exception != nil {
				return nil, r.exception
			}
			return spec.DecodeResult(r.value)
		}
		return nil, &CancellationError{Service: h.name, Function: spec.Signature}
	}
}

// Bind registers an inbound service under name, replacing (and closing) any
// prior registration (spec §4.3 "bind<T>").
func Bind[T any](ep *Endpoint, name string, instance T, adapter Adapter[T]) {
	funcs := adapter.Funcs()
	entry := &inboundEntry{
		funcs:    funcs,
		instance: instance,
	}
	entry.dispatch = func(ordinal int, args []json.RawMessage) (json.RawMessage, *Throwable, error) {
		decoded, err := funcs[ordinal].DecodeArgs(args)
		if err != nil {
			return nil, nil, err
		}
		result, callErr := adapter.InvokeOnInstance(context.Background(), instance, ordinal, decoded)
		if callErr != nil {
			return nil, NewThrowable(callErr), nil
		}
		encoded, err := funcs[ordinal].EncodeResult(result)
		if err != nil {
			return nil, nil, err
		}
		return encoded, nil, nil
	}
	entry.dispatchSusp = func(ctx context.Context, ordinal int, args []json.RawMessage, onDone func(json.RawMessage, *Throwable, bool)) {
		decoded, err := funcs[ordinal].DecodeArgs(args)
		if err != nil {
			onDone(nil, NewThrowable(err), false)
			return
		}
		result, callErr := adapter.InvokeOnInstance(ctx, instance, ordinal, decoded)
		if ctx.Err() != nil {
			onDone(nil, nil, true)
			return
		}
		if callErr != nil {
			onDone(nil, NewThrowable(callErr), false)
			return
		}
		encoded, err := funcs[ordinal].EncodeResult(result)
		if err != nil {
			onDone(nil, NewThrowable(err), false)
			return
		}
		onDone(encoded, nil, false)
	}
	switch closer := any(instance).(type) {
	case interface{ Close() }:
		entry.closeFn = closer.Close
	case interface{ Close() error }:
		entry.closeFn = func() { _ = closer.Close() }
	}
	ep.bindEntry(name, entry)
}

// Take returns an outbound proxy for the peer's service registered under
// name (spec §4.3 "take<T>"). It does not round-trip. If scope is non-nil,
// the proxy is registered with it and will be closed when the scope closes.
//
// A cleanup is attached to the handler backing the returned proxy: if the
// proxy (and therefore the handler) becomes unreachable without close()
// ever having been called, the Endpoint's EventListener is notified via
// ServiceLeaked (spec §4.3 "leak detection", §8 scenario 6).
func Take[T any](ep *Endpoint, name string, adapter Adapter[T], scope *ZiplineScope) T {
	handler := newCallHandler(ep, name, funcsProvider{adapter.Funcs()}, scope)
	proxy := adapter.CreateOutboundProxy(handler)
	ep.listener.TakeService(name, proxy)
	if scope != nil {
		scope.add(handler, name)
	}
	runtime.AddCleanup(handler, reportIfLeaked, leakArg{name: name, closed: handler.closed, listener: ep.listener})
	return proxy
}

// leakArg carries what reportIfLeaked needs without holding a reference to
// the handler being watched.
type leakArg struct {
	name     string
	closed   *atomic.Bool
	listener *safeListener
}

func reportIfLeaked(arg leakArg) {
	if !arg.closed.Load() {
		arg.listener.ServiceLeaked(arg.name)
	}
}

type funcsProvider struct{ funcs []FuncSpec }

func (f funcsProvider) Funcs() []FuncSpec { return f.funcs }

