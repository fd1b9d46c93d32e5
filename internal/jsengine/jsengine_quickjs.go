//go:build !v8

package jsengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"modernc.org/quickjs"

	zipline "github.com/ziplinekit/zipline"
)

// QuickJSChannel implements both Runner and zipline.CallChannel over a
// single modernc.org/quickjs VM. Outbound calls (Go calling into JS) are
// driven by a small driver script: the arguments are JSON-quoted directly
// into a script that invokes app_cash_zipline_inboundChannel, and the result
// is the value that eval returns. Inbound calls (JS calling into Go) are plain Go functions
// registered with vm.RegisterFunc under app_cash_zipline_outboundChannel's
// four method names, forwarding straight to the paired Endpoint's
// Dispatch* methods.
type QuickJSChannel struct {
	// engineMu serializes access to vm: every Go-driven eval (Install,
	// RunJob, ServiceNames, Invoke, InvokeSuspending, Disconnect, Close)
	// holds it for the duration of the call. The outbound channel closures
	// registered below deliberately do NOT take engineMu — JS invoked
	// under a held engineMu can call back into them synchronously on the
	// same goroutine (spec §8's reference-cycle-across-boundary case), and
	// sync.Mutex is not reentrant.
	engineMu sync.Mutex
	vm       *quickjs.VM

	peerMu sync.Mutex
	peer   *zipline.Endpoint
}

// NewQuickJSChannel creates a VM and installs the outbound channel's Go
// functions. Call SetPeer before any inbound call reaches JS.
func NewQuickJSChannel() (*QuickJSChannel, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("jsengine: creating quickjs VM: %w", err)
	}
	c := &QuickJSChannel{vm: vm}
	if err := c.installOutboundChannel(); err != nil {
		vm.Close()
		return nil, err
	}
	return c, nil
}

// SetPeer binds the Endpoint that owns the Go-side services JS can call
// into, resolving the same construction-order cycle LocalCallChannel
// resolves for the in-process case.
func (c *QuickJSChannel) SetPeer(ep *zipline.Endpoint) {
	c.peerMu.Lock()
	defer c.peerMu.Unlock()
	c.peer = ep
}

func (c *QuickJSChannel) installOutboundChannel() error {
	serviceNames := func() ([]string, error) {
		c.peerMu.Lock()
		peer := c.peer
		c.peerMu.Unlock()
		if peer == nil {
			return nil, nil
		}
		return peer.ServiceNames(), nil
	}
	invoke := func(callJSON string) (string, error) {
		c.peerMu.Lock()
		peer := c.peer
		c.peerMu.Unlock()
		if peer == nil {
			return "", fmt.Errorf("jsengine: outbound channel called before SetPeer")
		}
		return string(peer.DispatchInvoke([]byte(callJSON))), nil
	}
	invokeSuspending := func(callJSON, suspendCallbackName string) (string, error) {
		c.peerMu.Lock()
		peer := c.peer
		c.peerMu.Unlock()
		if peer == nil {
			return "", fmt.Errorf("jsengine: outbound channel called before SetPeer")
		}
		return string(peer.DispatchInvokeSuspending([]byte(callJSON), suspendCallbackName)), nil
	}
	disconnect := func(name string) (bool, error) {
		c.peerMu.Lock()
		peer := c.peer
		c.peerMu.Unlock()
		if peer == nil {
			return false, nil
		}
		return peer.Disconnect(name), nil
	}

	raw := map[string]any{
		"__zipline_outbound_serviceNames":     serviceNames,
		"__zipline_outbound_invoke":           invoke,
		"__zipline_outbound_invokeSuspending": invokeSuspending,
		"__zipline_outbound_disconnect":       disconnect,
	}
	for name, fn := range raw {
		if err := c.vm.RegisterFunc(name, fn, false); err != nil {
			return fmt.Errorf("jsengine: registering %s: %w", name, err)
		}
	}

	shim := fmt.Sprintf(`
		globalThis[%q] = {
			serviceNamesArray: function() { return __zipline_outbound_serviceNames()[0]; },
			invoke: function(call) { return __zipline_outbound_invoke(call)[0]; },
			invokeSuspending: function(call, cb) { return __zipline_outbound_invokeSuspending(call, cb)[0]; },
			disconnect: function(name) { return __zipline_outbound_disconnect(name)[0]; }
		};
	`, OutboundChannelName)
	return c.eval(shim)
}

func (c *QuickJSChannel) eval(js string) error {
	v, err := c.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// Install evaluates a decoded module's JS source (spec §4.6's Receiver
// sink for a JS engine).
func (c *QuickJSChannel) Install(_ context.Context, moduleID string, source []byte) error {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	if err := c.eval(string(source)); err != nil {
		return fmt.Errorf("jsengine: installing module %q: %w", moduleID, err)
	}
	return nil
}

// RunJob pumps one timer callback (spec §4.7's host bootstrap contract).
func (c *QuickJSChannel) RunJob(timeoutID int) {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	_ = c.eval(fmt.Sprintf("globalThis.__zipline_runJob && globalThis.__zipline_runJob(%d);", timeoutID))
}

func (c *QuickJSChannel) Close() error {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	c.vm.Close()
	return nil
}

// ServiceNames calls the JS inbound channel's serviceNamesArray().
func (c *QuickJSChannel) ServiceNames() []string {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	v, err := c.vm.EvalValue(fmt.Sprintf("JSON.stringify(globalThis[%q].serviceNamesArray())", InboundChannelName), quickjs.EvalGlobal)
	if err != nil {
		return nil
	}
	defer v.Free()
	var names []string
	_ = json.Unmarshal([]byte(fmt.Sprint(v)), &names)
	return names
}

// Invoke calls the JS inbound channel's invoke(), synchronously.
func (c *QuickJSChannel) Invoke(encodedCall []byte) []byte {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	callJSON, err := json.Marshal(string(encodedCall))
	if err != nil {
		return nil
	}
	v, err := c.vm.EvalValue(fmt.Sprintf("globalThis[%q].invoke(%s)", InboundChannelName, callJSON), quickjs.EvalGlobal)
	if err != nil {
		return nil
	}
	defer v.Free()
	return []byte(fmt.Sprint(v))
}

// InvokeSuspending calls the JS inbound channel's invokeSuspending().
func (c *QuickJSChannel) InvokeSuspending(encodedCall []byte, suspendCallbackName string) []byte {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	callJSON, err := json.Marshal(string(encodedCall))
	if err != nil {
		return nil
	}
	cbJSON, err := json.Marshal(suspendCallbackName)
	if err != nil {
		return nil
	}
	v, err := c.vm.EvalValue(fmt.Sprintf("globalThis[%q].invokeSuspending(%s, %s)", InboundChannelName, callJSON, cbJSON), quickjs.EvalGlobal)
	if err != nil {
		return nil
	}
	defer v.Free()
	return []byte(fmt.Sprint(v))
}

// Disconnect calls the JS inbound channel's disconnect().
func (c *QuickJSChannel) Disconnect(name string) bool {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	nameJSON, err := json.Marshal(name)
	if err != nil {
		return false
	}
	v, err := c.vm.EvalValue(fmt.Sprintf("globalThis[%q].disconnect(%s)", InboundChannelName, nameJSON), quickjs.EvalGlobal)
	if err != nil {
		return false
	}
	defer v.Free()
	return fmt.Sprint(v) == "true"
}

var _ Runner = (*QuickJSChannel)(nil)
var _ zipline.CallChannel = (*QuickJSChannel)(nil)
