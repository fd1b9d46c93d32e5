//go:build v8

package jsengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	v8 "github.com/tommie/v8go"

	zipline "github.com/ziplinekit/zipline"
)

// V8Channel is the -tags v8 counterpart of QuickJSChannel: same ABI, same
// outbound-function-registration idiom, backed by github.com/tommie/v8go
// instead of modernc.org/quickjs, grounded on the teacher's v8engine
// runtime's use of v8.NewFunctionTemplate for Go-callable globals.
type V8Channel struct {
	// engineMu serializes access to iso/ctx the same way QuickJSChannel's
	// engineMu does; the outbound functions registered below use peerMu
	// instead so JS calling back into them while engineMu is held (spec
	// §8's reference-cycle-across-boundary case) doesn't deadlock on a
	// non-reentrant mutex.
	engineMu sync.Mutex
	iso      *v8.Isolate
	ctx      *v8.Context

	peerMu sync.Mutex
	peer   *zipline.Endpoint
}

// NewV8Channel creates an isolate and context and installs the outbound
// channel's functions. Call SetPeer before any inbound call reaches JS.
func NewV8Channel() (*V8Channel, error) {
	iso := v8.NewIsolate()
	ctx := v8.NewContext(iso)
	c := &V8Channel{iso: iso, ctx: ctx}
	if err := c.installOutboundChannel(); err != nil {
		ctx.Close()
		iso.Dispose()
		return nil, err
	}
	return c, nil
}

func (c *V8Channel) SetPeer(ep *zipline.Endpoint) {
	c.peerMu.Lock()
	defer c.peerMu.Unlock()
	c.peer = ep
}

func (c *V8Channel) registerFunc(name string, fn func(args []*v8.Value) (string, error)) error {
	tmpl := v8.NewFunctionTemplate(c.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		result, err := fn(info.Args())
		if err != nil {
			msg, _ := v8.NewValue(c.iso, err.Error())
			c.iso.ThrowException(msg)
			return nil
		}
		v, _ := v8.NewValue(c.iso, result)
		return v
	})
	return c.ctx.Global().Set(name, tmpl.GetFunction(c.ctx))
}

func (c *V8Channel) installOutboundChannel() error {
	if err := c.registerFunc("__zipline_outbound_serviceNames", func(_ []*v8.Value) (string, error) {
		c.peerMu.Lock()
		peer := c.peer
		c.peerMu.Unlock()
		if peer == nil {
			return "[]", nil
		}
		b, err := json.Marshal(peer.ServiceNames())
		return string(b), err
	}); err != nil {
		return err
	}
	if err := c.registerFunc("__zipline_outbound_invoke", func(args []*v8.Value) (string, error) {
		c.peerMu.Lock()
		peer := c.peer
		c.peerMu.Unlock()
		if peer == nil || len(args) < 1 {
			return "", fmt.Errorf("jsengine: outbound channel called before SetPeer")
		}
		return string(peer.DispatchInvoke([]byte(args[0].String()))), nil
	}); err != nil {
		return err
	}
	if err := c.registerFunc("__zipline_outbound_invokeSuspending", func(args []*v8.Value) (string, error) {
		c.peerMu.Lock()
		peer := c.peer
		c.peerMu.Unlock()
		if peer == nil || len(args) < 2 {
			return "", fmt.Errorf("jsengine: outbound channel called before SetPeer")
		}
		return string(peer.DispatchInvokeSuspending([]byte(args[0].String()), args[1].String())), nil
	}); err != nil {
		return err
	}
	if err := c.registerFunc("__zipline_outbound_disconnect", func(args []*v8.Value) (string, error) {
		c.peerMu.Lock()
		peer := c.peer
		c.peerMu.Unlock()
		if peer == nil || len(args) < 1 {
			return "false", nil
		}
		if peer.Disconnect(args[0].String()) {
			return "true", nil
		}
		return "false", nil
	}); err != nil {
		return err
	}

	shim := fmt.Sprintf(`
		globalThis[%q] = {
			serviceNamesArray: function() { return JSON.parse(__zipline_outbound_serviceNames()); },
			invoke: function(call) { return __zipline_outbound_invoke(call); },
			invokeSuspending: function(call, cb) { return __zipline_outbound_invokeSuspending(call, cb); },
			disconnect: function(name) { return __zipline_outbound_disconnect(name) === "true"; }
		};
	`, OutboundChannelName)
	_, err := c.ctx.RunScript(shim, "zipline_outbound_shim.js")
	return err
}

// Install evaluates a decoded module's JS source.
func (c *V8Channel) Install(_ context.Context, moduleID string, source []byte) error {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	if _, err := c.ctx.RunScript(string(source), moduleID+".js"); err != nil {
		return fmt.Errorf("jsengine: installing module %q: %w", moduleID, err)
	}
	return nil
}

// RunJob pumps one timer callback.
func (c *V8Channel) RunJob(timeoutID int) {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	_, _ = c.ctx.RunScript(fmt.Sprintf("globalThis.__zipline_runJob && globalThis.__zipline_runJob(%d);", timeoutID), "run_job.js")
}

func (c *V8Channel) Close() error {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	c.ctx.Close()
	c.iso.Dispose()
	return nil
}

func (c *V8Channel) ServiceNames() []string {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	val, err := c.ctx.RunScript(fmt.Sprintf("JSON.stringify(globalThis[%q].serviceNamesArray())", InboundChannelName), "service_names.js")
	if err != nil {
		return nil
	}
	var names []string
	_ = json.Unmarshal([]byte(val.String()), &names)
	return names
}

func (c *V8Channel) Invoke(encodedCall []byte) []byte {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	callJSON, err := json.Marshal(string(encodedCall))
	if err != nil {
		return nil
	}
	val, err := c.ctx.RunScript(fmt.Sprintf("globalThis[%q].invoke(%s)", InboundChannelName, callJSON), "invoke.js")
	if err != nil {
		return nil
	}
	return []byte(val.String())
}

func (c *V8Channel) InvokeSuspending(encodedCall []byte, suspendCallbackName string) []byte {
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
	val, err := c.ctx.RunScript(fmt.Sprintf("globalThis[%q].invokeSuspending(%s, %s)", InboundChannelName, callJSON, cbJSON), "invoke_suspending.js")
	if err != nil {
		return nil
	}
	return []byte(val.String())
}

func (c *V8Channel) Disconnect(name string) bool {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	nameJSON, err := json.Marshal(name)
	if err != nil {
		return false
	}
	val, err := c.ctx.RunScript(fmt.Sprintf("globalThis[%q].disconnect(%s)", InboundChannelName, nameJSON), "disconnect.js")
	if err != nil {
		return false
	}
	return val.Boolean()
}

var _ Runner = (*V8Channel)(nil)
var _ zipline.CallChannel = (*V8Channel)(nil)
