//go:build !v8

package jsengine

import (
	"context"
	"testing"
	"time"

	zipline "github.com/ziplinekit/zipline"
)

// fakeInboundJS is installed as the JS side's app_cash_zipline_inboundChannel
// for tests: an echo service bound directly in JS, avoiding any dependency
// on a real compiled Zipline JS runtime.
const fakeInboundJS = `
globalThis.__echoCalls = [];
globalThis["app_cash_zipline_inboundChannel"] = {
	serviceNamesArray: function() { return ["echo"]; },
	invoke: function(call) {
		globalThis.__echoCalls.push(call);
		var parsed = JSON.parse(call);
		return JSON.stringify({ v: parsed.a[0] });
	},
	invokeSuspending: function(call, cb) {
		return JSON.stringify({ v: { cancelCallback: "noop" } });
	},
	disconnect: function(name) { return name === "echo"; }
};
`

func TestQuickJSChannelServiceNamesAndInvoke(t *testing.T) {
	c, err := NewQuickJSChannel()
	if err != nil {
		t.Fatalf("NewQuickJSChannel: %v", err)
	}
	defer c.Close()

	if err := c.Install(context.Background(), "fake", []byte(fakeInboundJS)); err != nil {
		t.Fatalf("Install: %v", err)
	}

	names := c.ServiceNames()
	if len(names) != 1 || names[0] != "echo" {
		t.Fatalf("ServiceNames() = %v, want [echo]", names)
	}

	result := c.Invoke([]byte(`{"s":"echo","f":0,"a":["hi"]}`))
	if string(result) != `{"v":"hi"}` {
		t.Fatalf("Invoke result = %s, want {\"v\":\"hi\"}", result)
	}

	if !c.Disconnect("echo") {
		t.Fatal("Disconnect(\"echo\") = false, want true")
	}
}

// TestQuickJSChannelOutboundReachesPeer installs a script that calls
// app_cash_zipline_outboundChannel.serviceNamesArray() synchronously, on the
// same goroutine, while Install itself is holding the engine lock for its
// own eval — the reference-cycle-across-boundary reentrancy case (spec §8).
// Before engineMu/peerMu were split, this deadlocked forever.
func TestQuickJSChannelOutboundReachesPeer(t *testing.T) {
	c, err := NewQuickJSChannel()
	if err != nil {
		t.Fatalf("NewQuickJSChannel: %v", err)
	}
	defer c.Close()

	ep := zipline.NewEndpoint(c, zipline.EndpointConfig{})
	c.SetPeer(ep)

	done := make(chan error, 1)
	go func() {
		done <- c.Install(context.Background(), "probe", []byte(`
			globalThis.__outboundServices = globalThis["app_cash_zipline_outboundChannel"].serviceNamesArray();
		`))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Install: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Install deadlocked: JS calling back into the outbound channel during Install never returned")
	}
}
