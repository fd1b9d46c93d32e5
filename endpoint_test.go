package zipline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEndpointBindTakeEcho(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()
	defer b.Close()

	Bind[Echo](a, "echo", &echoImpl{}, echoAdapter{})

	proxy := Take[Echo](b, "echo", echoAdapter{}, nil)
	got, err := proxy.EchoString("hello")
	if err != nil {
		t.Fatalf("EchoString: %v", err)
	}
	if got != "hello" {
		t.Fatalf("EchoString: got %q want %q", got, "hello")
	}

	names := a.ServiceNames()
	if len(names) != 1 || names[0] != "echo" {
		t.Fatalf("ServiceNames: got %v", names)
	}
}

func TestEndpointCloseSpecialCase(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()
	defer b.Close()

	instance := &echoImpl{}
	Bind[Echo](a, "echo", instance, echoAdapter{})
	proxy := Take[Echo](b, "echo", echoAdapter{}, nil)

	if err := proxy.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !instance.closed {
		t.Fatal("inbound instance was not closed")
	}

	if _, err := proxy.EchoString("again"); err == nil {
		t.Fatal("expected ServiceClosedError after close()")
	} else if !errors.As(err, new(*ServiceClosedError)) {
		t.Fatalf("expected ServiceClosedError, got %v (%T)", err, err)
	}
}

func TestEndpointSuspendingSleepCompletes(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()
	defer b.Close()

	Bind[Sleeper](a, "sleeper", sleeperImpl{}, sleeperAdapter{})
	proxy := Take[Sleeper](b, "sleeper", sleeperAdapter{}, nil)

	start := time.Now()
	if err := proxy.Sleep(context.Background(), 15); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("Sleep returned before its delay elapsed")
	}
}

func TestEndpointSuspendingSleepCancellation(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()
	defer b.Close()

	Bind[Sleeper](a, "sleeper", sleeperImpl{}, sleeperAdapter{})
	proxy := Take[Sleeper](b, "sleeper", sleeperAdapter{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := proxy.Sleep(ctx, 500)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.As(err, new(*CancellationError)) {
		t.Fatalf("expected CancellationError, got %v (%T)", err, err)
	}
}

// raceChannel resolves a suspending call's result synchronously, inside
// InvokeSuspending itself, before returning the cancelCallback envelope —
// so by the time CallSuspending reaches its select, cont.resultCh is
// already filled. Paired with a ctx that is already cancelled, this forces
// the select's two cases to both be ready at once on every run, exercising
// the ctx.Done() branch's handling of an already-resolved outcome without
// depending on real scheduling timing.
type raceChannel struct {
	ep *Endpoint
}

func (c *raceChannel) ServiceNames() []string { return nil }
func (c *raceChannel) Disconnect(string) bool { return true }
func (c *raceChannel) Invoke(encodedCall []byte) []byte {
	return c.ep.DispatchInvoke(encodedCall)
}

func (c *raceChannel) InvokeSuspending(_ []byte, suspendCallbackName string) []byte {
	resultBytes, _ := EncodeResultValue(json.RawMessage(`"done"`))
	cb, _ := EncodeCall(&CallEnvelope{Service: suspendCallbackName, Function: 0, Args: []json.RawMessage{resultBytes}})
	c.ep.DispatchInvoke(cb)

	reply, _ := EncodeCancelCallback("zipline/cancel/race")
	return reply
}

func TestEndpointSuspendingRacedResultWinsOverCancellation(t *testing.T) {
	caller := NewEndpoint(&raceChannel{}, EndpointConfig{})
	channel := caller.channel.(*raceChannel)
	channel.ep = caller
	defer caller.Close()

	proxy := Take[Echo](caller, "raced", echoAdapter{}, nil)
	handler := proxy.(*echoProxy).handler.(*endpointCallHandler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 50; i++ {
		result, err := handler.CallSuspending(ctx, 0, []any{"x"})
		if err != nil {
			t.Fatalf("iteration %d: CallSuspending returned %v, want the raced success", i, err)
		}
		if result != "done" {
			t.Fatalf("iteration %d: CallSuspending = %q, want %q", i, result, "done")
		}
	}
}

func TestEndpointUnknownServiceIsProtocolError(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()
	defer b.Close()

	proxy := Take[Echo](b, "does-not-exist", echoAdapter{}, nil)
	_, err := proxy.EchoString("x")
	if err == nil {
		t.Fatal("expected an error calling an unbound service")
	}
	var thrown *Throwable
	if !errors.As(err, &thrown) || thrown.ClassName != "*zipline.ProtocolError" {
		t.Fatalf("expected a ProtocolError throwable, got %v (%T)", err, err)
	}
}

func TestEndpointCloseFailsPendingContinuations(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer b.Close()

	Bind[Sleeper](a, "sleeper", sleeperImpl{}, sleeperAdapter{})
	proxy := Take[Sleeper](b, "sleeper", sleeperAdapter{}, nil)

	resultCh := make(chan error, 1)
	go func() { resultCh <- proxy.Sleep(context.Background(), 500) }()

	time.Sleep(5 * time.Millisecond)
	b.Close()

	select {
	case err := <-resultCh:
		if err == nil {
			t.Fatal("expected an error after Endpoint.Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Endpoint.Close")
	}
}

func TestGenerateNameIsMonotonic(t *testing.T) {
	a, _ := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	first := a.GenerateName("zipline/ref")
	second := a.GenerateName("zipline/ref")
	if first == second {
		t.Fatalf("expected distinct names, got %q twice", first)
	}
	if first != "zipline/ref/1" || second != "zipline/ref/2" {
		t.Fatalf("got %q then %q, want zipline/ref/1 then zipline/ref/2", first, second)
	}
}
