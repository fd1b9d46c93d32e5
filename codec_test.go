package zipline

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCallEnvelopeRoundTrip(t *testing.T) {
	arg, _ := json.Marshal("hi")
	call := &CallEnvelope{Service: "echo", Function: 0, Args: []json.RawMessage{arg}}
	b, err := EncodeCall(call)
	if err != nil {
		t.Fatalf("EncodeCall: %v", err)
	}
	decoded, err := DecodeCall(b)
	if err != nil {
		t.Fatalf("DecodeCall: %v", err)
	}
	if decoded.Service != call.Service || decoded.Function != call.Function {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}
}

func TestDecodeCallInvalidFrame(t *testing.T) {
	_, err := DecodeCall([]byte("not json"))
	if err == nil {
		t.Fatal("expected an error decoding garbage bytes")
	}
	var frameErr *InvalidFrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *InvalidFrameError, got %T", err)
	}
}

func TestResultEnvelopeValueRoundTrip(t *testing.T) {
	val, _ := json.Marshal(42)
	b, err := EncodeResultValue(val)
	if err != nil {
		t.Fatalf("EncodeResultValue: %v", err)
	}
	result, err := DecodeResult(b)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	var n int
	if err := json.Unmarshal(result.Value, &n); err != nil || n != 42 {
		t.Fatalf("got %s, want 42", result.Value)
	}
	if result.Exception != nil {
		t.Fatalf("expected no exception, got %s", result.Exception)
	}
}

func TestResultEnvelopeExceptionRoundTrip(t *testing.T) {
	th := NewThrowable(errors.New("boom"))
	b, err := EncodeResultException(th)
	if err != nil {
		t.Fatalf("EncodeResultException: %v", err)
	}
	result, err := DecodeResult(b)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if result.Value != nil {
		t.Fatalf("expected no value, got %s", result.Value)
	}
	var decoded Throwable
	if err := json.Unmarshal(result.Exception, &decoded); err != nil {
		t.Fatalf("unmarshal exception: %v", err)
	}
	if decoded.Message != "boom" {
		t.Fatalf("got message %q, want %q", decoded.Message, "boom")
	}
}

func TestCancelCallbackRoundTrip(t *testing.T) {
	b, err := EncodeCancelCallback("zipline/cancel/1")
	if err != nil {
		t.Fatalf("EncodeCancelCallback: %v", err)
	}
	result, err := DecodeResult(b)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	name, err := DecodeCancelCallback(result.Value)
	if err != nil {
		t.Fatalf("DecodeCancelCallback: %v", err)
	}
	if name != "zipline/cancel/1" {
		t.Fatalf("got %q, want %q", name, "zipline/cancel/1")
	}
}

func TestJSONSerializerRoundTrip(t *testing.T) {
	s := NewJSONSerializer[string]()
	b, err := s.Encode("hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, err := s.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v != "hello" {
		t.Fatalf("got %q, want %q", v, "hello")
	}
}

func TestEncodeRefDedupesByInstance(t *testing.T) {
	a, _ := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()

	instance := &echoImpl{}
	name1, err := EncodeRef[Echo](a, instance, echoAdapter{})
	if err != nil {
		t.Fatalf("EncodeRef: %v", err)
	}
	name2, err := EncodeRef[Echo](a, instance, echoAdapter{})
	if err != nil {
		t.Fatalf("EncodeRef: %v", err)
	}
	if string(name1) != string(name2) {
		t.Fatalf("expected the same reference name for the same instance, got %s and %s", name1, name2)
	}
}

func TestDecodeRefBuildsOutboundProxy(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()
	defer b.Close()

	raw, err := EncodeRef[Echo](a, &echoImpl{}, echoAdapter{})
	if err != nil {
		t.Fatalf("EncodeRef: %v", err)
	}

	proxy, err := DecodeRef[Echo](b, nil, raw, echoAdapter{})
	if err != nil {
		t.Fatalf("DecodeRef: %v", err)
	}
	got, err := proxy.EchoString("ref")
	if err != nil {
		t.Fatalf("EchoString: %v", err)
	}
	if got != "ref" {
		t.Fatalf("got %q, want %q", got, "ref")
	}
}
