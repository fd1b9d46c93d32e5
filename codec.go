package zipline

import "encoding/json"

// CallEnvelope is the byte sequence exchanged per call (spec §6):
//
//	{ "s":"<serviceName>", "f":<ordinal>, "a":[<encArg>,...], "c":"<suspendCbName>"? }
//
// Field names are stable across versions and implementations must not rely
// on JSON key ordering.
type CallEnvelope struct {
	Service         string            `json:"s"`
	Function        int               `json:"f"`
	Args            []json.RawMessage `json:"a"`
	SuspendCallback string            `json:"c,omitempty"`
}

// ResultEnvelope is the reply to a call. Exactly one of Value/Exception is
// set, matching spec §6's `{ "v": ... }` / `{ "e": ... }` shapes.
type ResultEnvelope struct {
	Value     json.RawMessage `json:"v,omitempty"`
	Exception json.RawMessage `json:"e,omitempty"`
}

// cancelCallbackResult is the value of a suspend-initial reply:
// { "v": { "cancelCallback": "<name>" } }.
type cancelCallbackResult struct {
	CancelCallback string `json:"cancelCallback"`
}

// EncodeCall serializes a call envelope to its wire bytes.
func EncodeCall(e *CallEnvelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, &InvalidFrameError{Err: err}
	}
	return b, nil
}

// DecodeCall parses wire bytes into a call envelope. A decode failure is an
// InvalidFrame error (spec §4.1): it is returned to the caller but must not
// close the channel.
func DecodeCall(b []byte) (*CallEnvelope, error) {
	var e CallEnvelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, &InvalidFrameError{Err: err}
	}
	return &e, nil
}

// EncodeResultValue builds a normal `{ "v": ... }` result envelope from an
// already-encoded value.
func EncodeResultValue(value json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(&ResultEnvelope{Value: value})
	if err != nil {
		return nil, &InvalidFrameError{Err: err}
	}
	return b, nil
}

// EncodeResultException builds an error `{ "e": ... }` result envelope from
// a Throwable.
func EncodeResultException(t *Throwable) ([]byte, error) {
	encoded, err := json.Marshal(t)
	if err != nil {
		return nil, &InvalidFrameError{Err: err}
	}
	b, err := json.Marshal(&ResultEnvelope{Exception: encoded})
	if err != nil {
		return nil, &InvalidFrameError{Err: err}
	}
	return b, nil
}

// EncodeCancelCallback builds the suspend-initial reply naming the peer-side
// cancellation service.
func EncodeCancelCallback(name string) ([]byte, error) {
	inner, err := json.Marshal(&cancelCallbackResult{CancelCallback: name})
	if err != nil {
		return nil, &InvalidFrameError{Err: err}
	}
	return EncodeResultValue(inner)
}

// DecodeResult parses wire bytes into a result envelope.
func DecodeResult(b []byte) (*ResultEnvelope, error) {
	var r ResultEnvelope
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, &InvalidFrameError{Err: err}
	}
	return &r, nil
}

// DecodeCancelCallback extracts the cancelCallback name from a suspend-initial
// reply's value.
func DecodeCancelCallback(value json.RawMessage) (string, error) {
	var c cancelCallbackResult
	if err := json.Unmarshal(value, &c); err != nil {
		return "", &InvalidFrameError{Err: err}
	}
	return c.CancelCallback, nil
}

// Serializer encodes and decodes a single Go value of type T to and from
// the JSON wire representation used inside a call's argument list and
// result. Adapters (spec §4.4) supply one Serializer per parameter and one
// for the result.
type Serializer[T any] interface {
	Encode(v T) (json.RawMessage, error)
	Decode(raw json.RawMessage) (T, error)
}

// jsonSerializer is a Serializer built directly on encoding/json, the
// correct choice for every value type registered in this bridge: the wire
// format is specified as JSON (spec §4.1), so there is no ecosystem
// serialization library to prefer over the standard library's own codec
// here (see DESIGN.md).
type jsonSerializer[T any] struct{}

// NewJSONSerializer returns a Serializer that marshals/unmarshals T with
// encoding/json. It is the default implementation used by hand-written
// Adapters for primitive and struct argument/result types.
func NewJSONSerializer[T any]() Serializer[T] { return jsonSerializer[T]{} }

func (jsonSerializer[T]) Encode(v T) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &InvalidFrameError{Err: err}
	}
	return b, nil
}

func (jsonSerializer[T]) Decode(raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &InvalidFrameError{Err: err}
	}
	return v, nil
}

// EncodeRef encodes a pass-by-reference value: the Endpoint either locates
// v's existing registration or generates a fresh name, registers v as an
// inbound service under that name, and the wire value is that name
// (spec §4.3 "Reference encoding").
func EncodeRef[T any](ep *Endpoint, v T, adapter Adapter[T]) (json.RawMessage, error) {
	name, ok := ep.referenceNameForInstance(v)
	if !ok {
		name = ep.GenerateName("zipline/ref")
		Bind(ep, name, v, adapter)
	}
	b, err := json.Marshal(name)
	if err != nil {
		return nil, &InvalidFrameError{Err: err}
	}
	return b, nil
}

// DecodeRef decodes a pass-by-reference wire name into an outbound proxy,
// registered under scope if non-nil (spec §4.3).
func DecodeRef[T any](ep *Endpoint, scope *ZiplineScope, raw json.RawMessage, adapter Adapter[T]) (T, error) {
	var name string
	var zero T
	if err := json.Unmarshal(raw, &name); err != nil {
		return zero, &InvalidFrameError{Err: err}
	}
	if name == "" {
		return zero, nil
	}
	return Take(ep, name, adapter, scope), nil
}
