package zipline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Echo and Sleeper are small hand-written service interfaces used across
// this package's tests, standing in for the generated/hand-written Adapters
// a real application would bring (spec §4.4, §9).

type Echo interface {
	EchoString(s string) (string, error)
	Close() error
}

type echoImpl struct {
	closed bool
}

func (e *echoImpl) EchoString(s string) (string, error) { return s, nil }
func (e *echoImpl) Close() error                         { e.closed = true; return nil }

type echoAdapter struct{}

func (echoAdapter) Funcs() []FuncSpec {
	return []FuncSpec{
		{
			Signature: "fun echoString(kotlin.String): kotlin.String",
			EncodeArgs: func(args []any) ([]json.RawMessage, error) {
				b, err := json.Marshal(args[0].(string))
				if err != nil {
					return nil, err
				}
				return []json.RawMessage{b}, nil
			},
			DecodeArgs: func(raw []json.RawMessage) ([]any, error) {
				var s string
				if err := json.Unmarshal(raw[0], &s); err != nil {
					return nil, err
				}
				return []any{s}, nil
			},
			EncodeResult: func(result any) (json.RawMessage, error) {
				return json.Marshal(result.(string))
			},
			DecodeResult: func(raw json.RawMessage) (any, error) {
				var s string
				if err := json.Unmarshal(raw, &s); err != nil {
					return nil, err
				}
				return s, nil
			},
		},
		{
			Signature: "close()",
			EncodeArgs: func([]any) ([]json.RawMessage, error) { return nil, nil },
			DecodeArgs: func([]json.RawMessage) ([]any, error) { return nil, nil },
			EncodeResult: func(any) (json.RawMessage, error) {
				return json.RawMessage("null"), nil
			},
			DecodeResult: func(json.RawMessage) (any, error) { return nil, nil },
		},
	}
}

func (echoAdapter) InvokeOnInstance(_ context.Context, instance Echo, ordinal int, args []any) (any, error) {
	switch ordinal {
	case 0:
		return instance.EchoString(args[0].(string))
	case 1:
		return nil, instance.Close()
	default:
		return nil, fmt.Errorf("echoAdapter: bad ordinal %d", ordinal)
	}
}

func (echoAdapter) CreateOutboundProxy(handler CallHandler) Echo {
	return &echoProxy{handler: handler}
}

type echoProxy struct{ handler CallHandler }

func (p *echoProxy) EchoString(s string) (string, error) {
	result, err := p.handler.Call(0, []any{s})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (p *echoProxy) Close() error {
	_, err := p.handler.Call(1, nil)
	return err
}

// Sleeper exercises the suspending / cancellation path (spec §5, §8 scenario 2).
type Sleeper interface {
	Sleep(ctx context.Context, ms int) error
}

type sleeperImpl struct{}

func (sleeperImpl) Sleep(ctx context.Context, ms int) error {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type sleeperAdapter struct{}

func (sleeperAdapter) Funcs() []FuncSpec {
	return []FuncSpec{
		{
			Signature:    "suspend fun sleep(kotlin.Int): kotlin.Unit",
			IsSuspending: true,
			EncodeArgs: func(args []any) ([]json.RawMessage, error) {
				b, err := json.Marshal(args[0].(int))
				if err != nil {
					return nil, err
				}
				return []json.RawMessage{b}, nil
			},
			DecodeArgs: func(raw []json.RawMessage) ([]any, error) {
				var ms int
				if err := json.Unmarshal(raw[0], &ms); err != nil {
					return nil, err
				}
				return []any{ms}, nil
			},
			EncodeResult: func(any) (json.RawMessage, error) { return json.RawMessage("null"), nil },
			DecodeResult: func(json.RawMessage) (any, error) { return nil, nil },
		},
	}
}

func (sleeperAdapter) InvokeOnInstance(ctx context.Context, instance Sleeper, ordinal int, args []any) (any, error) {
	return nil, instance.Sleep(ctx, args[0].(int))
}

func (sleeperAdapter) CreateOutboundProxy(handler CallHandler) Sleeper {
	return &sleeperProxy{handler: handler}
}

type sleeperProxy struct{ handler CallHandler }

func (p *sleeperProxy) Sleep(ctx context.Context, ms int) error {
	_, err := p.handler.CallSuspending(ctx, 0, []any{ms})
	return err
}
