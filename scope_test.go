package zipline

import "testing"

func TestZiplineScopeClosesMembers(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()
	defer b.Close()

	Bind[Echo](a, "echo", &echoImpl{}, echoAdapter{})

	scope := NewZiplineScope()
	proxy := Take[Echo](b, "echo", echoAdapter{}, scope)

	if _, err := proxy.EchoString("x"); err != nil {
		t.Fatalf("EchoString before scope close: %v", err)
	}

	if err := scope.Close(); err != nil {
		t.Fatalf("scope.Close: %v", err)
	}
	if !scope.IsClosed() {
		t.Fatal("scope should report closed")
	}

	if _, err := proxy.EchoString("x"); err == nil {
		t.Fatal("expected ServiceClosedError after scope.Close")
	}
}

func TestZiplineScopeCloseReachesPeerInstance(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()
	defer b.Close()

	impl := &echoImpl{}
	Bind[Echo](a, "echo", impl, echoAdapter{})

	scope := NewZiplineScope()
	Take[Echo](b, "echo", echoAdapter{}, scope)

	if impl.closed {
		t.Fatal("peer instance closed before scope.Close")
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("scope.Close: %v", err)
	}
	if !impl.closed {
		t.Fatal("scope.Close did not reach the peer's bound instance via close()")
	}
}

func TestZiplineScopeAddAfterCloseClosesImmediately(t *testing.T) {
	a, b := NewLocalEndpointPair(EndpointConfig{}, EndpointConfig{})
	defer a.Close()
	defer b.Close()

	Bind[Echo](a, "echo", &echoImpl{}, echoAdapter{})

	scope := NewZiplineScope()
	if err := scope.Close(); err != nil {
		t.Fatalf("scope.Close: %v", err)
	}

	proxy := Take[Echo](b, "echo", echoAdapter{}, scope)
	if _, err := proxy.EchoString("x"); err == nil {
		t.Fatal("expected ServiceClosedError: proxy added to an already-closed scope")
	}
}

func TestZiplineScopeCloseIsIdempotent(t *testing.T) {
	scope := NewZiplineScope()
	if err := scope.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
