package zipline

// LocalCallChannel is a CallChannel backed directly by a peer Endpoint in
// the same process — the "channel" when both sides of the bridge are Go
// code (tests, or a Go↔Go service pair) rather than a JS engine's FIFO pair
// (internal/jsengine provides that backend instead). spec §4.2 requires
// only that invoke/invokeSuspending deliver bytes to the peer's inbound
// dispatch; a direct method call satisfies that trivially.
type LocalCallChannel struct {
	peer *Endpoint
}

var _ CallChannel = (*LocalCallChannel)(nil)

// NewLocalEndpointPair builds two Endpoints wired to each other via
// LocalCallChannel, resolving the construction-order cycle (each Endpoint
// needs the other's channel, but neither Endpoint exists yet) by binding the
// channels' peer pointers after both Endpoints are built.
func NewLocalEndpointPair(cfgA, cfgB EndpointConfig) (a, b *Endpoint) {
	chanA := &LocalCallChannel{}
	chanB := &LocalCallChannel{}
	a = NewEndpoint(chanB, cfgA)
	b = NewEndpoint(chanA, cfgB)
	chanA.peer = a
	chanB.peer = b
	return a, b
}

func (c *LocalCallChannel) ServiceNames() []string {
	return c.peer.ServiceNames()
}

func (c *LocalCallChannel) Invoke(encodedCall []byte) []byte {
	return c.peer.DispatchInvoke(encodedCall)
}

func (c *LocalCallChannel) InvokeSuspending(encodedCall []byte, suspendCallbackName string) []byte {
	return c.peer.DispatchInvokeSuspending(encodedCall, suspendCallbackName)
}

func (c *LocalCallChannel) Disconnect(name string) bool {
	return c.peer.Disconnect(name)
}
