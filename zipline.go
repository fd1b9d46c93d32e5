package zipline

// Zipline is the host-side facade described in spec §4.7: one Endpoint
// wired to a JS engine's two named channels, a root ZiplineScope for
// services taken without an explicit caller-owned scope, and the host
// bootstrap services (setTimeout, consoleMessage).
type Zipline struct {
	Endpoint *Endpoint
	Scope    *ZiplineScope
	Host     *HostBootstrap
}

// New creates a Zipline instance. channel is the JS engine's CallChannel
// (typically internal/jsengine's quickjs or v8 backend); runner lets the
// host bootstrap resume scheduled timeouts on that same engine.
func New(channel CallChannel, runner JSRunner, cfg EndpointConfig) *Zipline {
	return &Zipline{
		Endpoint: NewEndpoint(channel, cfg),
		Scope:    NewZiplineScope(),
		Host:     NewHostBootstrap(runner),
	}
}

// Close tears down the instance: cancels pending host timers, closes every
// service still registered in the root scope, then closes the Endpoint
// (failing any continuation still in flight with EndpointClosed). Scope
// close failures are returned; the Endpoint and Host are always closed
// regardless.
func (z *Zipline) Close() error {
	z.Host.Close()
	err := z.Scope.Close()
	z.Endpoint.Close()
	return err
}
