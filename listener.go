package zipline

import "time"

// CallInfo describes one dispatched call, passed to EventListener.CallStart
// and CallEnd (spec §4.3 "Event notifications", §6 "Listener events").
type CallInfo struct {
	Service      string
	Function     string // FuncSpec.Signature
	IsSuspending bool
	Outbound     bool // true if this Endpoint initiated the call
}

// CallResult summarizes how a call finished, passed to CallEnd.
type CallResult struct {
	Duration  time.Duration
	Exception error // non-nil if the call threw or failed
	Cancelled bool
}

// EventListener is a pure observer (spec §4.8): it has no control effect on
// the bridge. The Endpoint catches and swallows a panic from a listener
// method; the Loader calls its listener directly and does not recover
// panics from it.
type EventListener interface {
	BindService(name string, service any)
	TakeService(name string, service any)
	CallStart(call CallInfo) (token any)
	CallEnd(call CallInfo, result CallResult, token any)
	ServiceLeaked(name string)

	DownloadStart(applicationName, url string)
	DownloadEnd(applicationName, url string)
	DownloadFailed(applicationName, url string, err error)
	ManifestParseFailed(applicationName, url string, err error)

	ApplicationLoadStart(applicationName string)
	ApplicationLoadEnd(applicationName string)
	ApplicationLoadFailed(applicationName string, err error)
}

// NoOpEventListener implements EventListener with no-ops. Embed it to pick
// and choose which hooks to override.
type NoOpEventListener struct{}

func (NoOpEventListener) BindService(string, any)                       {}
func (NoOpEventListener) TakeService(string, any)                       {}
func (NoOpEventListener) CallStart(CallInfo) any                        { return nil }
func (NoOpEventListener) CallEnd(CallInfo, CallResult, any)              {}
func (NoOpEventListener) ServiceLeaked(string)                          {}
func (NoOpEventListener) DownloadStart(string, string)                  {}
func (NoOpEventListener) DownloadEnd(string, string)                    {}
func (NoOpEventListener) DownloadFailed(string, string, error)          {}
func (NoOpEventListener) ManifestParseFailed(string, string, error)     {}
func (NoOpEventListener) ApplicationLoadStart(string)                   {}
func (NoOpEventListener) ApplicationLoadEnd(string)                     {}
func (NoOpEventListener) ApplicationLoadFailed(string, error)           {}

var _ EventListener = NoOpEventListener{}

// safeListener wraps an EventListener so that a panic from any hook is
// caught and swallowed, counted internally, rather than crashing the
// Endpoint (spec §4.8). The Loader does not use it.
type safeListener struct {
	inner       EventListener
	panicCount  int
}

func newSafeListener(l EventListener) *safeListener {
	if l == nil {
		l = NoOpEventListener{}
	}
	return &safeListener{inner: l}
}

func (s *safeListener) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.panicCount++
		}
	}()
	fn()
}

func (s *safeListener) BindService(name string, service any) {
	s.guard(func() { s.inner.BindService(name, service) })
}

func (s *safeListener) TakeService(name string, service any) {
	s.guard(func() { s.inner.TakeService(name, service) })
}

func (s *safeListener) CallStart(call CallInfo) (token any) {
	s.guard(func() { token = s.inner.CallStart(call) })
	return token
}

func (s *safeListener) CallEnd(call CallInfo, result CallResult, token any) {
	s.guard(func() { s.inner.CallEnd(call, result, token) })
}

func (s *safeListener) ServiceLeaked(name string) {
	s.guard(func() { s.inner.ServiceLeaked(name) })
}

func (s *safeListener) DownloadStart(app, url string) {
	s.guard(func() { s.inner.DownloadStart(app, url) })
}

func (s *safeListener) DownloadEnd(app, url string) {
	s.guard(func() { s.inner.DownloadEnd(app, url) })
}

func (s *safeListener) DownloadFailed(app, url string, err error) {
	s.guard(func() { s.inner.DownloadFailed(app, url, err) })
}

func (s *safeListener) ManifestParseFailed(app, url string, err error) {
	s.guard(func() { s.inner.ManifestParseFailed(app, url, err) })
}

func (s *safeListener) ApplicationLoadStart(app string) {
	s.guard(func() { s.inner.ApplicationLoadStart(app) })
}

func (s *safeListener) ApplicationLoadEnd(app string) {
	s.guard(func() { s.inner.ApplicationLoadEnd(app) })
}

func (s *safeListener) ApplicationLoadFailed(app string, err error) {
	s.guard(func() { s.inner.ApplicationLoadFailed(app, err) })
}
