package exchange

import (
	"net/http"
	"os"
	"runtime"
	"sync"
)

// capability caches a probe result for the lifetime of the process.
type capability struct {
	once  sync.Once
	ok    bool
	probe func() bool
}

func (c *capability) available() bool {
	c.once.Do(func() {
		c.ok = c.probe()
	})
	return c.ok
}

// transportCapability is process-wide on purpose: whether the runtime can
// open network connections does not change while the process runs.
var transportCapability = &capability{probe: probeTransport}

func probeTransport() bool {
	switch runtime.GOOS {
	case "js", "wasip1":
		return false
	}
	_, ok := http.DefaultTransport.(*http.Transport)
	return ok
}

// Available reports whether HTTP transport is usable in this process. The
// probe runs at most once.
func Available() bool {
	return transportCapability.available()
}

// ManualRedirectsEnv, when set to a non-empty value other than "0", marks
// the environment as one where the transport must not follow redirects on
// its own.
const ManualRedirectsEnv = "FETCHIE_MANUAL_REDIRECTS"

// NativeRedirectsAllowed inspects the sandbox indicators of the current
// environment.
func NativeRedirectsAllowed() bool {
	v, ok := os.LookupEnv(ManualRedirectsEnv)
	return !ok || v == "" || v == "0"
}
