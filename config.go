package wmcore

import "time"

// Config configures a Core instance. Grounded on the teacher's
// config.go (a flat struct of primitive fields plus a
// DefaultConfig constructor and WithX fluent copy-setters).
type Config struct {
	// SocketPath is the filesystem path of the Unix-domain control
	// socket the WM process dials in on.
	SocketPath string

	// RenderTimeout overrides the render sequence's configure-ack
	// timeout (§4.3/§5), 100ms per spec.md unless set otherwise.
	RenderTimeout time.Duration

	// EnableSwapchain controls whether Core acquires a real
	// scene.SwapchainManager (which talks to an actual GPU adapter) or
	// runs with swapchain support disabled, the mode a headless test
	// harness needs since requesting a wgpu adapter in CI has no
	// hardware to bind to.
	EnableSwapchain bool
}

// DefaultConfig returns sensible defaults: the conventional River
// control socket path and the spec's 100ms render timeout.
func DefaultConfig() Config {
	return Config{
		SocketPath:      "/run/river/wmcore.sock",
		RenderTimeout:   100 * time.Millisecond,
		EnableSwapchain: true,
	}
}

// WithSocketPath returns a copy with SocketPath set.
func (c Config) WithSocketPath(path string) Config {
	c.SocketPath = path
	return c
}

// WithRenderTimeout returns a copy with RenderTimeout set.
func (c Config) WithRenderTimeout(d time.Duration) Config {
	c.RenderTimeout = d
	return c
}
