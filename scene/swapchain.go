package scene

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu"
)

// OutputSwapState is the per-output input to a batch swapchain
// prepare/commit, generalizing renderer.go's single-surface
// BeginFrame/Resize/EndFrame cycle to the batch shape
// OutputManager.commit_output_state needs: validate every output's
// buffers are ready before any of them is committed to KMS.
type OutputSwapState struct {
	OutputID      uint64
	Width, Height uint32
	AdaptiveSync  bool
}

type preparedOutput struct {
	state   OutputSwapState
	surface *webgpu.Surface
	config  webgpu.SurfaceConfiguration
}

// SwapchainManager wraps the wgpu device shared across every output's
// surface. It is grounded directly on renderer.go's Renderer, which
// held a single wgpu.Instance/Adapter/Device/Queue/Surface and drove
// acquire → configure → present against it; here the same device is
// shared across a batch of per-output surfaces, and prepare/commit are
// split so OutputManager can revert the whole batch on failure instead
// of presenting a partially-applied set of modes.
type SwapchainManager struct {
	mu sync.Mutex

	instance *webgpu.Instance
	adapter  *webgpu.Adapter
	device   *webgpu.Device
	queue    *webgpu.Queue

	prepared map[uint64]*preparedOutput
}

// NewSwapchainManager acquires the shared wgpu instance/adapter/device,
// mirroring Renderer.init in renderer.go.
func NewSwapchainManager() (*SwapchainManager, error) {
	instance := webgpu.CreateInstance(&webgpu.InstanceDescriptor{})
	if instance == nil {
		return nil, fmt.Errorf("scene: swapchain manager: failed to create wgpu instance")
	}

	adapter, err := instance.RequestAdapter(&webgpu.RequestAdapterOptions{
		PowerPreference: webgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("scene: swapchain manager: request adapter: %w", err)
	}

	device, err := adapter.RequestDevice(&webgpu.DeviceDescriptor{})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("scene: swapchain manager: request device: %w", err)
	}

	return &SwapchainManager{
		instance: instance,
		adapter:  adapter,
		device:   device,
		queue:    device.GetQueue(),
		prepared: make(map[uint64]*preparedOutput),
	}, nil
}

// Prepare stages surface configurations for a batch of outputs
// without presenting anything, corresponding to §4.1 step 3
// ("swapchain_manager.prepare(states)"). On any single output's
// failure the whole batch is torn down and an error is returned so
// the caller can revert pending/sent to current for every output
// rather than leave some outputs half-applied.
func (m *SwapchainManager) Prepare(surfaces map[uint64]*webgpu.Surface, states []OutputSwapState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[uint64]*preparedOutput, len(states))
	for _, st := range states {
		surf, ok := surfaces[st.OutputID]
		if !ok {
			m.releaseStaged(staged)
			return fmt.Errorf("scene: swapchain manager: prepare: no surface for output %d", st.OutputID)
		}

		caps, err := surf.GetCapabilities(m.adapter)
		if err != nil {
			m.releaseStaged(staged)
			return fmt.Errorf("scene: swapchain manager: prepare: capabilities for output %d: %w", st.OutputID, err)
		}
		if len(caps.Formats) == 0 {
			m.releaseStaged(staged)
			return fmt.Errorf("scene: swapchain manager: prepare: output %d has no compatible surface formats", st.OutputID)
		}

		presentMode := webgpu.PresentModeFifo
		if st.AdaptiveSync {
			presentMode = choosePresentMode(caps.PresentModes, webgpu.PresentModeMailbox, presentMode)
		}

		cfg := webgpu.SurfaceConfiguration{
			Device:      m.device,
			Format:      caps.Formats[0],
			Width:       st.Width,
			Height:      st.Height,
			PresentMode: presentMode,
			AlphaMode:   caps.AlphaModes[0],
		}
		staged[st.OutputID] = &preparedOutput{state: st, surface: surf, config: cfg}
	}

	m.prepared = staged
	return nil
}

func choosePresentMode(available []webgpu.PresentMode, want, fallback webgpu.PresentMode) webgpu.PresentMode {
	for _, m := range available {
		if m == want {
			return want
		}
	}
	return fallback
}

// Commit applies every staged configuration to its surface. This is
// §4.1 step 4 ("backend.commit(states)"): all-or-nothing across the
// batch, matching Renderer.Resize's reconfigure-on-demand but across
// every output at once instead of one.
func (m *SwapchainManager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	configured := make([]*preparedOutput, 0, len(m.prepared))
	for _, p := range m.prepared {
		if err := p.surface.Configure(&p.config); err != nil {
			for _, done := range configured {
				_ = done.surface.Unconfigure()
			}
			return fmt.Errorf("scene: swapchain manager: commit: output %d: %w", p.state.OutputID, err)
		}
		configured = append(configured, p)
	}
	return nil
}

// Revert discards whatever was staged by Prepare without touching any
// surface that was never configured, used when OutputManager aborts a
// batch before Commit runs.
func (m *SwapchainManager) Revert() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseStaged(m.prepared)
	m.prepared = make(map[uint64]*preparedOutput)
}

func (m *SwapchainManager) releaseStaged(staged map[uint64]*preparedOutput) {
	// Surfaces are owned by the caller (one per output); nothing to
	// release here beyond dropping our references to the staged
	// configuration.
	for k := range staged {
		delete(staged, k)
	}
}

// Destroy releases the device/adapter/instance in reverse order of
// acquisition, matching Renderer.Destroy.
func (m *SwapchainManager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queue != nil {
		m.queue.Release()
	}
	if m.device != nil {
		m.device.Release()
	}
	if m.adapter != nil {
		m.adapter.Release()
	}
	if m.instance != nil {
		m.instance.Release()
	}
}
