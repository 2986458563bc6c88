// Package wmcore is the top-level owner wiring every component named
// in spec.md together: the scene tree, output manager, WM protocol
// bridge, transaction engine, session-lock state machine, and the
// Unix-socket control connection. Grounded on the teacher's app.go
// (a fluent NewApp/OnDraw/OnUpdate/Run builder owning every
// subsystem instance), adapted from a single-window renderer loop to
// the compositor-core's manage/render/commit cycle.
package wmcore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rivercore/wmcore/lock"
	"github.com/rivercore/wmcore/output"
	"github.com/rivercore/wmcore/protocol"
	"github.com/rivercore/wmcore/scene"
	"github.com/rivercore/wmcore/transport"
	"github.com/rivercore/wmcore/txn"
	"github.com/rivercore/wmcore/wmbridge"
)

// idlePoll is how often Run checks the bridge's windowing-dirty flag
// between transaction sequences. The dirty flag itself is
// edge-triggered (§5); this is only the cooperative scheduler's
// polling granularity, not a protocol timing.
const idlePoll = 2 * time.Millisecond

// Core owns every subsystem instance and drives the process-level
// event loop named in spec.md §9 ("global process state").
type Core struct {
	config Config

	tree      scene.Tree
	swapchain *scene.SwapchainManager

	outputs *output.Manager
	bridge  *wmbridge.Bridge
	engine  *txn.Engine
	lock    *lock.Manager

	listener *transport.UnixListener

	mu      sync.Mutex
	conn    *transport.Conn
	running bool
}

// NewCore constructs every subsystem and binds them together. events
// is the caller-supplied transport encoder for WindowManagerEvents;
// Core does not implement Wayland-style binary wire framing itself
// (out of scope per spec.md §1 — see DESIGN.md), so the caller is
// responsible for turning these events into bytes on the accepted
// connection.
func NewCore(config Config, events protocol.WindowManagerEvents) (*Core, error) {
	tree := scene.NewMemTree()

	var swapchain *scene.SwapchainManager
	if config.EnableSwapchain {
		var err error
		swapchain, err = scene.NewSwapchainManager()
		if err != nil {
			return nil, fmt.Errorf("wmcore: new core: swapchain manager: %w", err)
		}
	}

	bridge := wmbridge.NewBridge(events, tree)
	outputs := output.NewManager(tree, swapchain, bridge.MarkWindowingDirty)
	engine := txn.NewEngine(bridge, outputs, tree)
	if config.RenderTimeout > 0 {
		engine.SetTimeout(config.RenderTimeout)
	}

	normalRoot, err := tree.CreateNode(tree.Root(), scene.NodeKindTree)
	if err != nil {
		return nil, fmt.Errorf("wmcore: new core: create normal subtree: %w", err)
	}
	lockedRoot, err := tree.CreateNode(tree.Root(), scene.NodeKindTree)
	if err != nil {
		return nil, fmt.Errorf("wmcore: new core: create locked subtree: %w", err)
	}
	if err := tree.SetEnabled(lockedRoot, false); err != nil {
		return nil, fmt.Errorf("wmcore: new core: disable locked subtree: %w", err)
	}
	lockMgr := lock.NewManager(tree, normalRoot, lockedRoot)

	listener, err := transport.Listen(config.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("wmcore: new core: listen: %w", err)
	}

	return &Core{
		config:    config,
		tree:      tree,
		swapchain: swapchain,
		outputs:   outputs,
		bridge:    bridge,
		engine:    engine,
		lock:      lockMgr,
		listener:  listener,
	}, nil
}

// Tree returns the scene graph adapter every component renders
// against.
func (c *Core) Tree() scene.Tree { return c.tree }

// Outputs returns the OutputManager.
func (c *Core) Outputs() *output.Manager { return c.outputs }

// Bridge returns the WmBridge. It also implements
// protocol.WindowManagerRequests, so a transport decoder can dispatch
// window_manager_v1 requests directly onto it.
func (c *Core) Bridge() *wmbridge.Bridge { return c.bridge }

// Engine returns the TransactionEngine.
func (c *Core) Engine() *txn.Engine { return c.engine }

// Lock returns the session-lock Manager.
func (c *Core) Lock() *lock.Manager { return c.lock }

// Accept waits for the WM process's control connection. Only one may
// be bound at a time (§6: a single window_manager_v1 client).
func (c *Core) Accept() (*transport.Conn, error) {
	conn, err := c.listener.Accept()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// releaseConn closes the bound connection (if any) and frees the
// listener to accept a new one, called whenever Run returns and from
// Close.
func (c *Core) releaseConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.listener.Release()
}

// Run is the cooperative single-threaded event loop described in
// spec.md §5: whenever the bridge's windowing-dirty flag is set and
// no transaction is already in flight, it drives one manage/render/
// commit cycle, then asserts I-L1 before continuing. It returns once
// ctx is cancelled, a transaction sequence fails, or a fatal invariant
// violation is detected (§7: "only an invariant violation ... halts
// the process"). The loop does not watch the accepted connection, so
// a WM process that disconnects does not by itself end Run.
//
// Run blocks until a WM client connects; callers that want to do
// other setup first should call Accept directly instead.
func (c *Core) Run(ctx context.Context) error {
	if _, err := c.Accept(); err != nil {
		return fmt.Errorf("wmcore: run: accept: %w", err)
	}
	defer c.releaseConn()

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.engine.RunSequence(ctx); err != nil {
				return fmt.Errorf("wmcore: run: transaction: %w", err)
			}
			if err := c.lock.CheckInvariant(); err != nil {
				slog.Error("wmcore: fatal invariant violation, halting", "err", err)
				return err
			}
		}
	}
}

// Running reports whether Run's loop is currently active.
func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Close tears down every owned resource: the listener socket, the
// swapchain device, and the bound connection if any.
func (c *Core) Close() error {
	c.releaseConn()
	if c.swapchain != nil {
		c.swapchain.Destroy()
	}
	return c.listener.Close()
}
