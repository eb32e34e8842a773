// Package cluster provides the in-process compute cloud the workflows run
// on: node membership, the key/value store holding frames, models and jobs,
// and a small REST status surface.
package cluster

import (
	"context"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mannetroll/analysis/pkg/errors"
	"github.com/mannetroll/analysis/pkg/log"
)

// State is the lifecycle tag of a Cloud.
type State int

const (
	StateNew State = iota
	StateRunning
	StateReady
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Node is a member of the cloud.
type Node struct {
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// Options configures a Cloud. Zero values are usable.
type Options struct {
	// Name of the cloud; a random one is generated when empty.
	Name string
	// Logger defaults to the "cluster" component logger.
	Logger log.Logger
}

// Cloud is an explicit cluster state object. Start is idempotent, so calling
// it from several bootstrap paths initialises the cloud once.
type Cloud struct {
	mu              sync.Mutex
	state           State
	name            string
	nodes           []Node
	joined          chan struct{} // closed and replaced on every Join
	initialKeyCount int
	restReady       bool
	restAddr        string
	server          *http.Server

	store  *Store
	logger log.Logger
}

// New returns a cloud in StateNew with an empty store.
func New(opts Options) *Cloud {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("cluster")
	}
	return &Cloud{
		name:   opts.Name,
		joined: make(chan struct{}),
		store:  NewStore(),
		logger: logger,
	}
}

// Start brings the cloud up and registers the local node. Calling Start on
// a cloud that is already running is a no-op.
func (c *Cloud) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	c.mu.Lock()
	switch c.state {
	case StateShutdown:
		c.mu.Unlock()
		return errors.WithStack(errors.ErrCloudShutdown)
	case StateRunning, StateReady:
		c.mu.Unlock()
		return nil
	}
	if c.name == "" {
		c.name = "analysis_" + uuid.NewString()[:8]
	}
	c.state = StateRunning
	name := c.name
	c.mu.Unlock()

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	c.Join(Node{Name: host})

	c.logger.Info("Cloud started",
		log.OperationKey, log.OperationBootstrap,
		log.CloudNameKey, name,
	)
	return nil
}

// Join adds a node to the cloud and wakes WaitForCloudSize callers.
func (c *Cloud) Join(n Node) {
	if n.JoinedAt.IsZero() {
		n.JoinedAt = time.Now()
	}

	c.mu.Lock()
	if c.state == StateShutdown {
		c.mu.Unlock()
		return
	}
	c.nodes = append(c.nodes, n)
	close(c.joined)
	c.joined = make(chan struct{})
	size := len(c.nodes)
	c.mu.Unlock()

	c.logger.Debug("Node joined", "node", n.Name, log.CloudSizeKey, size)
}

// WaitForCloudSize blocks until at least n nodes have joined or timeout
// elapses. n is clamped to 1. On success the current store size is recorded
// as the initial key count. A timeout yields a *errors.CloudTimeoutError.
func (c *Cloud) WaitForCloudSize(ctx context.Context, n int, timeout time.Duration) error {
	if n < 1 {
		n = 1
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if c.state == StateShutdown {
			c.mu.Unlock()
			return errors.WithStack(errors.ErrCloudShutdown)
		}
		size := len(c.nodes)
		wake := c.joined
		if size >= n {
			c.initialKeyCount = c.store.Size()
			c.mu.Unlock()
			c.logger.Info("Cloud formed",
				log.CloudSizeKey, size,
				log.InitialKeyCount, c.InitialKeyCount(),
			)
			return nil
		}
		c.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			c.logger.Error("Timed out waiting for cloud size",
				log.CloudSizeKey, size,
				log.TimeoutMsKey, timeout.Milliseconds(),
				log.ErrorCodeKey, log.ErrorCloudTimeout,
			)
			return errors.NewCloudTimeoutError(n, c.Size(), timeout)
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		}
	}
}

// StartServingREST marks the REST surface ready. With a non-empty addr the
// status API is served on it in the background.
func (c *Cloud) StartServingREST(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateShutdown:
		return errors.WithStack(errors.ErrCloudShutdown)
	case c.state == StateNew:
		return errors.NewValueError("StartServingREST", "cloud is not started")
	case c.restReady:
		return nil
	}

	if addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.Wrapf(err, "listen on %s", addr)
		}
		c.restAddr = ln.Addr().String()
		c.server = &http.Server{Handler: c.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func(srv *http.Server) {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				c.logger.Error("REST server stopped", err, log.RESTAddrKey, ln.Addr().String())
			}
		}(c.server)
	}

	c.restReady = true
	c.state = StateReady
	c.logger.Info("REST API ready", log.RESTAddrKey, c.restAddr)
	return nil
}

// Shutdown stops the REST server, clears the store and returns code so the
// caller can exit with it. It is safe to call more than once.
func (c *Cloud) Shutdown(ctx context.Context, code int) int {
	c.mu.Lock()
	if c.state == StateShutdown {
		c.mu.Unlock()
		return code
	}
	srv := c.server
	c.server = nil
	c.state = StateShutdown
	c.restReady = false
	close(c.joined)
	c.joined = make(chan struct{})
	c.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			c.logger.Warn("REST server shutdown", "error", err)
		}
	}
	c.store.Clear()
	c.logger.Info("Cloud shut down", "exit_code", code)
	return code
}

// Store returns the cloud's key/value store.
func (c *Cloud) Store() *Store {
	return c.store
}

// Name returns the cloud name; empty before Start.
func (c *Cloud) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// State returns the current lifecycle state.
func (c *Cloud) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Size returns the number of joined nodes.
func (c *Cloud) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// Nodes returns a copy of the member list.
func (c *Cloud) Nodes() []Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Node(nil), c.nodes...)
}

// InitialKeyCount is the store size recorded when the cloud formed.
func (c *Cloud) InitialKeyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialKeyCount
}

// RESTAddr is the bound address of the status API, empty when not served.
func (c *Cloud) RESTAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restAddr
}

// RESTReady reports whether StartServingREST has completed.
func (c *Cloud) RESTReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restReady
}
