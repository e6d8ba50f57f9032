package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrUnknownInstance indicates no harness is registered under the given
// name.
var ErrUnknownInstance = errors.New("instance: unknown instance name")

// ErrAlreadyRegistered indicates an instance name is already in use.
var ErrAlreadyRegistered = errors.New("instance: name already registered")

// Manager runs one supervised goroutine per live instance inside an
// errgroup.WithContext, so that a harness whose Run returns an error
// cancels the context of every other instance and the error is returned
// from Manager.Run; nothing is restarted here (SPEC_FULL.md section
// B: "used... inside internal/instance.Manager to run one supervised
// goroutine per live instance and fail fast if one's top-level task
// dies unexpectedly").
type Manager struct {
	mu        sync.Mutex
	instances map[string]*registration
	logger    *slog.Logger
}

type registration struct {
	harness *Harness
	cancel  context.CancelFunc
}

// NewManager constructs an empty instance Manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		instances: make(map[string]*registration),
		logger:    logger.With(slog.String("component", "instance.manager")),
	}
}

// Register adds h to the set of instances the Manager will run when Run
// is called. Register must be called before Run; instances created
// after Run has started are out of scope for this Manager invocation
// (a northbound "create instance" commit restarts the manager group at
// a higher layer, matching the teacher's static-at-startup wiring with
// restart-on-config-change left to cmd/ribd).
func (m *Manager) Register(h *Harness) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[h.Name]; exists {
		return fmt.Errorf("register %q: %w", h.Name, ErrAlreadyRegistered)
	}

	m.instances[h.Name] = &registration{harness: h}
	return nil
}

// Run starts every registered harness under an errgroup.WithContext
// derived from ctx and blocks until all harnesses have exited or one
// returns an error, in which case ctx is cancelled for the rest
// (errgroup's standard fail-fast semantics).
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	m.mu.Lock()
	for name, reg := range m.instances {
		instCtx, cancel := context.WithCancel(gctx)
		reg.cancel = cancel

		h := reg.harness
		g.Go(func() error {
			if err := h.Run(instCtx); err != nil {
				m.logger.Error("instance harness exited with error",
					slog.String("instance", name),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("instance %q: %w", name, err)
			}
			m.logger.Info("instance harness exited", slog.String("instance", name))
			return nil
		})
	}
	m.mu.Unlock()

	return g.Wait()
}

// Unconfigure sends a NorthboundUnconfigure request to the named
// instance, triggering the event loop's shutdown path (spec.md section
// 4.2, step 4: "the northbound 'delete instance' request produces the
// drop"). It does not wait for the instance to finish shutting down;
// callers that need that should watch Manager.Run's return.
func (m *Manager) Unconfigure(ctx context.Context, name string) error {
	m.mu.Lock()
	reg, ok := m.instances[name]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("unconfigure %q: %w", name, ErrUnknownInstance)
	}

	reply := make(chan NorthboundReply, 1)
	req := NorthboundRequest{Kind: NorthboundUnconfigure, Reply: reply}

	select {
	case reg.harness.channels.NorthboundIn <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case r := <-reply:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Harness returns the registered harness for name, if any.
func (m *Manager) Harness(name string) (*Harness, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.instances[name]
	if !ok {
		return nil, false
	}
	return reg.harness, true
}
