// Package northbound implements the in-process shapes of the two
// external request/response surfaces named in spec.md section 6 -- the
// configuration RPC surface (Capabilities/Get/Commit/Execute/
// ListTransactions/GetTransaction) and the telemetry surface
// (Capabilities/Get/Set) -- plus the southbound broadcast bus every
// instance subscribes to.
//
// spec.md section 1 treats the wire transport for both surfaces as an
// external collaborator ("one request/response RPC frontend, one
// streaming telemetry frontend... treated as opaque clients of the
// instance harness"); this package stops at the in-process boundary
// those frontends would sit behind. There is no gRPC/Connect/LYB
// encoding here, only the Go types and the two-phase-commit dispatch
// those frontends would call into.
package northbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dantte-lp/ribd/internal/config"
)

// DataType selects which half of the data tree a Get request reads
// (spec.md section 6).
type DataType int

const (
	DataAll DataType = iota
	DataConfiguration
	DataState
)

// Encoding enumerates the wire encodings the (external) frontend would
// negotiate. Carried here only as a value the in-process dispatcher
// threads through unchanged -- it has no decoding effect in this
// package.
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingXML
	EncodingLYB
)

// CommitOperation enumerates spec.md section 6's three commit kinds.
type CommitOperation int

const (
	OpMerge CommitOperation = iota
	OpReplace
	OpChange
)

// Module describes one supported schema module, as returned by
// Capabilities (spec.md section 6).
type Module struct {
	Name         string
	Organization string
	Revision     string
}

// Capabilities is the reply to a Capabilities() call.
type Capabilities struct {
	Version    string
	Modules    []Module
	Encodings  []Encoding
}

// Error kinds mapped from internal failures per spec.md section 6's
// "Error mapping" table.
var (
	// ErrArgument maps an invalid path, invalid data, or unknown
	// transaction id.
	ErrArgument = errors.New("northbound: invalid argument")
	// ErrResourceExhausted maps a transaction preparation failure.
	ErrResourceExhausted = errors.New("northbound: resource exhausted")
	// ErrInternal maps any other internal fault.
	ErrInternal = errors.New("northbound: internal error")
)

// mapCommitError classifies a config.Committer failure per spec.md
// section 6's error-mapping table: a prepare failure is resource
// exhaustion, everything else from the commit engine is internal.
func mapCommitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, config.ErrPrepareFailed) {
		return fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

// Transaction records one committed configuration generation, returned
// by ListTransactions/GetTransaction (spec.md section 6).
type Transaction struct {
	ID        string
	Timestamp time.Time
	Tree      *config.Tree
}

// Provider is the in-process surface an (external) northbound frontend
// would call into. Capabilities/Get/Commit/Execute/ListTransactions/
// GetTransaction mirror spec.md section 6's RPC surface one for one.
type Provider interface {
	Capabilities(ctx context.Context) (Capabilities, error)
	Get(ctx context.Context, typ DataType, path string, enc Encoding) ([]byte, error)
	Commit(ctx context.Context, op CommitOperation, next *config.Tree, confirmedTimeout time.Duration) (string, error)
	Execute(ctx context.Context, rpcData []byte, enc Encoding) ([]byte, error)
	ListTransactions(ctx context.Context) ([]Transaction, error)
	GetTransaction(ctx context.Context, id string, enc Encoding) (*config.Tree, error)
}

// ExecuteFunc services an Execute (RPC) call against the running
// configuration. Registered per instance by the protocol package that
// knows how to interpret rpcData; nil means "no RPCs supported".
type ExecuteFunc func(ctx context.Context, running *config.Tree, rpcData []byte) ([]byte, error)

// PathSegmentsFunc resolves a data path string into the ancestor
// Segment chain internal/config needs for list-entry handle
// resolution (spec.md section 4.3). Supplied by the caller because the
// schema itself is out of scope (spec.md section 1).
type PathSegmentsFunc func(path string) []config.Segment

// Dispatcher is the in-process Provider implementation: it keeps the
// running configuration tree and a transaction log in memory and
// drives one config.Committer per commit (spec.md section 4.3's
// six-step protocol), exactly the shape a wire RPC frontend would
// delegate to.
type Dispatcher struct {
	mu           sync.Mutex
	running      *config.Tree
	committer    *config.Committer
	pathSegments PathSegmentsFunc
	execute      ExecuteFunc
	caps         Capabilities
	logger       *slog.Logger

	transactions []Transaction
}

// NewDispatcher constructs a Dispatcher. running is the initial
// configuration tree (config.NewTree() for an empty instance).
func NewDispatcher(
	caps Capabilities,
	committer *config.Committer,
	pathSegments PathSegmentsFunc,
	execute ExecuteFunc,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		running:      config.NewTree(),
		committer:    committer,
		pathSegments: pathSegments,
		execute:      execute,
		caps:         caps,
		logger:       logger.With(slog.String("component", "northbound.dispatcher")),
	}
}

// Capabilities returns the dispatcher's fixed capability set.
func (d *Dispatcher) Capabilities(ctx context.Context) (Capabilities, error) {
	return d.caps, nil
}

// Get returns the serialized running tree. The schema/encoding itself
// is out of scope (spec.md section 1); this returns a deterministic
// debug rendering good enough for tests and logging, not a real
// JSON/XML/LYB encoder.
func (d *Dispatcher) Get(ctx context.Context, typ DataType, path string, enc Encoding) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, ok := d.running.Nodes[path]
	if path != "" && !ok {
		return nil, fmt.Errorf("get %q: %w", path, ErrArgument)
	}
	if path == "" {
		return []byte(fmt.Sprintf("tree(%d nodes)", len(d.running.Nodes))), nil
	}
	return []byte(fmt.Sprintf("%s=%v", node.Path, node.Value)), nil
}

// Commit applies next against the running tree using the two-phase
// commit protocol and records a new Transaction on success (spec.md
// section 6: "Commit(operation, config, confirmed_timeout) ->
// transaction id"). confirmedTimeout is accepted but not scheduled:
// the rollback-on-timeout behaviour belongs to the (external)
// northbound frontend that owns wall-clock scheduling, not this
// in-process dispatcher.
func (d *Dispatcher) Commit(ctx context.Context, op CommitOperation, next *config.Tree, confirmedTimeout time.Duration) (string, error) {
	if next == nil {
		return "", fmt.Errorf("commit: nil tree: %w", ErrArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.running
	if err := d.committer.Commit(ctx, prev, next, d.pathSegments); err != nil {
		return "", mapCommitError(err)
	}

	d.running = next
	txn := Transaction{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Tree:      next,
	}
	d.transactions = append(d.transactions, txn)

	d.logger.Info("commit applied",
		slog.String("txn_id", txn.ID),
		slog.Int("op", int(op)),
		slog.Int("nodes", len(next.Nodes)),
	)

	return txn.ID, nil
}

// Execute runs the registered RPC handler against the running
// configuration (spec.md section 6: "Execute(rpc-data, encoding) ->
// rpc output data").
func (d *Dispatcher) Execute(ctx context.Context, rpcData []byte, enc Encoding) ([]byte, error) {
	if d.execute == nil {
		return nil, fmt.Errorf("execute: no RPC handler registered: %w", ErrArgument)
	}

	d.mu.Lock()
	running := d.running
	d.mu.Unlock()

	out, err := d.execute(ctx, running, rpcData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return out, nil
}

// ListTransactions returns every committed transaction in commit
// order (spec.md section 6).
func (d *Dispatcher) ListTransactions(ctx context.Context) ([]Transaction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Transaction, len(d.transactions))
	copy(out, d.transactions)
	return out, nil
}

// GetTransaction returns the committed tree for id, or ErrArgument if
// id is unknown (spec.md section 6's error mapping).
func (d *Dispatcher) GetTransaction(ctx context.Context, id string, enc Encoding) (*config.Tree, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, txn := range d.transactions {
		if txn.ID == id {
			return txn.Tree, nil
		}
	}
	return nil, fmt.Errorf("get transaction %q: %w", id, ErrArgument)
}

var _ Provider = (*Dispatcher)(nil)
