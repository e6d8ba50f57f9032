package northbound

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dantte-lp/ribd/internal/config"
)

// telemetryVersion is the protocol version string spec.md section 6
// fixes for the telemetry surface's Capabilities reply.
const telemetryVersion = "0.8.1"

// TelemetryEncoding enumerates the telemetry surface's own encoding
// set (spec.md section 6: "supported encodings {PROTO, JSON-IETF}"),
// kept distinct from the configuration RPC surface's Encoding since
// the two lists differ.
type TelemetryEncoding int

const (
	TelemetryPROTO TelemetryEncoding = iota
	TelemetryJSONIETF
)

// Notification is one Get reply element (spec.md section 6: "Get(type,
// path[], encoding) -> notifications, each with a Unix-seconds
// timestamp").
type Notification struct {
	Path          string
	Value         []byte
	TimestampUnix int64
}

// SetRequest is the telemetry Set surface's input (spec.md section 6):
// a gNMI-shaped prefix + delete/replace/update triplet.
type SetRequest struct {
	Prefix  string
	Delete  []string
	Replace []SetUpdate
	Update  []SetUpdate
}

// SetUpdate is one path/value pair in a SetRequest.
type SetUpdate struct {
	Path  string
	Value any
}

// Telemetry implements spec.md section 6's streaming telemetry
// surface's Get/Set in-process, against the same Dispatcher a
// configuration frontend would use -- Set commits through the
// identical two-phase-commit path Commit does, just assembled from a
// gNMI-style prefix+delete+replace+update request instead of a whole
// tree.
type Telemetry struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewTelemetry constructs a Telemetry surface bound to dispatcher.
func NewTelemetry(dispatcher *Dispatcher, logger *slog.Logger) *Telemetry {
	return &Telemetry{
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "northbound.telemetry")),
	}
}

// Capabilities returns the telemetry surface's fixed capability set.
func (t *Telemetry) Capabilities(ctx context.Context) Capabilities {
	return Capabilities{
		Version: telemetryVersion,
		Modules: t.dispatcher.caps.Modules,
	}
}

// Get reads each requested path and returns one Notification per path,
// timestamped at call time (spec.md section 6).
func (t *Telemetry) Get(ctx context.Context, paths []string, enc TelemetryEncoding) ([]Notification, error) {
	now := time.Now().Unix()
	out := make([]Notification, 0, len(paths))

	for _, p := range paths {
		val, err := t.dispatcher.Get(ctx, DataAll, p, EncodingJSON)
		if err != nil {
			return nil, fmt.Errorf("telemetry get %q: %w", p, err)
		}
		out = append(out, Notification{Path: p, Value: val, TimestampUnix: now})
	}
	return out, nil
}

// Set constructs a candidate tree from the running configuration (or
// fresh, if req carries a Replace) and applies req's deletions and
// updates to it, then commits the candidate with Replace semantics
// (spec.md section 6: "constructs a candidate tree... starting from
// running unless a replace is present... commits with Replace
// semantics").
func (t *Telemetry) Set(ctx context.Context, req SetRequest) (string, error) {
	t.dispatcher.mu.Lock()
	base := t.dispatcher.running
	t.dispatcher.mu.Unlock()

	candidate := config.NewTree()
	if len(req.Replace) == 0 {
		for path, n := range base.Nodes {
			cp := *n
			candidate.Nodes[path] = &cp
		}
	}

	for _, del := range req.Delete {
		delete(candidate.Nodes, prefixed(req.Prefix, del))
	}
	for _, upd := range append(append([]SetUpdate{}, req.Replace...), req.Update...) {
		path := prefixed(req.Prefix, upd.Path)
		candidate.Put("", &config.Node{Path: path, Kind: config.KindLeaf, Value: upd.Value})
	}

	return t.dispatcher.Commit(ctx, OpReplace, candidate, 0)
}

func prefixed(prefix, path string) string {
	if prefix == "" {
		return path
	}
	return prefix + "/" + path
}
