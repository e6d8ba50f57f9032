package config

import (
	"context"
	"fmt"
	"log/slog"
)

// ProcessEventFunc is the protocol's process_event hook, invoked once
// per queued event in FIFO order after the running configuration has
// been fully updated (spec.md section 4.3, step 6).
type ProcessEventFunc func(ctx context.Context, event any) error

// Committer runs the two-phase commit protocol described in spec.md
// section 4.3 against a Registry. One Committer per protocol instance.
type Committer struct {
	reg          *Registry
	logger       *slog.Logger
	processEvent ProcessEventFunc
}

// NewCommitter constructs a Committer bound to reg. processEvent may be
// nil if the protocol has no events to process.
func NewCommitter(reg *Registry, logger *slog.Logger, processEvent ProcessEventFunc) *Committer {
	return &Committer{
		reg:          reg,
		logger:       logger.With(slog.String("component", "config.committer")),
		processEvent: processEvent,
	}
}

// preparedChange records what a successful Prepare call produced, so a
// later abort can undo exactly this set in reverse order.
type preparedChange struct {
	change Change
	handle Handle
	slot   *ResourceSlot
}

// Commit applies the diff between prev and next to the running
// configuration, following spec.md section 4.3's six-step protocol.
// Validation reads each node's value from next. pathSegments resolves a
// path string to its Segment chain for ancestor handle resolution.
func (c *Committer) Commit(ctx context.Context, prev, next *Tree, pathSegments func(path string) []Segment) error {
	if err := c.validate(ctx, next); err != nil {
		return fmt.Errorf("commit: validate: %w", err)
	}

	changes := ExtractChanges(c.reg, prev, next)

	local, relayed := c.partition(changes)

	queue := &EventQueue{}

	prepared, err := c.prepare(ctx, local, pathSegments, queue)
	if err != nil {
		c.abort(ctx, prepared)
		return fmt.Errorf("commit: prepare: %w", err)
	}

	c.apply(ctx, prepared, queue)

	if err := c.relay(ctx, relayed); err != nil {
		// The local apply has already happened and cannot be undone
		// (Apply is infallible and has no abort path); a relay
		// failure after local apply is reported so the caller can
		// alert on a partially-applied commit, per spec.md section
		// 4.3's note that relay runs after local prepare/apply in the
		// same phase sequence.
		return fmt.Errorf("commit: relay: %w", err)
	}

	return c.processEvents(ctx, queue)
}

// validate walks every node in next and invokes its registered
// validation callback, if any. The first failure aborts the commit
// with ErrValidationFailed; the running configuration is left
// untouched since nothing has been prepared yet.
func (c *Committer) validate(ctx context.Context, next *Tree) error {
	for path, node := range next.Nodes {
		fn, ok := c.reg.validator(path)
		if !ok {
			continue
		}
		if err := fn(ctx, path, node.Value); err != nil {
			return errAtPath(ErrValidationFailed, path)
		}
	}
	return nil
}

// partition splits changes into those this Committer handles directly
// and those a registered relay hands off to a child provider (spec.md
// section 4.3, step 2).
func (c *Committer) partition(changes []Change) (local []Change, relayed map[string][]Change) {
	relayed = make(map[string][]Change)

	for _, ch := range changes {
		fn, ok := c.reg.relay(ch.Path)
		if !ok {
			local = append(local, ch)
			continue
		}

		subChanges, _, handled := fn(ch)
		if !handled {
			local = append(local, ch)
			continue
		}
		relayed[ch.Path] = append(relayed[ch.Path], subChanges...)
	}

	return local, relayed
}

// prepare invokes each local change's Prepare callback in order,
// accumulating successfully-prepared changes so they can be aborted in
// reverse order on failure (spec.md section 4.3, step 3).
func (c *Committer) prepare(ctx context.Context, changes []Change, pathSegments func(path string) []Segment, queue *EventQueue) ([]preparedChange, error) {
	var done []preparedChange

	for _, ch := range changes {
		cbs, ok := c.reg.lookup(ch.Key)
		if !ok || cbs.Prepare == nil {
			continue
		}

		handle, err := ResolveHandle(ctx, c.reg, pathSegments(ch.Path), ch.Key.Op != OpCreate)
		if err != nil {
			return done, fmt.Errorf("%s: %w", ch.Path, err)
		}

		slot := NewResourceSlot()
		if err := cbs.Prepare(ctx, handle, ch.Path, queue, slot); err != nil {
			return done, errAtPath(ErrPrepareFailed, ch.Path)
		}

		done = append(done, preparedChange{change: ch, handle: handle, slot: slot})
	}

	// queue now holds every event Prepare emitted; Commit does not
	// drain it until apply has run for every change, satisfying the
	// invariant that Prepare-phase events aren't processed early.
	return done, nil
}

// abort invokes Abort for each prepared change in reverse order
// (spec.md section 4.3, step 3).
func (c *Committer) abort(ctx context.Context, prepared []preparedChange) {
	for i := len(prepared) - 1; i >= 0; i-- {
		pc := prepared[i]
		cbs, ok := c.reg.lookup(pc.change.Key)
		if !ok || cbs.Abort == nil {
			continue
		}
		cbs.Abort(ctx, pc.handle, pc.change.Path, pc.slot)
	}
}

// apply invokes Apply for each prepared change in order, in the same
// EventQueue so all Apply-phase events are processed together after
// the running configuration is fully updated (spec.md section 4.3,
// step 4 and step 6).
func (c *Committer) apply(ctx context.Context, prepared []preparedChange, queue *EventQueue) {
	for _, pc := range prepared {
		cbs, ok := c.reg.lookup(pc.change.Key)
		if !ok || cbs.Apply == nil {
			continue
		}
		cbs.Apply(ctx, pc.handle, pc.change.Path, pc.slot, queue)
	}
}

// relay sends each relayed sub-group to its child provider as a new
// commit request, awaiting responses (spec.md section 4.3, step 5).
func (c *Committer) relay(ctx context.Context, relayed map[string][]Change) error {
	for path, subChanges := range relayed {
		fn, ok := c.reg.relay(path)
		if !ok {
			continue
		}

		// The relay closure was already consulted once per change in
		// partition; re-invoke it here only to obtain the child
		// committer for this group (all subChanges for a given path
		// share the same child).
		_, child, handled := fn(Change{Path: path})
		if !handled || child == nil {
			continue
		}

		if err := child.Commit(ctx, PhasePrepare, subChanges); err != nil {
			return errAtPath(ErrRelayFailed, path)
		}
		if err := child.Commit(ctx, PhaseApply, subChanges); err != nil {
			return errAtPath(ErrRelayFailed, path)
		}
	}
	return nil
}

// processEvents drains queue and invokes the protocol's process_event
// hook for each event in FIFO order (spec.md section 4.3, step 6).
func (c *Committer) processEvents(ctx context.Context, queue *EventQueue) error {
	if c.processEvent == nil {
		return nil
	}

	for _, event := range queue.Drain() {
		if err := c.processEvent(ctx, event); err != nil {
			c.logger.Warn("process_event hook failed", slog.String("error", err.Error()))
		}
	}

	return nil
}
