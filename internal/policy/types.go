// Package policy implements the policy data model and evaluator shared
// by the decision pipeline's import and export stages (spec.md section
// 3 "Policy data" and section 4.6's import-pipeline steps 2-4): named
// match sets, an ordered policy/statement/condition/action model, and a
// worker-pool evaluator that runs policy chains off the instance's
// single-threaded event loop.
package policy

import "github.com/dantte-lp/ribd/internal/addrfamily"

// RouteOrigin names where a route's information originated, used both
// as policy-match criteria and as a settable action value.
type RouteOrigin int

const (
	OriginIGP RouteOrigin = iota
	OriginEGP
	OriginIncomplete
)

// RouteType distinguishes the protocol-agnostic route classification
// spec.md section 3's match-route-type condition tests.
type RouteType int

const (
	RouteTypeInternal RouteType = iota
	RouteTypeExternal
	RouteTypeRedistributed
)

// RoutePolicyInfo is the per-prefix bundle the import pipeline hands to
// a policy worker alongside the prefix itself (spec.md section 4.6,
// step 2): "origin, attributes, route-type".
type RoutePolicyInfo struct {
	Origin      RouteOrigin
	RouteType   RouteType
	LocalPref   uint32
	MED         uint32
	ASPathLen   int
	Communities []uint32
	NextHop     addrfamily.Address
	Tag         uint32
	Metric      uint32
	Interface   string
	NeighborID  string
}

// -------------------------------------------------------------------------
// Match sets
// -------------------------------------------------------------------------

// PrefixSet is a named set of prefixes with an optional length range
// per entry (spec.md section 3: "Named sets (prefix ranges...)").
type PrefixSet struct {
	Name    string
	Entries []PrefixSetEntry
}

// PrefixSetEntry matches prefixes that are supernets/equal to Prefix
// with a mask length in [MinLen, MaxLen].
type PrefixSetEntry struct {
	Prefix addrfamily.Prefix
	MinLen int
	MaxLen int
}

// Matches reports whether p satisfies any entry in the set.
func (s PrefixSet) Matches(p addrfamily.Prefix) bool {
	for _, e := range s.Entries {
		if e.Prefix.Family() != p.Family() {
			continue
		}
		if !e.Prefix.SupernetOf(p) && !e.Prefix.Equal(p) {
			continue
		}
		if p.Len() < e.MinLen || p.Len() > e.MaxLen {
			continue
		}
		return true
	}
	return false
}

// NeighborSet is a named set of neighbor addresses.
type NeighborSet struct {
	Name      string
	Neighbors []addrfamily.Address
}

// Matches reports whether addr is a member of the set.
func (s NeighborSet) Matches(addr addrfamily.Address) bool {
	for _, n := range s.Neighbors {
		if n.Equal(addr) {
			return true
		}
	}
	return false
}

// TagSet is a named set of route tags.
type TagSet struct {
	Name string
	Tags []uint32
}

// Matches reports whether tag is a member of the set.
func (s TagSet) Matches(tag uint32) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CommunitySet is a named set of BGP community values.
type CommunitySet struct {
	Name       string
	Communities []uint32
}

// MatchesAny reports whether any of communities is a member of the set.
func (s CommunitySet) MatchesAny(communities []uint32) bool {
	for _, want := range s.Communities {
		for _, have := range communities {
			if want == have {
				return true
			}
		}
	}
	return false
}

// MatchSets bundles the named sets a policy's conditions reference,
// handed to the evaluator as a shared-immutable snapshot (spec.md
// section 3's ownership rule: "updates install a new snapshot").
type MatchSets struct {
	Prefix    map[string]PrefixSet
	Neighbor  map[string]NeighborSet
	Tag       map[string]TagSet
	Community map[string]CommunitySet
}

// NewMatchSets returns an empty MatchSets snapshot.
func NewMatchSets() *MatchSets {
	return &MatchSets{
		Prefix:    make(map[string]PrefixSet),
		Neighbor:  make(map[string]NeighborSet),
		Tag:       make(map[string]TagSet),
		Community: make(map[string]CommunitySet),
	}
}

// -------------------------------------------------------------------------
// Conditions
// -------------------------------------------------------------------------

// Condition is implemented by every condition kind spec.md section 3
// names: call-policy, source-protocol, match-interface,
// match-prefix-set, match-neighbor-set, match-tag-set,
// match-route-type, plus the protocol-specific attribute conditions.
type Condition interface {
	// Match reports whether info (for destination prefix p) satisfies
	// the condition, given the shared match-set snapshot.
	Match(sets *MatchSets, p addrfamily.Prefix, info RoutePolicyInfo) bool
}

// CallPolicyCondition delegates to a named sub-policy; Match returns
// true only if the sub-policy, evaluated independently, accepts the
// route.
type CallPolicyCondition struct {
	PolicyName string
	Resolve    func(name string) (*Policy, bool)
}

func (c CallPolicyCondition) Match(sets *MatchSets, p addrfamily.Prefix, info RoutePolicyInfo) bool {
	sub, ok := c.Resolve(c.PolicyName)
	if !ok {
		return false
	}
	verdict := Evaluate(sub, sets, p, info)
	return verdict.Action == ActionAccept
}

// SourceProtocolCondition matches on the protocol/route-type a route
// was learned from.
type SourceProtocolCondition struct {
	RouteType RouteType
}

func (c SourceProtocolCondition) Match(_ *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	return info.RouteType == c.RouteType
}

// MatchInterfaceCondition matches on the ingress interface name.
type MatchInterfaceCondition struct {
	Interface string
}

func (c MatchInterfaceCondition) Match(_ *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	return info.Interface == c.Interface
}

// MatchPrefixSetCondition matches the destination prefix against a
// named PrefixSet.
type MatchPrefixSetCondition struct {
	SetName string
}

func (c MatchPrefixSetCondition) Match(sets *MatchSets, p addrfamily.Prefix, _ RoutePolicyInfo) bool {
	set, ok := sets.Prefix[c.SetName]
	if !ok {
		return false
	}
	return set.Matches(p)
}

// MatchNeighborSetCondition matches the route's neighbor against a
// named NeighborSet.
type MatchNeighborSetCondition struct {
	SetName string
}

func (c MatchNeighborSetCondition) Match(sets *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	set, ok := sets.Neighbor[c.SetName]
	if !ok {
		return false
	}
	return set.Matches(info.NextHop)
}

// MatchTagSetCondition matches the route's tag against a named TagSet.
type MatchTagSetCondition struct {
	SetName string
}

func (c MatchTagSetCondition) Match(sets *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	set, ok := sets.Tag[c.SetName]
	if !ok {
		return false
	}
	return set.Matches(info.Tag)
}

// MatchRouteTypeCondition matches on route type directly (distinct
// from SourceProtocolCondition in intent: "was this redistributed"
// versus "which protocol produced it").
type MatchRouteTypeCondition struct {
	RouteType RouteType
}

func (c MatchRouteTypeCondition) Match(_ *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	return info.RouteType == c.RouteType
}

// LocalPreferenceCondition matches routes at or above a threshold.
type LocalPreferenceCondition struct {
	Min uint32
}

func (c LocalPreferenceCondition) Match(_ *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	return info.LocalPref >= c.Min
}

// MEDCondition matches routes at or below a threshold.
type MEDCondition struct {
	Max uint32
}

func (c MEDCondition) Match(_ *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	return info.MED <= c.Max
}

// OriginCondition matches on route origin.
type OriginCondition struct {
	Origin RouteOrigin
}

func (c OriginCondition) Match(_ *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	return info.Origin == c.Origin
}

// ASPathLengthCondition matches AS-path length against a maximum.
type ASPathLengthCondition struct {
	Max int
}

func (c ASPathLengthCondition) Match(_ *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	return info.ASPathLen <= c.Max
}

// CommunityMembershipCondition matches the route's communities against
// a named CommunitySet.
type CommunityMembershipCondition struct {
	SetName string
}

func (c CommunityMembershipCondition) Match(sets *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	set, ok := sets.Community[c.SetName]
	if !ok {
		return false
	}
	return set.MatchesAny(info.Communities)
}

// NextHopCondition matches the route's next-hop against a named
// NeighborSet (reusing the neighbor-address-set representation, as the
// two are the same shape).
type NextHopCondition struct {
	SetName string
}

func (c NextHopCondition) Match(sets *MatchSets, _ addrfamily.Prefix, info RoutePolicyInfo) bool {
	set, ok := sets.Neighbor[c.SetName]
	if !ok {
		return false
	}
	return set.Matches(info.NextHop)
}

// -------------------------------------------------------------------------
// Actions
// -------------------------------------------------------------------------

// MetricModKind names how SetMetricAction changes a metric.
type MetricModKind int

const (
	MetricSet MetricModKind = iota
	MetricAdd
	MetricSubtract
)

// Action is implemented by every action kind spec.md section 3 names.
// Apply mutates a copy of info and returns it; actions run in order
// within a statement and their effects compose.
type Action interface {
	Apply(info RoutePolicyInfo) RoutePolicyInfo
}

// AcceptAction and RejectAction are terminal verdicts rather than
// Action values proper — see Statement.Actions and Evaluate, which
// special-case them to short-circuit the chain.
type terminalKind int

const (
	terminalNone terminalKind = iota
	terminalAccept
	terminalReject
)

// SetMetricAction modifies the route's metric.
type SetMetricAction struct {
	Kind MetricModKind
	By   uint32
}

func (a SetMetricAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	switch a.Kind {
	case MetricSet:
		info.Metric = a.By
	case MetricAdd:
		info.Metric += a.By
	case MetricSubtract:
		if a.By > info.Metric {
			info.Metric = 0
		} else {
			info.Metric -= a.By
		}
	}
	return info
}

// SetMetricTypeAction changes the route's route-type classification.
type SetMetricTypeAction struct {
	RouteType RouteType
}

func (a SetMetricTypeAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	info.RouteType = a.RouteType
	return info
}

// SetRouteLevelAction and SetRoutePreferenceAction are link-state/
// distance-vector-specific actions; they store their target in Tag-
// adjacent fields carried by the protocol instantiation rather than by
// this shared core (the shared RoutePolicyInfo carries only the fields
// every protocol needs; protocol packages extend evaluation with their
// own Action implementations that close over protocol-specific state).
type SetRouteLevelAction struct {
	Level int
}

func (a SetRouteLevelAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	// Route level has no shared-core field; protocol instantiations
	// that need it (IS-IS) wrap RoutePolicyInfo with their own struct
	// and provide their own Action implementing this interface over
	// that wider type instead of this one.
	return info
}

type SetRoutePreferenceAction struct {
	Preference uint32
}

func (a SetRoutePreferenceAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	return info
}

// SetTagAction sets the route's tag.
type SetTagAction struct {
	Tag uint32
}

func (a SetTagAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	info.Tag = a.Tag
	return info
}

// SetRouteOriginAction sets the route's origin (BGP-specific action).
type SetRouteOriginAction struct {
	Origin RouteOrigin
}

func (a SetRouteOriginAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	info.Origin = a.Origin
	return info
}

// SetLocalPrefAction sets the route's local preference (BGP-specific).
type SetLocalPrefAction struct {
	LocalPref uint32
}

func (a SetLocalPrefAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	info.LocalPref = a.LocalPref
	return info
}

// SetNexthopAction rewrites the route's next-hop (BGP-specific).
type SetNexthopAction struct {
	NextHop addrfamily.Address
}

func (a SetNexthopAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	info.NextHop = a.NextHop
	return info
}

// SetMEDAction sets the route's MED (BGP-specific).
type SetMEDAction struct {
	MED uint32
}

func (a SetMEDAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	info.MED = a.MED
	return info
}

// ASPathPrependAction prepends the local AS count times to the
// AS-path (BGP-specific); the shared core only tracks AS-path length,
// so prepending increases it by count.
type ASPathPrependAction struct {
	Count int
}

func (a ASPathPrependAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	info.ASPathLen += a.Count
	return info
}

// CommunityActionKind names how CommunityAction changes the community
// list.
type CommunityActionKind int

const (
	CommunityAdd CommunityActionKind = iota
	CommunityRemove
	CommunityReplace
)

// CommunityAction adds, removes, or replaces the route's communities
// (BGP-specific).
type CommunityAction struct {
	Kind   CommunityActionKind
	Values []uint32
}

func (a CommunityAction) Apply(info RoutePolicyInfo) RoutePolicyInfo {
	switch a.Kind {
	case CommunityAdd:
		info.Communities = append(append([]uint32{}, info.Communities...), a.Values...)
	case CommunityRemove:
		kept := info.Communities[:0]
		remove := make(map[uint32]bool, len(a.Values))
		for _, v := range a.Values {
			remove[v] = true
		}
		for _, c := range info.Communities {
			if !remove[c] {
				kept = append(kept, c)
			}
		}
		info.Communities = kept
	case CommunityReplace:
		info.Communities = append([]uint32{}, a.Values...)
	}
	return info
}

// -------------------------------------------------------------------------
// Statement / Policy
// -------------------------------------------------------------------------

// VerdictAction is the terminal result of evaluating a statement or
// policy chain.
type VerdictAction int

const (
	ActionAccept VerdictAction = iota
	ActionReject
)

// Verdict is what Evaluate returns: the terminal accept/reject
// decision plus the (possibly action-modified) route info.
type Verdict struct {
	Action VerdictAction
	Info   RoutePolicyInfo
}

// DefaultPolicyKind names the fallback verdict for routes no statement
// matched (spec.md section 3: "a default-policy decides routes that
// match no statement").
type DefaultPolicyKind int

const (
	DefaultAcceptRoute DefaultPolicyKind = iota
	DefaultRejectRoute
)

// Statement is one named rule within a Policy: a set of conditions
// (all must match) and a set of actions that run in order
// (spec.md section 3).
type Statement struct {
	Name       string
	Conditions []Condition
	Actions    []Action
	// Terminal, when set, ends evaluation of the whole policy chain
	// with this verdict once the statement's conditions match — this
	// is how "accept"/"reject" actions are expressed ("a reject
	// action short-circuits").
	Terminal terminalKind
}

// Accept marks the statement as a terminal accept.
func (s Statement) withTerminal(t terminalKind) Statement {
	s.Terminal = t
	return s
}

// NewAcceptStatement returns a Statement that, once matched, accepts
// the route immediately (after running any actions).
func NewAcceptStatement(name string, conditions []Condition, actions []Action) Statement {
	return Statement{Name: name, Conditions: conditions, Actions: actions}.withTerminal(terminalAccept)
}

// NewRejectStatement returns a Statement that, once matched, rejects
// the route immediately.
func NewRejectStatement(name string, conditions []Condition) Statement {
	return Statement{Name: name, Conditions: conditions}.withTerminal(terminalReject)
}

// NewModifyStatement returns a non-terminal Statement: its actions run
// when matched, but evaluation continues to the next statement.
func NewModifyStatement(name string, conditions []Condition, actions []Action) Statement {
	return Statement{Name: name, Conditions: conditions, Actions: actions}
}

// Policy is an ordered mapping from statement names to statements
// (spec.md section 3); order is significant so it is kept as a slice,
// not a map.
type Policy struct {
	Name       string
	Statements []Statement
	Default    DefaultPolicyKind
}
