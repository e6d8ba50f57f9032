package linkstate

import "sort"

// Graph is a minimal hop-count topology view over the LSDB, just
// enough to run the shortest-path and first/second-hop computations
// MANET flooding reduction needs (spec.md section 4.4). Protocol
// instantiations build one from their own link-state records; the
// core does not know how to parse TLVs, only how to walk an adjacency
// list.
type Graph struct {
	adjacency map[string]map[string]struct{}
}

// NewGraph constructs an empty Graph.
func NewGraph() *Graph {
	return &Graph{adjacency: make(map[string]map[string]struct{})}
}

// AddEdge records an undirected adjacency between a and b.
func (g *Graph) AddEdge(a, b string) {
	g.ensure(a)
	g.ensure(b)
	g.adjacency[a][b] = struct{}{}
	g.adjacency[b][a] = struct{}{}
}

func (g *Graph) ensure(node string) {
	if _, ok := g.adjacency[node]; !ok {
		g.adjacency[node] = make(map[string]struct{})
	}
}

// Neighbors returns node's directly adjacent nodes in a stable
// (sorted) order.
func (g *Graph) Neighbors(node string) []string {
	nbrs := g.adjacency[node]
	out := make([]string, 0, len(nbrs))
	for n := range nbrs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// hopCounts runs a breadth-first search from root, returning each
// reachable node's hop distance.
func (g *Graph) hopCounts(root string) map[string]int {
	dist := map[string]int{root: 0}
	queue := []string{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, nbr := range g.Neighbors(n) {
			if _, seen := dist[nbr]; seen {
				continue
			}
			dist[nbr] = dist[n] + 1
			queue = append(queue, nbr)
		}
	}
	return dist
}

// FirstHops returns root's Remote Neighbor List: the nodes at hop
// distance 1 (spec.md section 4.4: "RNL ... = its first hops").
func (g *Graph) FirstHops(root string) []string {
	var out []string
	for node, d := range g.hopCounts(root) {
		if d == 1 {
			out = append(out, node)
		}
	}
	sort.Strings(out)
	return out
}

// SecondHops returns root's nodes at hop distance 2.
func (g *Graph) SecondHops(root string) []string {
	var out []string
	for node, d := range g.hopCounts(root) {
		if d == 2 {
			out = append(out, node)
		}
	}
	sort.Strings(out)
	return out
}

// ShortestPath returns the node sequence from start to end inclusive,
// or nil if end is unreachable.
func (g *Graph) ShortestPath(start, end string) []string {
	if start == end {
		return []string{start}
	}
	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, nbr := range g.Neighbors(n) {
			if _, seen := parent[nbr]; seen {
				continue
			}
			parent[nbr] = n
			if nbr == end {
				return reconstructPath(parent, start, end)
			}
			queue = append(queue, nbr)
		}
	}
	return nil
}

func reconstructPath(parent map[string]string, start, end string) []string {
	var path []string
	for n := end; n != start; n = parent[n] {
		path = append([]string{n}, path...)
	}
	return append([]string{start}, path...)
}

// RNLMember is one entry in a neighbor's Remote Neighbor List, tagged
// with whether it advertises "Modified MANET" flooding-reduction
// capability (spec.md section 4.4).
type RNLMember struct {
	ID            string
	ModifiedMANET bool
}

// ComputeRNL builds neighbor T's Remote Neighbor List from the graph,
// tagging each member's capability via the caller-supplied lookup.
func ComputeRNL(g *Graph, t string, modifiedMANET func(node string) bool) []RNLMember {
	firstHops := g.FirstHops(t)
	rnl := make([]RNLMember, len(firstHops))
	for i, id := range firstHops {
		rnl[i] = RNLMember{ID: id, ModifiedMANET: modifiedMANET(id)}
	}
	return rnl
}

// ComputeTHL builds the Two-Hop List for a record originated at
// originator being considered for reflood toward neighbor t: t's
// second hops minus the nodes on the shortest path from t to
// originator (spec.md section 4.4).
func ComputeTHL(g *Graph, t, originator string) map[string]struct{} {
	thl := make(map[string]struct{})
	for _, n := range g.SecondHops(t) {
		thl[n] = struct{}{}
	}
	for _, n := range g.ShortestPath(t, originator) {
		delete(thl, n)
	}
	return thl
}

// ReloodDecision is the result of running the MANET flooding-reduction
// algorithm for one (originator, fragment, neighbor) triple from the
// perspective of localSystem.
type ReloodDecision struct {
	// Reflood lists the THL nodes still uncovered by the time
	// localSystem's turn in the RNL iteration arrives; localSystem
	// must flood toward t if this is non-empty.
	Reflood []string
	// LocalIsMember reports whether localSystem is itself a member of
	// t's RNL; if false, the algorithm does not apply to this node for
	// this neighbor and the caller should fall back to unconditional
	// flooding.
	LocalIsMember bool
}

// DecideReflood runs the algorithm described in spec.md section 4.4:
// starting at the hash-selected index into t's RNL, walk the list in
// circular order; each Modified-MANET-capable member ahead of
// localSystem covers (removes from the THL) the THL nodes it is
// adjacent to; the nodes still uncovered when localSystem's own
// position is reached are the reflood set.
func DecideReflood(g *Graph, originatorSystemID [6]byte, fragment uint8, t string, rnl []RNLMember, localSystem string) ReloodDecision {
	if len(rnl) == 0 {
		return ReloodDecision{}
	}

	originator := systemIDString(originatorSystemID)
	thl := ComputeTHL(g, t, originator)

	h := FloodingReductionHash(originatorSystemID, fragment)
	start := int(h) % len(rnl)

	localIdx := -1
	for i, m := range rnl {
		if m.ID == localSystem {
			localIdx = i
			break
		}
	}
	if localIdx == -1 {
		return ReloodDecision{LocalIsMember: false}
	}

	for i := 0; i < len(rnl); i++ {
		idx := (start + i) % len(rnl)
		if idx == localIdx {
			break
		}
		member := rnl[idx]
		if !member.ModifiedMANET {
			continue
		}
		for _, adj := range g.Neighbors(member.ID) {
			delete(thl, adj)
		}
	}

	out := make([]string, 0, len(thl))
	for n := range thl {
		out = append(out, n)
	}
	sort.Strings(out)
	return ReloodDecision{Reflood: out, LocalIsMember: true}
}

// systemIDString renders a 6-byte system id as a colon-separated hex
// string, matching the node naming used elsewhere when the graph's
// node ids are derived from system ids rather than opaque names.
func systemIDString(id [6]byte) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 0, 17)
	for i, b := range id {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0xF])
	}
	return string(buf)
}
