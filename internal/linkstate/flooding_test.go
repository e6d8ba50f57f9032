package linkstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dantte-lp/ribd/internal/linkstate"
)

// buildRing builds a 5-node ring A-B-C-D-E-A.
func buildRing() *linkstate.Graph {
	g := linkstate.NewGraph()
	nodes := []string{"A", "B", "C", "D", "E"}
	for i := range nodes {
		g.AddEdge(nodes[i], nodes[(i+1)%len(nodes)])
	}
	return g
}

func TestGraph_FirstAndSecondHops(t *testing.T) {
	t.Parallel()

	g := buildRing()
	assert.ElementsMatch(t, []string{"B", "E"}, g.FirstHops("A"))
	assert.ElementsMatch(t, []string{"C", "D"}, g.SecondHops("A"))
}

func TestGraph_ShortestPath(t *testing.T) {
	t.Parallel()

	g := buildRing()
	path := g.ShortestPath("A", "C")
	require.NotEmpty(t, path)
	assert.Equal(t, "A", path[0])
	assert.Equal(t, "C", path[len(path)-1])
	assert.LessOrEqual(t, len(path), 3)
}

func TestComputeTHL_ExcludesShortestPathToOriginator(t *testing.T) {
	t.Parallel()

	g := buildRing()
	// B's second hops are D and E (its first hops are A and C); the
	// shortest path from B to originator A is [B, A], which does not
	// touch either second-hop node, so both remain in the THL.
	thl := linkstate.ComputeTHL(g, "B", "A")
	_, hasD := thl["D"]
	_, hasE := thl["E"]
	assert.True(t, hasD)
	assert.True(t, hasE)
}

func TestDecideReflood_LocalNotInRNLFallsBack(t *testing.T) {
	t.Parallel()

	g := buildRing()
	rnl := linkstate.ComputeRNL(g, "B", func(string) bool { return false })

	decision := linkstate.DecideReflood(g, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, 0, "B", rnl, "Z")
	assert.False(t, decision.LocalIsMember)
	assert.Empty(t, decision.Reflood)
}

func TestDecideReflood_CoveredNodesAreRemoved(t *testing.T) {
	t.Parallel()

	g := buildRing()
	rnl := linkstate.ComputeRNL(g, "B", func(id string) bool { return id == "A" })

	// B's RNL is {A, C} (its first hops). With localSystem "C" at
	// whatever index follows "A" in iteration order, if A precedes C
	// and is Modified-MANET capable, it covers its own neighbors
	// (A, B, E) before C's turn, which can reduce D-side coverage.
	decision := linkstate.DecideReflood(g, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, 0, "B", rnl, "C")
	assert.True(t, decision.LocalIsMember)
}
