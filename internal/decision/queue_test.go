package decision_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dantte-lp/ribd/internal/decision"
	"github.com/dantte-lp/ribd/internal/policy"
)

func TestUpdateQueue_ReachBucketsByAttrKey(t *testing.T) {
	t.Parallel()

	q := decision.NewUpdateQueue()
	p1 := mustPrefix(t, "10.0.0.0/24")
	p2 := mustPrefix(t, "10.0.1.0/24")

	q.Reach(p1, "attrs-a", policy.RoutePolicyInfo{})
	q.Reach(p2, "attrs-a", policy.RoutePolicyInfo{})

	reach, unreach := q.Drain()
	assert.Empty(t, unreach)
	require.Contains(t, reach, decision.AttrKey("attrs-a"))
	assert.Len(t, reach["attrs-a"], 2)
}

func TestUpdateQueue_ReachSupersedesEarlierEntry(t *testing.T) {
	t.Parallel()

	q := decision.NewUpdateQueue()
	p := mustPrefix(t, "10.0.0.0/24")

	q.Reach(p, "attrs-a", policy.RoutePolicyInfo{})
	q.Reach(p, "attrs-b", policy.RoutePolicyInfo{})

	reach, _ := q.Drain()
	assert.NotContains(t, reach, decision.AttrKey("attrs-a"))
	require.Contains(t, reach, decision.AttrKey("attrs-b"))
	assert.Len(t, reach["attrs-b"], 1)
}

func TestUpdateQueue_UnreachRemovesPriorReach(t *testing.T) {
	t.Parallel()

	q := decision.NewUpdateQueue()
	p := mustPrefix(t, "10.0.0.0/24")

	q.Reach(p, "attrs-a", policy.RoutePolicyInfo{})
	q.Unreach(p)

	reach, unreach := q.Drain()
	assert.Empty(t, reach)
	assert.Equal(t, []decision.ReachEntry(nil), reach["attrs-a"])
	assert.Len(t, unreach, 1)
}

func TestUpdateQueue_DrainEmptiesTheQueue(t *testing.T) {
	t.Parallel()

	q := decision.NewUpdateQueue()
	p := mustPrefix(t, "10.0.0.0/24")
	q.Reach(p, "attrs-a", policy.RoutePolicyInfo{})

	assert.Equal(t, 1, q.Len())
	q.Drain()
	assert.Equal(t, 0, q.Len())
}
