package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOwner struct{ destroyed bool }

func (f *fakeOwner) OnDestroy() { f.destroyed = true }

func TestRetainReleaseDestroysAtZero(t *testing.T) {
	owner := &fakeOwner{}
	var o Object
	Init(&o, KindEvent, owner, nil, false)
	require.True(t, IsA(&o, KindEvent))

	Retain(&o)
	require.EqualValues(t, 2, o.RefCount())

	Release(&o)
	require.False(t, owner.destroyed)
	require.True(t, IsA(&o, KindEvent))

	Release(&o)
	require.True(t, owner.destroyed)
	require.False(t, IsA(&o, KindEvent), "stale handle must fail IsA after destruction")
}

func TestIsAChecksKind(t *testing.T) {
	var o Object
	Init(&o, KindQueue, nil, nil, false)
	defer Release(&o)

	require.True(t, IsA(&o, KindQueue))
	require.False(t, IsA(&o, KindEvent))
	require.False(t, IsA(nil, KindQueue))
}

func TestParentRetentionAndRecursiveRelease(t *testing.T) {
	parentOwner := &fakeOwner{}
	var parent Object
	Init(&parent, KindQueue, parentOwner, nil, false)
	// Simulate the queue holding itself at refcount 1 from its creator,
	// plus the child's retain below.
	require.EqualValues(t, 1, parent.RefCount())

	childOwner := &fakeOwner{}
	var child Object
	Init(&child, KindEvent, childOwner, &parent, true)
	require.EqualValues(t, 2, parent.RefCount(), "child construction retains the parent")

	// Creator drops its own reference to the queue; it stays alive
	// because the event still retains it.
	Release(&parent)
	require.False(t, parentOwner.destroyed)
	require.True(t, IsA(&parent, KindQueue))

	// Event completes and is swept: its destruction releases the
	// parent, which now reaches zero and is destroyed too.
	Release(&child)
	require.True(t, childOwner.destroyed)
	require.True(t, parentOwner.destroyed)
	require.False(t, IsA(&parent, KindQueue))
}
