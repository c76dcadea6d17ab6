package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentctl/agentctl/internal/config"
	"github.com/agentctl/agentctl/internal/errkind"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(config.NewPaths(dir))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateGetList(t *testing.T) {
	s := openTestStore(t)

	issue, err := s.Create("Write hello", CreateOpts{Tags: []string{TagAgent, TagRoot}})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, issue.Status)
	require.Equal(t, 3, issue.Priority)

	got, err := s.Get(issue.ID)
	require.NoError(t, err)
	require.Equal(t, issue.Title, got.Title)

	list := s.List(ListFilter{})
	require.Len(t, list, 1)
}

func TestCreateRejectsBadInput(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Create("", CreateOpts{})
	require.Error(t, err)

	_, err = s.Create("x", CreateOpts{Priority: 9})
	require.Error(t, err)
}

func TestReadyBlocksOrdering(t *testing.T) {
	// S2: blocked frontier scenario from spec §8.
	s := openTestStore(t)

	a, err := s.Create("A", CreateOpts{Tags: []string{TagAgent}})
	require.NoError(t, err)
	b, err := s.Create("B", CreateOpts{Tags: []string{TagAgent}})
	require.NoError(t, err)
	require.NoError(t, s.AddDep(a.ID, DepBlocks, b.ID))

	ready, err := s.Ready("", ReadyFilter{Tags: []string{TagAgent}})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, a.ID, ready[0].ID)

	require.NoError(t, s.Close(a.ID, OutcomeSuccess))

	ready, err = s.Ready("", ReadyFilter{Tags: []string{TagAgent}})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, b.ID, ready[0].ID)
}

func TestRemoveDepUnblocksBoth(t *testing.T) {
	s := openTestStore(t)

	a, _ := s.Create("A", CreateOpts{Tags: []string{TagAgent}})
	b, _ := s.Create("B", CreateOpts{Tags: []string{TagAgent}})
	require.NoError(t, s.AddDep(a.ID, DepBlocks, b.ID))

	removed, err := s.RemoveDep(a.ID, DepBlocks, b.ID)
	require.NoError(t, err)
	require.True(t, removed)

	ready, err := s.Ready("", ReadyFilter{Tags: []string{TagAgent}})
	require.NoError(t, err)
	require.Len(t, ready, 2)
}

func TestAddDepRejectsSelfAndCycle(t *testing.T) {
	s := openTestStore(t)

	a, _ := s.Create("A", CreateOpts{})
	b, _ := s.Create("B", CreateOpts{})

	require.Error(t, s.AddDep(a.ID, DepBlocks, a.ID))

	require.NoError(t, s.AddDep(a.ID, DepBlocks, b.ID))
	require.Error(t, s.AddDep(b.ID, DepBlocks, a.ID))
}

func TestIdPrefixResolution(t *testing.T) {
	// S3: id prefix resolution scenario from spec §8.
	s := openTestStore(t)

	a, _ := s.Create("A", CreateOpts{})
	b, _ := s.Create("B", CreateOpts{})

	shared := commonPrefix(a.ID, b.ID)
	require.NotEmpty(t, shared)

	_, err := s.Get(shared)
	require.True(t, errkind.Is(err, errkind.Ambiguous))
}

func commonPrefix(a, b string) string {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	if n == 0 {
		return a[:1]
	}
	return a[:n]
}

func TestValidateFinalAfterClose(t *testing.T) {
	// S1: root to completion scenario from spec §8.
	s := openTestStore(t)

	root, err := s.Create("Write hello", CreateOpts{Tags: []string{TagAgent, TagRoot}})
	require.NoError(t, err)

	v, err := s.Validate(root.ID)
	require.NoError(t, err)
	require.False(t, v.IsFinal)

	require.NoError(t, s.Close(root.ID, OutcomeSuccess))

	v, err = s.Validate(root.ID)
	require.NoError(t, err)
	require.True(t, v.IsFinal)
}

func TestResetInProgressIdempotent(t *testing.T) {
	s := openTestStore(t)

	root, _ := s.Create("root", CreateOpts{Tags: []string{TagRoot}})
	require.NoError(t, s.Claim(root.ID))

	reopened, err := s.ResetInProgress(root.ID)
	require.NoError(t, err)
	require.Equal(t, []string{root.ID}, reopened)

	reopened2, err := s.ResetInProgress(root.ID)
	require.NoError(t, err)
	require.Empty(t, reopened2)
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	paths := config.NewPaths(dir)

	s, err := Open(paths)
	require.NoError(t, err)

	a, err := s.Create("A", CreateOpts{Tags: []string{TagAgent}})
	require.NoError(t, err)
	b, err := s.Create("B", CreateOpts{Tags: []string{TagAgent}})
	require.NoError(t, err)
	require.NoError(t, s.AddDep(a.ID, DepBlocks, b.ID))
	require.NoError(t, s.Claim(a.ID))
	require.NoError(t, s.Close(a.ID, OutcomeSuccess))
	_, err = s.Post("issue:"+a.ID, "done", "worker")
	require.NoError(t, err)
	require.NoError(t, s.Close(b.ID, OutcomeSuccess))

	before := s.List(ListFilter{})
	beforeForum := s.Read("issue:"+a.ID, 0)

	reopened, err := Open(paths)
	require.NoError(t, err)
	after := reopened.List(ListFilter{})
	afterForum := reopened.Read("issue:"+a.ID, 0)

	require.Equal(t, len(before), len(after))
	require.Equal(t, len(beforeForum), len(afterForum))
	require.Equal(t, StatusClosed, after[0].Status)
}
