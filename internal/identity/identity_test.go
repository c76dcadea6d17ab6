package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkExpandsRoleScopes(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(filepath.Join(dir, "identities.jsonl"))
	require.NoError(t, err)
	defer tbl.Close()

	b, err := tbl.Link("op-1", ChannelChatA, "tenant-1", "actor-1", RoleContributor)
	require.NoError(t, err)
	require.Equal(t, StatusActive, b.Status)
	require.ElementsMatch(t, []Scope{ScopeRead, ScopeWrite, ScopeExecute}, b.Scopes)
	require.False(t, b.HasScope(ScopeAdmin))
	require.True(t, b.HasScope(ScopeRead))
}

func TestLinkRejectsUnknownChannel(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(filepath.Join(dir, "identities.jsonl"))
	require.NoError(t, err)
	defer tbl.Close()

	_, err = tbl.Link("op-1", Channel("sms"), "tenant-1", "actor-1", RoleOperator)
	require.Error(t, err)
}

func TestUnlinkRevokesAndHasScopeFalse(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(filepath.Join(dir, "identities.jsonl"))
	require.NoError(t, err)
	defer tbl.Close()

	b, err := tbl.Link("op-1", ChannelEmail, "tenant-1", "actor-1", RoleOperator)
	require.NoError(t, err)
	require.NoError(t, tbl.Unlink(b.BindingID, "rotated"))

	found, ok := tbl.Resolve(ChannelEmail, "tenant-1", "actor-1")
	require.False(t, ok, "revoked binding must not resolve as active")
	require.Nil(t, found)

	list := tbl.List()
	require.Len(t, list, 1)
	require.Equal(t, StatusInactive, list[0].Status)
	require.Equal(t, "rotated", list[0].RevokeReason)
	require.False(t, list[0].HasScope(ScopeRead))
}

func TestUnlinkUnknownBindingIsNotFound(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(filepath.Join(dir, "identities.jsonl"))
	require.NoError(t, err)
	defer tbl.Close()

	err = tbl.Unlink("bnd_missing", "x")
	require.Error(t, err)
}

func TestOpenReplaysPersistedLinks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identities.jsonl")

	tbl, err := Open(path)
	require.NoError(t, err)
	b, err := tbl.Link("op-1", ChannelChatB, "tenant-2", "actor-2", RoleViewer)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	found, ok := reopened.Resolve(ChannelChatB, "tenant-2", "actor-2")
	require.True(t, ok)
	require.Equal(t, b.BindingID, found.BindingID)
	require.ElementsMatch(t, []Scope{ScopeRead}, found.Scopes)
}

func TestIsValidChannel(t *testing.T) {
	require.True(t, IsValidChannel("chat_a"))
	require.True(t, IsValidChannel("email"))
	require.False(t, IsValidChannel("sms"))
}
