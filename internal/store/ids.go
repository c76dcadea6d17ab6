package store

import (
	"crypto/rand"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentctl/agentctl/internal/errkind"
)

// newIssueID mints a lexicographically sortable id, the same generator the
// teacher uses for session ids.
func newIssueID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// idIndex is a sorted slice of ids kept alongside the issue map so prefix
// resolution is a binary search instead of a linear scan over every issue
// (spec §9 "Id prefix semantics").
type idIndex struct {
	ids []string
}

func (x *idIndex) add(id string) {
	i := sort.SearchStrings(x.ids, id)
	x.ids = append(x.ids, "")
	copy(x.ids[i+1:], x.ids[i:])
	x.ids[i] = id
}

// resolvePrefix returns the full id uniquely identified by prefix, or an
// errkind.NotFound / errkind.Ambiguous error (the latter listing matches).
func (x *idIndex) resolvePrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", errkind.New(errkind.NotFound, "empty id")
	}
	lo := sort.SearchStrings(x.ids, prefix)
	var matches []string
	for i := lo; i < len(x.ids) && hasPrefix(x.ids[i], prefix); i++ {
		matches = append(matches, x.ids[i])
	}
	switch len(matches) {
	case 0:
		return "", errkind.Newf(errkind.NotFound, "no issue id starts with %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", errkind.Newf(errkind.Ambiguous, "%q matches %d issues: %v", prefix, len(matches), matches)
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
