package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	Seq int    `json:"seq"`
	Msg string `json:"msg"`
}

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")

	var replayed []record
	decode := func(line []byte) error {
		r, err := DecodeJSON[record](line)
		if err != nil {
			return err
		}
		replayed = append(replayed, r)
		return nil
	}

	log, err := Open(path, decode)
	require.NoError(t, err)
	require.NoError(t, log.Append(record{Seq: 1, Msg: "first"}))
	require.NoError(t, log.Append(record{Seq: 2, Msg: "second"}))
	require.NoError(t, log.Close())

	require.Empty(t, replayed, "Append must not self-replay into the decode callback")

	var reopened []record
	decode2 := func(line []byte) error {
		r, err := DecodeJSON[record](line)
		if err != nil {
			return err
		}
		reopened = append(reopened, r)
		return nil
	}
	log2, err := Open(path, decode2)
	require.NoError(t, err)
	defer log2.Close()

	require.Len(t, reopened, 2)
	require.Equal(t, 1, reopened[0].Seq)
	require.Equal(t, "second", reopened[1].Msg)
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "log.jsonl")

	log, err := Open(path, func([]byte) error { return nil })
	require.NoError(t, err)
	defer log.Close()

	_, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)
}

func TestOpenRejectsCorruptLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json\n"), 0644))

	_, err := Open(path, func(line []byte) error {
		_, err := DecodeJSON[record](line)
		return err
	})
	require.Error(t, err)
}

func TestMustJSONRoundTrips(t *testing.T) {
	r := record{Seq: 7, Msg: "hi"}
	data := MustJSON(r)

	var out record
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, r, out)
}
