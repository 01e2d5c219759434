package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offliner/internal/download"
	"offliner/internal/requirements"
)

// testIndex creates an Index backed by a real temp-dir database.
func testIndex(t *testing.T) *Index {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err, "failed to create test db")
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func sampleRecord(id string, state download.State) download.Record {
	return download.Record{
		Request: download.Request{
			ID:             id,
			Type:           "hls",
			URI:            "https://cdn.example.com/" + id + "/master.m3u8",
			CacheKey:       "cache-" + id,
			StreamKeys:     []download.StreamKey{{Period: 0, Group: 1, Stream: 2}},
			CustomMetadata: []byte{0x01, 0x02, 0x03},
		},
		State:              state,
		FailureReason:      download.FailureReasonNone,
		NotMetRequirements: requirements.Network | requirements.Charging,
		StopReason:         5,
		StartTimeMs:        1700000000000,
		UpdateTimeMs:       1700000001000,
		Counters:           download.Counters{BytesDownloaded: 4096, ContentLength: 8192},
		Filename:           id + ".mp4",
	}
}

func TestIndex_PutAndRecord(t *testing.T) {
	x := testIndex(t)

	want := sampleRecord("A", download.StateQueued)
	require.NoError(t, x.Put(want))

	got, err := x.Record("A")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestIndex_RecordMissing(t *testing.T) {
	x := testIndex(t)

	got, err := x.Record("nope")
	require.NoError(t, err)
	assert.Nil(t, got, "missing id must yield nil, not an error")
}

func TestIndex_PutReplaces(t *testing.T) {
	x := testIndex(t)

	rec := sampleRecord("A", download.StateQueued)
	require.NoError(t, x.Put(rec))

	rec.State = download.StateDownloading
	rec.Counters.BytesDownloaded = 9999
	require.NoError(t, x.Put(rec))

	got, err := x.Record("A")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, download.StateDownloading, got.State)
	assert.EqualValues(t, 9999, got.Counters.BytesDownloaded)
}

func TestIndex_RecordsFilterAndOrder(t *testing.T) {
	x := testIndex(t)

	require.NoError(t, x.Put(sampleRecord("A", download.StateQueued)))
	require.NoError(t, x.Put(sampleRecord("B", download.StateCompleted)))
	require.NoError(t, x.Put(sampleRecord("C", download.StateStopped)))
	require.NoError(t, x.Put(sampleRecord("D", download.StateQueued)))

	recs, err := x.Records(download.StateQueued, download.StateStopped)
	require.NoError(t, err)

	var ids []string
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"A", "C", "D"}, ids, "filtered scan must keep insertion order")

	all, err := x.Records()
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestIndex_Remove(t *testing.T) {
	x := testIndex(t)

	require.NoError(t, x.Put(sampleRecord("A", download.StateQueued)))
	require.NoError(t, x.Remove("A"))

	got, err := x.Record("A")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, x.Remove("A"), "removing an absent id is not an error")
}

func TestIndex_SetStopReasonSkipsTerminal(t *testing.T) {
	x := testIndex(t)

	require.NoError(t, x.Put(sampleRecord("run", download.StateQueued)))
	require.NoError(t, x.Put(sampleRecord("done", download.StateCompleted)))

	require.NoError(t, x.SetStopReason(42))

	run, err := x.Record("run")
	require.NoError(t, err)
	assert.Equal(t, 42, run.StopReason)

	done, err := x.Record("done")
	require.NoError(t, err)
	assert.Equal(t, 5, done.StopReason, "terminal rows keep their stop reason")
}

func TestIndex_SetStopReasonByID(t *testing.T) {
	x := testIndex(t)

	require.NoError(t, x.Put(sampleRecord("A", download.StateStopped)))
	require.NoError(t, x.Put(sampleRecord("B", download.StateStopped)))

	require.NoError(t, x.SetStopReasonByID("A", download.StopReasonNone))

	a, err := x.Record("A")
	require.NoError(t, err)
	assert.Equal(t, download.StopReasonNone, a.StopReason)

	b, err := x.Record("B")
	require.NoError(t, err)
	assert.Equal(t, 5, b.StopReason, "other rows must be untouched")

	assert.NoError(t, x.SetStopReasonByID("missing", 7), "unknown id is a no-op")
}

func TestIndex_EmptyStreamKeys(t *testing.T) {
	x := testIndex(t)

	rec := sampleRecord("A", download.StateQueued)
	rec.StreamKeys = nil
	rec.CustomMetadata = nil
	require.NoError(t, x.Put(rec))

	got, err := x.Record("A")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.StreamKeys)
	assert.Empty(t, got.CustomMetadata)
}
