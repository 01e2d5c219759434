package download

import (
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	terminal := map[State]bool{
		StateQueued:      false,
		StateStopped:     false,
		StateDownloading: false,
		StateCompleted:   true,
		StateFailed:      true,
		StateRemoving:    false,
		StateRestarting:  false,
		StateRemoved:     true,
	}
	for state, want := range terminal {
		if got := state.IsTerminal(); got != want {
			t.Errorf("%v.IsTerminal() = %v, want %v", state, got, want)
		}
	}
}

func TestMergeRequest_StateMapping(t *testing.T) {
	tests := []struct {
		name string
		from State
		want State
	}{
		{"queued stays queued", StateQueued, StateQueued},
		{"stopped stays stopped", StateStopped, StateStopped},
		{"downloading stays downloading", StateDownloading, StateDownloading},
		{"removing becomes restarting", StateRemoving, StateRestarting},
		{"restarting stays restarting", StateRestarting, StateRestarting},
		{"completed is requeued", StateCompleted, StateQueued},
		{"failed is requeued", StateFailed, StateQueued},
		{"removed is requeued", StateRemoved, StateQueued},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecord(request("A"), 1000)
			rec.State = tt.from
			rec.FailureReason = FailureReasonUnknown

			merged := mergeRequest(rec, request("A"), 2000)
			if merged.State != tt.want {
				t.Errorf("merged state = %v, want %v", merged.State, tt.want)
			}
			if merged.State == StateQueued && merged.FailureReason != FailureReasonNone {
				t.Error("requeued record must clear its failure reason")
			}
			if merged.StartTimeMs != 1000 {
				t.Errorf("StartTimeMs = %d, merge must keep the original", merged.StartTimeMs)
			}
			if merged.UpdateTimeMs != 2000 {
				t.Errorf("UpdateTimeMs = %d, want merge time", merged.UpdateTimeMs)
			}
		})
	}
}

func TestMergeRequest_ReplacesFetchParameters(t *testing.T) {
	rec := newRecord(Request{ID: "A", Type: "hls", URI: "https://a/old.m3u8", CacheKey: "old"}, 1000)

	merged := mergeRequest(rec, Request{ID: "A", Type: "hls", URI: "https://a/new.m3u8", CacheKey: "new"}, 2000)
	if merged.URI != "https://a/new.m3u8" {
		t.Errorf("URI = %q, want the new request's", merged.URI)
	}
	if merged.CacheKey != "new" {
		t.Errorf("CacheKey = %q, want the new request's", merged.CacheKey)
	}
}

func TestUnionStreamKeys(t *testing.T) {
	k := func(p, g, s int) StreamKey { return StreamKey{Period: p, Group: g, Stream: s} }

	tests := []struct {
		name     string
		existing []StreamKey
		added    []StreamKey
		want     []StreamKey
	}{
		{"empty existing means all streams", nil, []StreamKey{k(0, 0, 0)}, nil},
		{"empty added means all streams", []StreamKey{k(0, 0, 0)}, nil, nil},
		{"disjoint keys are appended", []StreamKey{k(0, 0, 0)}, []StreamKey{k(0, 1, 0)}, []StreamKey{k(0, 0, 0), k(0, 1, 0)}},
		{"duplicates are dropped", []StreamKey{k(0, 0, 0), k(0, 1, 0)}, []StreamKey{k(0, 1, 0)}, []StreamKey{k(0, 0, 0), k(0, 1, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := unionStreamKeys(tt.existing, tt.added)
			if len(got) != len(tt.want) {
				t.Fatalf("union = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("union = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
