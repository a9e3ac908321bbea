package ds_test

import (
	"testing"
	"time"

	"docstore-go/internal/ds"
)

func TestDocInfoFromPayload(t *testing.T) {
	t.Run("full docInfo", func(t *testing.T) {
		payload := `{
			"docInfo": {
				"fingerprint": "0x1234",
				"title": "On Computable Numbers",
				"filename": "turing.pdf",
				"added": "2023-04-05T06:07:08.123Z",
				"lastUpdated": "2024-01-02T03:04:05Z",
				"tags": {"t1": {"label": "math"}, "t2": {}},
				"nrPages": 36,
				"progress": 50,
				"archived": true,
				"flagged": false
			},
			"pageMetas": {}
		}`
		info := ds.DocInfoFromPayload(payload)
		if info == nil {
			t.Fatal("DocInfoFromPayload() = nil")
		}
		if info.Fingerprint != "0x1234" || info.Title != "On Computable Numbers" || info.Filename != "turing.pdf" {
			t.Errorf("identity fields = %+v", info)
		}
		if info.NrPages != 36 || info.Progress != 50 || !info.Archived || info.Flagged {
			t.Errorf("numeric/bool fields = %+v", info)
		}
		wantAdded := time.Date(2023, 4, 5, 6, 7, 8, 123000000, time.UTC)
		if !info.Added.Equal(wantAdded) {
			t.Errorf("Added = %v, want %v", info.Added, wantAdded)
		}
		if len(info.Tags) != 2 || info.Tags[0] != "math" || info.Tags[1] != "t2" {
			t.Errorf("Tags = %v", info.Tags)
		}
	})

	t.Run("tag list", func(t *testing.T) {
		info := ds.DocInfoFromPayload(`{"docInfo":{"tags":["a","b"]}}`)
		if info == nil || len(info.Tags) != 2 || info.Tags[1] != "b" {
			t.Errorf("DocInfoFromPayload() = %+v", info)
		}
	})

	t.Run("bad timestamps are zero", func(t *testing.T) {
		info := ds.DocInfoFromPayload(`{"docInfo":{"added":"yesterday"}}`)
		if info == nil || !info.Added.IsZero() {
			t.Errorf("DocInfoFromPayload() = %+v", info)
		}
	})

	for _, payload := range []string{"", "not json", `{"title":"x"}`, `{"docInfo":"x"}`, `[1,2]`} {
		if info := ds.DocInfoFromPayload(payload); info != nil {
			t.Errorf("DocInfoFromPayload(%q) = %+v, want nil", payload, info)
		}
	}
}
