package ds

import (
	"time"

	"github.com/tidwall/gjson"
)

// DocInfo is the descriptive summary of a document carried with change events.
type DocInfo struct {
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	Added       time.Time `json:"added,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	NrPages     int       `json:"nrPages,omitempty"`
	Progress    int       `json:"progress,omitempty"`
	Archived    bool      `json:"archived,omitempty"`
	Flagged     bool      `json:"flagged,omitempty"`
}

// DocInfoFromPayload extracts the "docInfo" object of a stored payload.
// It returns nil if the payload is not JSON or has no docInfo object.
func DocInfoFromPayload(data string) *DocInfo {
	if !gjson.Valid(data) {
		return nil
	}
	info := gjson.Get(data, "docInfo")
	if !info.IsObject() {
		return nil
	}

	out := &DocInfo{
		Fingerprint: info.Get("fingerprint").String(),
		Title:       info.Get("title").String(),
		Filename:    info.Get("filename").String(),
		NrPages:     int(info.Get("nrPages").Int()),
		Progress:    int(info.Get("progress").Int()),
		Archived:    info.Get("archived").Bool(),
		Flagged:     info.Get("flagged").Bool(),
		Added:       parseTime(info.Get("added")),
		LastUpdated: parseTime(info.Get("lastUpdated")),
	}

	// Tags are either a list of labels or an object keyed by tag id.
	tags := info.Get("tags")
	switch {
	case tags.IsArray():
		for _, t := range tags.Array() {
			out.Tags = append(out.Tags, t.String())
		}
	case tags.IsObject():
		tags.ForEach(func(key, value gjson.Result) bool {
			label := value.Get("label").String()
			if label == "" {
				label = key.String()
			}
			out.Tags = append(out.Tags, label)
			return true
		})
	}

	return out
}

func parseTime(r gjson.Result) time.Time {
	if !r.Exists() {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, r.String())
	if err != nil {
		return time.Time{}
	}
	return t
}
