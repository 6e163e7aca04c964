package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Result records one generated option.
type Result struct {
	ID          int64     `json:"id"`
	DateTime    Timestamp `json:"dateTime"`
	Option      Option    `json:"option"`
	User        User      `json:"user"`
	GeneratorID int64     `json:"generatorId"`
}

// localLayout is the zone-less form the backend serializes timestamps in.
const localLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a result time. The backend sends local date-times without a
// zone, so they are parsed as UTC wall-clock values. RFC 3339 input is
// accepted as well.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(localLayout, raw)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("failed to parse timestamp %q: %w", raw, err)
		}
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(localLayout))
}

// SortResultsNewestFirst orders results by descending time in place.
func SortResultsNewestFirst(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DateTime.After(results[j].DateTime.Time)
	})
}

// LatestResultTime returns the newest result time truncated to whole seconds,
// or the zero time when there are no results.
func LatestResultTime(results []Result) time.Time {
	var latest time.Time
	for _, r := range results {
		if r.DateTime.After(latest) {
			latest = r.DateTime.Time
		}
	}
	return latest.Truncate(time.Second)
}
