// Package watermark tracks synchronization progress per owner.
// Watermarks are the only durable state the sync engine keeps: three
// monotonic timestamps that record how far the index is known to reflect
// the source. They are persisted as a small line-oriented key=value file
// so a stuck sync can be diagnosed with cat.
package watermark

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Persisted keys. Values are integer millisecond epochs; 0 means "never".
const (
	keyLastFullSync    = "lastFullSyncTimestamp"
	keyLastDeltaUpdate = "lastDeltaUpdateTimestamp"
	keyLastDeltaDelete = "lastDeltaDeleteTimestamp"
)

// Watermarks records synchronization progress for one owner.
// The zero value means "never synchronized" and forces a full pass.
type Watermarks struct {
	// LastFullSync is when the last full resynchronization completed.
	LastFullSync time.Time

	// LastDeltaUpdate is the highest source modification timestamp
	// successfully indexed by a delta pass.
	LastDeltaUpdate time.Time

	// LastDeltaDelete is the highest source deletion timestamp
	// successfully removed by a delta pass.
	LastDeltaDelete time.Time
}

// IsZero reports whether no pass has ever completed for this owner.
func (w Watermarks) IsZero() bool {
	return w.LastFullSync.IsZero() && w.LastDeltaUpdate.IsZero() && w.LastDeltaDelete.IsZero()
}

// AtLeast reports whether every axis of w is >= the corresponding axis
// of prev. Successful passes must never move a watermark backwards.
func (w Watermarks) AtLeast(prev Watermarks) bool {
	return !w.LastFullSync.Before(prev.LastFullSync) &&
		!w.LastDeltaUpdate.Before(prev.LastDeltaUpdate) &&
		!w.LastDeltaDelete.Before(prev.LastDeltaDelete)
}

// Encode serializes the watermarks as key=value lines.
func (w Watermarks) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s=%d\n", keyLastFullSync, toMillis(w.LastFullSync))
	fmt.Fprintf(&buf, "%s=%d\n", keyLastDeltaUpdate, toMillis(w.LastDeltaUpdate))
	fmt.Fprintf(&buf, "%s=%d\n", keyLastDeltaDelete, toMillis(w.LastDeltaDelete))
	return buf.Bytes()
}

// Decode parses the key=value representation. Unknown keys are ignored
// for forward compatibility and missing keys default to zero. A line
// with a recognized key but an unparsable value is an error; callers
// treat that as corruption and fall back to zero watermarks.
func Decode(data []byte) (Watermarks, error) {
	var w Watermarks

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var dst *time.Time
		switch key {
		case keyLastFullSync:
			dst = &w.LastFullSync
		case keyLastDeltaUpdate:
			dst = &w.LastDeltaUpdate
		case keyLastDeltaDelete:
			dst = &w.LastDeltaDelete
		default:
			continue
		}

		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Watermarks{}, fmt.Errorf("invalid value for %s: %q", key, value)
		}
		*dst = fromMillis(ms)
	}
	if err := sc.Err(); err != nil {
		return Watermarks{}, fmt.Errorf("read watermarks: %w", err)
	}

	return w, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
