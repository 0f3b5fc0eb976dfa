// Package pagecache is the staleness-aware response cache for rendered page
// output. It coalesces concurrent productions per key, serves stale entries
// while regenerating them in the background, and can mirror entries to a
// durable store so a restarted process does not start cold.
package pagecache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the variant stored in a cache entry.
type Kind int

const (
	// KindPage is rendered page output: HTML plus its serialized page data.
	KindPage Kind = iota

	// KindRedirect is a redirect the page's data fetching declared.
	KindRedirect

	// KindNotFound records that the page resolved to "not found"; caching it
	// keeps repeated misses from re-invoking the renderer.
	KindNotFound
)

// RedirectValue carries a redirect declared by a page.
type RedirectValue struct {
	Destination string `json:"destination"`
	StatusCode  int    `json:"statusCode"`
}

// Value is the cached representation of one resolved page.
type Value struct {
	Kind     Kind            `json:"kind"`
	HTML     []byte          `json:"html,omitempty"`
	PageData json.RawMessage `json:"pageData,omitempty"`
	Redirect *RedirectValue  `json:"redirect,omitempty"`
}

// Entry is one cache slot. It is shared by every concurrent requester of its
// key; only the single in-flight producer for the key ever creates one, and
// readers never mutate it.
type Entry struct {
	Value *Value

	// Revalidate is how long the entry stays fresh. Zero means the entry is
	// valid until explicitly invalidated; a negative value marks output that
	// must not be stored at all.
	Revalidate time.Duration

	// ProducedAt is when the producer committed this entry.
	ProducedAt time.Time
}

// Stale reports whether the entry is past its freshness window at now.
// Entries cached forever are never stale.
func (e *Entry) Stale(now time.Time) bool {
	if e.Revalidate <= 0 {
		return false
	}
	return now.After(e.ProducedAt.Add(e.Revalidate))
}

// envelope is the serialized form used by durable stores.
type envelope struct {
	Value          *Value    `json:"value"`
	RevalidateNano int64     `json:"revalidate"`
	ProducedAt     time.Time `json:"producedAt"`
}

// EncodeEntry serializes an entry for durable storage.
func EncodeEntry(e *Entry) ([]byte, error) {
	if e == nil || e.Value == nil {
		return nil, fmt.Errorf("pagecache: cannot encode empty entry")
	}
	return json.Marshal(envelope{
		Value:          e.Value,
		RevalidateNano: int64(e.Revalidate),
		ProducedAt:     e.ProducedAt,
	})
}

// DecodeEntry deserializes an entry produced by EncodeEntry.
func DecodeEntry(data []byte) (*Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("pagecache: decode entry: %w", err)
	}
	if env.Value == nil {
		return nil, fmt.Errorf("pagecache: decoded entry has no value")
	}
	return &Entry{
		Value:      env.Value,
		Revalidate: time.Duration(env.RevalidateNano),
		ProducedAt: env.ProducedAt,
	}, nil
}
