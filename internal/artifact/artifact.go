// Package artifact defines the typed side payloads an assistant reply can
// carry next to its text content, e.g. product search results.
//
// Artifacts arrive incrementally over the stream and may legitimately repeat
// an item across chunks, so the package centers on merging deliveries under
// their declared type and deduplicating items by identity key.
package artifact

import "fmt"

// IdentityKey is the item field used to deduplicate deliveries of the same
// logical item within one assistant turn.
const IdentityKey = "id"

// Known artifact types produced by the storefront assistant.
const (
	TypeProductSearchResults = "product_search_results"
)

// Item is one entry in an artifact's data array. The payload shape varies by
// artifact type, so items stay schemaless.
type Item = map[string]any

// Artifact is a typed side payload attached to an assistant message.
type Artifact struct {
	Type string `json:"type"`
	Data []Item `json:"data"`
}

// Empty reports whether the artifact carries nothing worth merging.
func (a Artifact) Empty() bool {
	return a.Type == "" || len(a.Data) == 0
}

// Merge folds an incoming delivery into an artifact list, grouping by
// declared type. An empty delivery is a no-op. The returned slice preserves
// first-seen type order; items are appended in arrival order and deduplicated
// by identity key with last-write-wins semantics.
func Merge(list []Artifact, incoming Artifact) []Artifact {
	if incoming.Empty() {
		return list
	}

	for i := range list {
		if list[i].Type == incoming.Type {
			list[i].Data = dedupItems(append(list[i].Data, incoming.Data...))
			return list
		}
	}

	return append(list, Artifact{
		Type: incoming.Type,
		Data: dedupItems(incoming.Data),
	})
}

// Dedup collapses repeated deliveries of the same item in every artifact of
// the list. It is idempotent: applying it twice yields the same result.
// Sessions run it once more when a turn finalizes so the list exposed to the
// render layer is stable.
func Dedup(list []Artifact) []Artifact {
	for i := range list {
		list[i].Data = dedupItems(list[i].Data)
	}
	return list
}

// dedupItems removes duplicate items by identity key, keeping first-seen
// position but last-delivered fields. Items without an identity key cannot be
// deduplicated and are kept as-is.
func dedupItems(items []Item) []Item {
	if len(items) < 2 {
		return items
	}

	out := make([]Item, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		key, ok := itemKey(item)
		if !ok {
			out = append(out, item)
			continue
		}
		if at, seen := index[key]; seen {
			// Last write wins, position of first delivery kept.
			out[at] = item
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}

	return out
}

// itemKey extracts the identity key of an item. JSON numbers and strings are
// both accepted since backends are not consistent about id types.
func itemKey(item Item) (string, bool) {
	v, ok := item[IdentityKey]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	default:
		return fmt.Sprint(id), true
	}
}
