// Package diff computes the structural difference between a live and
// a local mapping configuration. The comparison is pure and total: it
// never evaluates expressions, never touches the network, and never
// fails, so drift detection can run against whatever the platform
// returns.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/portside/portside/pkg/desired"
)

// EntryType tags one kind of structural difference.
type EntryType string

const (
	// MissingInLive indicates a kind declared locally that the live
	// configuration lacks.
	MissingInLive EntryType = "missing_in_live"

	// ExtraInLive indicates a kind present live but not declared
	// locally.
	ExtraInLive EntryType = "extra_in_live"

	// FieldDiff indicates a top-level mapping field (blueprint,
	// identifier, title) that differs.
	FieldDiff EntryType = "field_diff"

	// PropertyMissingInLive indicates a property key declared locally
	// that the live mapping lacks.
	PropertyMissingInLive EntryType = "property_missing_in_live"

	// PropertyExtraInLive indicates a property key present live but
	// not declared locally.
	PropertyExtraInLive EntryType = "property_extra_in_live"

	// PropertyDiff indicates a property expression that differs.
	PropertyDiff EntryType = "property_diff"

	// RelationMissingInLive indicates a relation key declared locally
	// that the live mapping lacks.
	RelationMissingInLive EntryType = "relation_missing_in_live"

	// RelationExtraInLive indicates a relation key present live but
	// not declared locally.
	RelationExtraInLive EntryType = "relation_extra_in_live"

	// RelationDiff indicates a relation expression that differs.
	RelationDiff EntryType = "relation_diff"
)

// Entry is one structural difference, keyed by mapping kind. Key
// carries the field name for FieldDiff and the map key for property
// and relation entries; Live and Local carry the differing payloads
// where the entry type has them.
type Entry struct {
	Type  EntryType   `json:"type"`
	Kind  string      `json:"kind"`
	Key   string      `json:"key,omitempty"`
	Live  interface{} `json:"live,omitempty"`
	Local interface{} `json:"local,omitempty"`
}

// mappingFields are the entity-mapping fields the diff compares, in
// output order.
var mappingFields = []string{"blueprint", "identifier", "title"}

// Diff compares a live configuration against the local desired one and
// returns every structural difference. Output order is deterministic:
// kinds lexicographic; within a kind, field diffs, then property
// entries by key, then relation entries by key. Kinds are indexed with
// last-one-wins on duplicates, matching the platform's behavior.
func Diff(live, local desired.IntegrationConfig) []Entry {
	liveIdx := live.ByKind()
	localIdx := local.ByKind()

	kinds := make([]string, 0, len(liveIdx)+len(localIdx))
	seen := make(map[string]bool, len(liveIdx)+len(localIdx))
	for kind := range localIdx {
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	for kind := range liveIdx {
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)

	var entries []Entry
	for _, kind := range kinds {
		liveRM, inLive := liveIdx[kind]
		localRM, inLocal := localIdx[kind]

		switch {
		case !inLive:
			entries = append(entries, Entry{Type: MissingInLive, Kind: kind})
		case !inLocal:
			entries = append(entries, Entry{Type: ExtraInLive, Kind: kind})
		default:
			entries = append(entries, compareMappings(kind, liveRM.Entity, localRM.Entity)...)
		}
	}
	return entries
}

// DiffDocuments is Diff over raw configuration documents, decoding
// both sides leniently first.
func DiffDocuments(live, local map[string]interface{}) []Entry {
	return Diff(desired.FromDocument(live), desired.FromDocument(local))
}

func compareMappings(kind string, live, local desired.EntityMappings) []Entry {
	var entries []Entry

	liveFields := map[string]interface{}{
		"blueprint":  live.Blueprint,
		"identifier": live.Identifier,
		"title":      live.Title,
	}
	localFields := map[string]interface{}{
		"blueprint":  local.Blueprint,
		"identifier": local.Identifier,
		"title":      local.Title,
	}
	for _, field := range mappingFields {
		if !equalValues(liveFields[field], localFields[field]) {
			entries = append(entries, Entry{
				Type:  FieldDiff,
				Kind:  kind,
				Key:   field,
				Live:  liveFields[field],
				Local: localFields[field],
			})
		}
	}

	entries = append(entries, compareKeyed(kind, live.Properties, local.Properties,
		PropertyMissingInLive, PropertyExtraInLive, PropertyDiff)...)
	entries = append(entries, compareKeyed(kind, live.Relations, local.Relations,
		RelationMissingInLive, RelationExtraInLive, RelationDiff)...)
	return entries
}

// compareKeyed diffs two expression maps. Each key yields at most one
// entry; keys are visited in sorted order.
func compareKeyed(kind string, live, local map[string]interface{}, missing, extra, changed EntryType) []Entry {
	keys := make([]string, 0, len(live)+len(local))
	seen := make(map[string]bool, len(live)+len(local))
	for key := range local {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for key := range live {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var entries []Entry
	for _, key := range keys {
		liveVal, inLive := live[key]
		localVal, inLocal := local[key]

		switch {
		case !inLive:
			entries = append(entries, Entry{Type: missing, Kind: kind, Key: key})
		case !inLocal:
			entries = append(entries, Entry{Type: extra, Kind: kind, Key: key})
		case !equalValues(liveVal, localVal):
			entries = append(entries, Entry{Type: changed, Kind: kind, Key: key, Live: liveVal, Local: localVal})
		}
	}
	return entries
}

// equalValues compares two expression payloads. Strings compare
// directly; everything else compares by canonical JSON so structures
// match regardless of whether they arrived via YAML or JSON.
func equalValues(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok || bok {
		return aok && bok && as == bs
	}
	return canonicalJSON(a) == canonicalJSON(b)
}

// canonicalJSON renders a payload as JSON with sorted object keys.
func canonicalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
