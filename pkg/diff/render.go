package diff

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Report wraps a computed diff for rendering and persistence.
type Report struct {
	// IntegrationID is the integration the live side came from.
	IntegrationID string `json:"integration_id"`

	// InSync is true when the diff is empty.
	InSync bool `json:"in_sync"`

	// Entries are the differences, in Diff's deterministic order.
	Entries []Entry `json:"entries"`
}

// NewReport builds a report from a computed diff. A nil entries slice
// normalizes to empty so JSON output always carries an array.
func NewReport(integrationID string, entries []Entry) *Report {
	if entries == nil {
		entries = []Entry{}
	}
	return &Report{
		IntegrationID: integrationID,
		InSync:        len(entries) == 0,
		Entries:       entries,
	}
}

// String renders one entry as a single report line.
func (e Entry) String() string {
	switch e.Type {
	case MissingInLive:
		return fmt.Sprintf("MISSING in live: %s", e.Kind)
	case ExtraInLive:
		return fmt.Sprintf("EXTRA in live: %s", e.Kind)
	case FieldDiff:
		return fmt.Sprintf("DIFF %s %s: live=%s local=%s", e.Kind, e.Key, formatValue(e.Live), formatValue(e.Local))
	case PropertyMissingInLive:
		return fmt.Sprintf("MISSING property in live %s.%s", e.Kind, e.Key)
	case PropertyExtraInLive:
		return fmt.Sprintf("EXTRA property in live %s.%s", e.Kind, e.Key)
	case PropertyDiff:
		return fmt.Sprintf("DIFF property %s.%s: live=%s local=%s", e.Kind, e.Key, formatValue(e.Live), formatValue(e.Local))
	case RelationMissingInLive:
		return fmt.Sprintf("MISSING relation in live %s.%s", e.Kind, e.Key)
	case RelationExtraInLive:
		return fmt.Sprintf("EXTRA relation in live %s.%s", e.Kind, e.Key)
	case RelationDiff:
		return fmt.Sprintf("DIFF relation %s.%s: live=%s local=%s", e.Kind, e.Key, formatValue(e.Live), formatValue(e.Local))
	default:
		return fmt.Sprintf("UNKNOWN %s %s", e.Kind, e.Key)
	}
}

// formatValue renders an expression payload for a report line:
// strings verbatim, everything else as canonical JSON.
func formatValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return canonicalJSON(v)
}

// Counts tallies the report's entries by entry type.
func (r *Report) Counts() map[EntryType]int {
	counts := make(map[EntryType]int, len(r.Entries))
	for _, e := range r.Entries {
		counts[e.Type]++
	}
	return counts
}

// RenderText writes the human-readable report.
func (r *Report) RenderText(w io.Writer) error {
	header := fmt.Sprintf("Drift report for integration %q", r.IntegrationID)
	if _, err := fmt.Fprintf(w, "%s\n%s\n\n", header, strings.Repeat("=", len(header))); err != nil {
		return err
	}

	if r.InSync {
		_, err := fmt.Fprintln(w, "  Live mappings match local configuration")
		return err
	}

	for _, e := range r.Entries {
		if _, err := fmt.Fprintf(w, "  - %s\n", e); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "\n%d difference(s): %d missing, %d extra, %d changed\n",
		len(r.Entries), r.countMissing(), r.countExtra(), r.countChanged())
	return err
}

// RenderJSON writes the report as indented JSON.
func (r *Report) RenderJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r *Report) countMissing() int {
	return r.countTypes(MissingInLive, PropertyMissingInLive, RelationMissingInLive)
}

func (r *Report) countExtra() int {
	return r.countTypes(ExtraInLive, PropertyExtraInLive, RelationExtraInLive)
}

func (r *Report) countChanged() int {
	return r.countTypes(FieldDiff, PropertyDiff, RelationDiff)
}

func (r *Report) countTypes(types ...EntryType) int {
	count := 0
	for _, e := range r.Entries {
		for _, t := range types {
			if e.Type == t {
				count++
			}
		}
	}
	return count
}
