package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Top-level document keys.
const (
	KeyCollectedAt = "collected_at"
	KeyPeriod      = "period"

	// Bookkeeping keys. They exist only on a Snapshot and must never
	// appear in a persisted Document.
	KeyRequestedSections = "requested_sections"
	KeyPRSourceOK        = "pr_source_ok"
)

// Document is the durable, published metrics state consumed by the dashboard.
type Document struct {
	CollectedAt time.Time
	Period      Period
	Sections    map[SectionName]Section

	// Extra carries unknown top-level keys from an earlier document forward
	// verbatim so that fields written by other tools survive a run.
	Extra map[string]json.RawMessage
}

// Section returns the named section, or nil if the document has none.
func (d *Document) Section(name SectionName) Section {
	if d == nil {
		return nil
	}
	return d.Sections[name]
}

// IsBookkeepingKey reports whether key is run-scoped snapshot state.
func IsBookkeepingKey(key string) bool {
	return key == KeyRequestedSections || key == KeyPRSourceOK
}

// MarshalJSON writes the document with a stable key order: collected_at,
// period, the sections in canonical order, then any extra keys sorted.
// Absent sections are omitted rather than written as null.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value any) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
		return nil
	}

	if err := write(KeyCollectedAt, d.CollectedAt.UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	if err := write(KeyPeriod, d.Period.toJSON()); err != nil {
		return nil, err
	}
	for _, name := range AllSections {
		section, ok := d.Sections[name]
		if !ok || section == nil {
			continue
		}
		if err := write(string(name), map[string]any(section)); err != nil {
			return nil, err
		}
	}

	extraKeys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		if IsBookkeepingKey(k) {
			continue
		}
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		if err := write(k, d.Extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a persisted document. Numbers are kept as
// json.Number so they round-trip verbatim. A section whose value is not a
// JSON object (legacy or corrupted schema) is treated as absent, and
// bookkeeping keys are dropped.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("document is not a JSON object: %w", err)
	}

	doc := Document{Sections: map[SectionName]Section{}}
	for key, value := range raw {
		switch {
		case key == KeyCollectedAt:
			var ts string
			if json.Unmarshal(value, &ts) == nil {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					doc.CollectedAt = t
				}
			}
		case key == KeyPeriod:
			var pj periodJSON
			if json.Unmarshal(value, &pj) == nil {
				if p, err := pj.toPeriod(); err == nil {
					doc.Period = p
				}
			}
		case IsBookkeepingKey(key):
			// never carried forward
		case SectionName(key).IsValid():
			if section, ok := decodeSection(value); ok {
				doc.Sections[SectionName(key)] = section
			}
		default:
			if doc.Extra == nil {
				doc.Extra = map[string]json.RawMessage{}
			}
			doc.Extra[key] = append(json.RawMessage(nil), value...)
		}
	}

	*d = doc
	return nil
}

// decodeSection returns the section and true only for a JSON object.
func decodeSection(raw json.RawMessage) (Section, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	return Section(m), true
}

// DecodeDocument parses a serialized document.
func DecodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// EncodeDocument serializes the document as indented JSON with a trailing newline.
func EncodeDocument(doc *Document) ([]byte, error) {
	compact, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("indenting document: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
