package extraction

import (
	"encoding/json"
	"reflect"
	"regexp"
)

// Metadata is the caller-defined bag forwarded from a descriptor onto its
// matched segments. The engine never interprets the values.
type Metadata map[string]any

// Clone returns a shallow copy so segments never alias the caller's map
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarshalJSON drops function values (callbacks) which have no JSON form
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	plain := make(map[string]any, len(m))
	for k, v := range m {
		if v == nil {
			plain[k] = nil
			continue
		}
		if reflect.TypeOf(v).Kind() == reflect.Func {
			continue
		}
		plain[k] = v
	}
	return json.Marshal(plain)
}

// RenderFunc rewrites matched text for display. groups[0] is the whole
// match followed by the pattern's capture groups.
type RenderFunc func(match string, groups []string) string

// Descriptor pairs a pattern with the metadata attached to its matches.
// Exactly one of Regexp, Pattern or Type is used, checked in that order.
type Descriptor struct {
	Regexp     *regexp.Regexp
	Pattern    string
	Type       string
	Metadata   Metadata
	RenderText RenderFunc
}

// Segment is one span of the output partition
type Segment struct {
	Text            string      `json:"text"`
	Start           int         `json:"start"`
	End             int         `json:"end"`
	Matched         bool        `json:"matched"`
	DescriptorIndex int         `json:"descriptorIndex"`
	Descriptor      *Descriptor `json:"-"`
	Groups          []string    `json:"groups,omitempty"`
	Metadata        Metadata    `json:"metadata,omitempty"`
	DisplayText     string      `json:"displayText"`
}

// Display returns the text destined for rendering
func (s Segment) Display() string {
	if s.Matched {
		return s.DisplayText
	}
	return s.Text
}

// match is a candidate span found by one descriptor
type match struct {
	start, end int
	descriptor int
	loc        []int
}

func (m match) length() int {
	return m.end - m.start
}

func (m match) overlaps(o match) bool {
	return m.start < o.end && o.start < m.end
}
