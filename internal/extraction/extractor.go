package extraction

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/raaihank/parsed-text/internal/patterns"
)

// Extractor segments one text against one descriptor list. It is built
// per call, parsed once and discarded; nothing is cached between calls.
type Extractor struct {
	text        string
	descriptors []Descriptor
}

// New creates an extractor over text and descriptors. The descriptor slice
// is copied so later changes by the caller do not affect the result.
func New(text string, descriptors []Descriptor) *Extractor {
	copied := make([]Descriptor, len(descriptors))
	copy(copied, descriptors)
	return &Extractor{
		text:        text,
		descriptors: copied,
	}
}

// Extract is shorthand for New(text, descriptors).Parse()
func Extract(text string, descriptors []Descriptor) ([]Segment, error) {
	return New(text, descriptors).Parse()
}

// Parse returns the ordered partition of the text into plain and matched
// segments. Every descriptor is compiled first, so a bad pattern is
// reported even when the text is empty.
func (e *Extractor) Parse() ([]Segment, error) {
	compiled, err := e.compile()
	if err != nil {
		return nil, err
	}

	if e.text == "" {
		return []Segment{}, nil
	}

	accepted := resolveOverlaps(e.collect(compiled))
	return e.segments(accepted), nil
}

// compile turns every descriptor into a regexp, in list order
func (e *Extractor) compile() ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, len(e.descriptors))
	for i, d := range e.descriptors {
		switch {
		case d.Regexp != nil:
			compiled[i] = d.Regexp
		case d.Pattern != "":
			re, err := regexp.Compile(d.Pattern)
			if err != nil {
				return nil, &InvalidPatternError{Index: i, Pattern: d.Pattern, Err: err}
			}
			compiled[i] = re
		case d.Type != "":
			re, err := patterns.Resolve(d.Type)
			if err != nil {
				return nil, fmt.Errorf("descriptor %d: %w", i, err)
			}
			compiled[i] = re
		default:
			return nil, &InvalidPatternError{Index: i, Err: errEmptyPattern}
		}
	}
	return compiled, nil
}

// collect runs a global search per descriptor and pools the candidates.
// Zero-length matches are dropped.
func (e *Extractor) collect(compiled []*regexp.Regexp) []match {
	var candidates []match
	for i, re := range compiled {
		for _, loc := range re.FindAllStringSubmatchIndex(e.text, -1) {
			if loc[1] <= loc[0] {
				continue
			}
			candidates = append(candidates, match{
				start:      loc[0],
				end:        loc[1],
				descriptor: i,
				loc:        loc,
			})
		}
	}
	return candidates
}

// resolveOverlaps keeps a non-overlapping subset of candidates sorted by
// start offset. Candidates are admitted by descriptor order, then earlier
// start, then longer length; anything overlapping an admitted span is
// discarded whole.
func resolveOverlaps(candidates []match) []match {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.descriptor != b.descriptor {
			return a.descriptor < b.descriptor
		}
		if a.start != b.start {
			return a.start < b.start
		}
		return a.length() > b.length()
	})

	accepted := make([]match, 0, len(candidates))
	for _, c := range candidates {
		pos := sort.Search(len(accepted), func(k int) bool {
			return accepted[k].start >= c.start
		})
		if pos > 0 && accepted[pos-1].overlaps(c) {
			continue
		}
		if pos < len(accepted) && accepted[pos].overlaps(c) {
			continue
		}
		accepted = append(accepted, match{})
		copy(accepted[pos+1:], accepted[pos:])
		accepted[pos] = c
	}
	return accepted
}

// segments walks the text left to right, filling gaps with plain segments
func (e *Extractor) segments(accepted []match) []Segment {
	out := make([]Segment, 0, 2*len(accepted)+1)
	cursor := 0
	for _, m := range accepted {
		if m.start > cursor {
			out = append(out, e.plain(cursor, m.start))
		}
		out = append(out, e.matched(m))
		cursor = m.end
	}
	if cursor < len(e.text) {
		out = append(out, e.plain(cursor, len(e.text)))
	}
	return out
}

func (e *Extractor) plain(start, end int) Segment {
	text := e.text[start:end]
	return Segment{
		Text:            text,
		Start:           start,
		End:             end,
		DescriptorIndex: -1,
		DisplayText:     text,
	}
}

func (e *Extractor) matched(m match) Segment {
	d := &e.descriptors[m.descriptor]
	text := e.text[m.start:m.end]
	groups := submatches(e.text, m.loc)

	display := text
	if d.RenderText != nil {
		display = d.RenderText(text, groups)
	}

	return Segment{
		Text:            text,
		Start:           m.start,
		End:             m.end,
		Matched:         true,
		DescriptorIndex: m.descriptor,
		Descriptor:      d,
		Groups:          groups,
		Metadata:        d.Metadata.Clone(),
		DisplayText:     display,
	}
}

// submatches expands an index pair slice; groups that did not participate are empty
func submatches(text string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for g := range groups {
		if loc[2*g] >= 0 {
			groups[g] = text[loc[2*g]:loc[2*g+1]]
		}
	}
	return groups
}

// Join concatenates segment texts; for any extraction output it equals the input
func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Matches returns only the matched segments
func Matches(segments []Segment) []Segment {
	var out []Segment
	for _, s := range segments {
		if s.Matched {
			out = append(out, s)
		}
	}
	return out
}
