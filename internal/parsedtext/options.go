package parsedtext

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/raaihank/parsed-text/internal/extraction"
	"github.com/raaihank/parsed-text/internal/patterns"
)

// Metadata keys set on descriptors built from options
const (
	KeyID                   = "id"
	KeyType                 = "type"
	KeyStyle                = "style"
	KeyOnPress              = "onPress"
	KeyOnLongPress          = "onLongPress"
	KeySuppressHighlighting = "suppressHighlighting"
)

// ErrMissingPattern is returned for an option with neither type nor pattern
var ErrMissingPattern = errors.New("option needs a type or a pattern")

// PressHandler receives the matched text and its byte offset in the input
type PressHandler func(text string, index int)

// Style is a free-form style object, passed through to the render tree
type Style map[string]any

// TextAlign returns the textAlign entry, if it is a string
func (s Style) TextAlign() string {
	align, _ := s["textAlign"].(string)
	return align
}

// Option is one entry of the parse list. Either Type names a built-in
// pattern or Pattern carries a regular expression.
type Option struct {
	Type                 string         `json:"type,omitempty" mapstructure:"type"`
	Pattern              string         `json:"pattern,omitempty" mapstructure:"pattern"`
	ID                   string         `json:"id,omitempty" mapstructure:"id"`
	Style                Style          `json:"style,omitempty" mapstructure:"style"`
	SuppressHighlighting bool           `json:"suppressHighlighting,omitempty" mapstructure:"suppress_highlighting"`
	Replace              string         `json:"replace,omitempty" mapstructure:"replace"`
	Extra                map[string]any `json:"extra,omitempty" mapstructure:"extra"`

	OnPress     PressHandler          `json:"-" mapstructure:"-"`
	OnLongPress PressHandler          `json:"-" mapstructure:"-"`
	RenderText  extraction.RenderFunc `json:"-" mapstructure:"-"`
}

// Resolve turns options into engine descriptors, in the same order.
// Built-in types are resolved through the default registry; custom
// patterns are left for the engine to compile.
func Resolve(opts []Option) ([]extraction.Descriptor, error) {
	registry := patterns.Default()
	descriptors := make([]extraction.Descriptor, 0, len(opts))

	for i, opt := range opts {
		d := extraction.Descriptor{
			Metadata:   opt.metadata(),
			RenderText: opt.renderer(),
		}

		switch {
		case opt.Type != "":
			re, err := registry.Resolve(opt.Type)
			if err != nil {
				return nil, fmt.Errorf("option %d: %w", i, err)
			}
			d.Regexp = re
		case opt.Pattern != "":
			d.Pattern = opt.Pattern
		default:
			return nil, fmt.Errorf("option %d: %w", i, ErrMissingPattern)
		}

		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}

// Validate checks that every option resolves and compiles
func Validate(opts []Option) error {
	descriptors, err := Resolve(opts)
	if err != nil {
		return err
	}
	_, err = extraction.Extract("", descriptors)
	return err
}

func (o Option) metadata() extraction.Metadata {
	meta := make(extraction.Metadata, len(o.Extra)+6)
	for k, v := range o.Extra {
		meta[k] = v
	}
	if o.ID != "" {
		meta[KeyID] = o.ID
	}
	if o.Type != "" {
		meta[KeyType] = o.Type
	}
	if o.Style != nil {
		meta[KeyStyle] = o.Style
	}
	if o.SuppressHighlighting {
		meta[KeySuppressHighlighting] = true
	}
	if o.OnPress != nil {
		meta[KeyOnPress] = o.OnPress
	}
	if o.OnLongPress != nil {
		meta[KeyOnLongPress] = o.OnLongPress
	}
	return meta
}

// renderer prefers an explicit RenderText over a Replace template
func (o Option) renderer() extraction.RenderFunc {
	if o.RenderText != nil {
		return o.RenderText
	}
	if o.Replace != "" {
		return TemplateRenderer(o.Replace)
	}
	return nil
}

var groupRef = regexp.MustCompile(`\$(\d+)|\$\{(\d+)\}`)

// TemplateRenderer expands $n and ${n} references to capture groups.
// References to groups that do not exist expand to nothing.
func TemplateRenderer(template string) extraction.RenderFunc {
	return func(match string, groups []string) string {
		return groupRef.ReplaceAllStringFunc(template, func(ref string) string {
			sub := groupRef.FindStringSubmatch(ref)
			digits := sub[1]
			if digits == "" {
				digits = sub[2]
			}
			n, err := strconv.Atoi(digits)
			if err != nil || n >= len(groups) {
				return ""
			}
			return groups[n]
		})
	}
}
