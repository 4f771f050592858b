package parsedtext

import (
	"errors"
	"fmt"

	"github.com/raaihank/parsed-text/internal/extraction"
)

// Platform selects the assembly strategy
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ErrUnsupportedPlatform is returned for a platform with no assembler
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ParsePlatform validates a platform name
func ParsePlatform(name string) (Platform, error) {
	switch p := Platform(name); p {
	case PlatformIOS, PlatformAndroid:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, name)
	}
}

// NodeKind is the element type of a render node
type NodeKind string

const (
	KindText NodeKind = "text"
	KindView NodeKind = "view"
)

// Props are the component-level properties applied while assembling
type Props struct {
	Style            Style `json:"style,omitempty" mapstructure:"style"`
	ChildrenStyle    Style `json:"childrenStyle,omitempty" mapstructure:"children_style"`
	WrapStyle        Style `json:"wrapStyle,omitempty" mapstructure:"wrap_style"`
	AllowFontScaling bool  `json:"allowFontScaling" mapstructure:"allow_font_scaling"`
}

// DefaultProps returns props with font scaling allowed
func DefaultProps() Props {
	return Props{AllowFontScaling: true}
}

// Node is one element of the render tree
type Node struct {
	Kind             NodeKind            `json:"kind"`
	Key              string              `json:"key,omitempty"`
	Text             string              `json:"text,omitempty"`
	Style            []Style             `json:"style,omitempty"`
	Props            extraction.Metadata `json:"props,omitempty"`
	AllowFontScaling bool                `json:"allowFontScaling"`
	Children         []*Node             `json:"children,omitempty"`

	segment     *extraction.Segment
	onPress     PressHandler
	onLongPress PressHandler
}

// Segment returns the segment a leaf was built from, nil for wrappers
func (n *Node) Segment() *extraction.Segment {
	return n.segment
}

// Pressable reports whether the node has an activation callback
func (n *Node) Pressable() bool {
	return n.onPress != nil || n.onLongPress != nil
}

// Press invokes the activation callback. It reports false when there is none.
func (n *Node) Press() bool {
	if n.onPress == nil || n.segment == nil {
		return false
	}
	n.onPress(n.segment.Text, n.segment.Start)
	return true
}

// LongPress invokes the long activation callback
func (n *Node) LongPress() bool {
	if n.onLongPress == nil || n.segment == nil {
		return false
	}
	n.onLongPress(n.segment.Text, n.segment.Start)
	return true
}

// Leaves returns the segment nodes in render order
func (n *Node) Leaves() []*Node {
	if n.segment != nil {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Tree is the assembled output for one platform
type Tree struct {
	Platform Platform             `json:"platform"`
	Root     *Node                `json:"root"`
	Segments []extraction.Segment `json:"segments,omitempty"`
}

// styles drops nil entries
func styles(list ...Style) []Style {
	var out []Style
	for _, s := range list {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// leaf builds the node for one segment
func leaf(key string, seg *extraction.Segment, text string, style []Style, allowFontScaling bool) *Node {
	n := &Node{
		Kind:             KindText,
		Key:              key,
		Text:             text,
		Style:            style,
		AllowFontScaling: allowFontScaling,
		segment:          seg,
	}
	if !seg.Matched {
		return n
	}

	for k, v := range seg.Metadata {
		switch k {
		case KeyStyle:
		case KeyOnPress:
			n.onPress = asPressHandler(v)
		case KeyOnLongPress:
			n.onLongPress = asPressHandler(v)
		default:
			if n.Props == nil {
				n.Props = make(extraction.Metadata)
			}
			n.Props[k] = v
		}
	}
	return n
}

// segmentStyle reads the style forwarded by the winning option
func segmentStyle(seg *extraction.Segment) Style {
	if !seg.Matched {
		return nil
	}
	switch s := seg.Metadata[KeyStyle].(type) {
	case Style:
		return s
	case map[string]any:
		return Style(s)
	default:
		return nil
	}
}

func asPressHandler(v any) PressHandler {
	switch fn := v.(type) {
	case PressHandler:
		return fn
	case func(string, int):
		return fn
	default:
		return nil
	}
}
