package parsedtext

import (
	"fmt"
	"strings"

	"github.com/raaihank/parsed-text/internal/extraction"
)

// Assembler turns a segment sequence into a render tree root
type Assembler interface {
	Assemble(segments []extraction.Segment, props Props) *Node
}

// AssemblerFor returns the strategy for a platform
func AssemblerFor(p Platform) (Assembler, error) {
	switch p {
	case PlatformIOS:
		return IOSAssembler{}, nil
	case PlatformAndroid:
		return AndroidAssembler{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, p)
	}
}

// IOSAssembler nests one text node per segment inside a root text node
type IOSAssembler struct{}

func (IOSAssembler) Assemble(segments []extraction.Segment, props Props) *Node {
	root := &Node{
		Kind:             KindText,
		Style:            styles(props.Style),
		AllowFontScaling: props.AllowFontScaling,
	}
	for i := range segments {
		seg := &segments[i]
		root.Children = append(root.Children, leaf(
			fmt.Sprintf("parsedText-%d", i),
			seg,
			seg.Display(),
			styles(props.ChildrenStyle, segmentStyle(seg)),
			props.AllowFontScaling,
		))
	}
	return root
}

// AndroidAssembler groups segments into rows. A centered segment cannot
// share a text run with its neighbours, so it closes the current row and
// gets a view of its own.
type AndroidAssembler struct{}

type wrapPart struct {
	kind  NodeKind
	items []*Node
}

func (AndroidAssembler) Assemble(segments []extraction.Segment, props Props) *Node {
	var parts []wrapPart
	var row []*Node

	for i := range segments {
		seg := &segments[i]
		own := segmentStyle(seg)
		style := styles(props.Style, own)

		if own.TextAlign() == "center" {
			parts = append(parts, wrapPart{kind: KindText, items: row})
			row = nil
			n := leaf(fmt.Sprintf("parsedText-%d-view", i), seg, seg.Display(), style, props.AllowFontScaling)
			parts = append(parts, wrapPart{kind: KindView, items: []*Node{n}})
			continue
		}

		text := seg.Display()
		if strings.Trim(text, "\n") == "" {
			text = ""
		}
		row = append(row, leaf(fmt.Sprintf("parsedText-%d-%d-text", i, i), seg, text, style, props.AllowFontScaling))
	}
	if len(row) > 0 {
		parts = append(parts, wrapPart{kind: KindText, items: row})
	}

	root := &Node{
		Kind:             KindView,
		Props:            extraction.Metadata{"accessibilityRole": "text"},
		AllowFontScaling: props.AllowFontScaling,
	}
	for i, part := range parts {
		key := fmt.Sprintf("wrap_%d", i)
		if part.kind == KindView {
			root.Children = append(root.Children, &Node{Kind: KindView, Key: key, Children: part.items})
			continue
		}

		var rendered strings.Builder
		for _, item := range part.items {
			rendered.WriteString(item.Text)
		}
		if rendered.Len() == 0 && i == 0 {
			continue
		}
		root.Children = append(root.Children, &Node{
			Kind:             KindText,
			Key:              key,
			Style:            styles(props.WrapStyle),
			AllowFontScaling: props.AllowFontScaling,
			Children:         part.items,
		})
	}
	return root
}
