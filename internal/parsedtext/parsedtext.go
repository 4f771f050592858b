// Package parsedtext resolves parse options into extraction descriptors and
// assembles the resulting segments into a per-platform render tree.
package parsedtext

import (
	"github.com/raaihank/parsed-text/internal/extraction"
)

// Parse segments text with opts and assembles the tree for platform.
// Without options the text is returned unparsed as the root's content.
func Parse(text string, opts []Option, props Props, platform Platform) (*Tree, error) {
	assembler, err := AssemblerFor(platform)
	if err != nil {
		return nil, err
	}

	if len(opts) == 0 {
		return &Tree{Platform: platform, Root: unparsed(text, props, platform)}, nil
	}

	descriptors, err := Resolve(opts)
	if err != nil {
		return nil, err
	}

	segments, err := extraction.Extract(text, descriptors)
	if err != nil {
		return nil, err
	}

	return &Tree{
		Platform: platform,
		Root:     assembler.Assemble(segments, props),
		Segments: segments,
	}, nil
}

func unparsed(text string, props Props, platform Platform) *Node {
	if platform == PlatformAndroid {
		return &Node{
			Kind:             KindView,
			Props:            extraction.Metadata{"accessibilityRole": "text"},
			AllowFontScaling: props.AllowFontScaling,
			Children: []*Node{{
				Kind:             KindText,
				Text:             text,
				Style:            styles(props.Style),
				AllowFontScaling: props.AllowFontScaling,
			}},
		}
	}
	return &Node{
		Kind:             KindText,
		Text:             text,
		Style:            styles(props.Style),
		AllowFontScaling: props.AllowFontScaling,
	}
}
