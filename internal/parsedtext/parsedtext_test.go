package parsedtext

import (
	"encoding/json"
	"testing"

	"github.com/raaihank/parsed-text/internal/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafTexts(n *Node) []string {
	var out []string
	for _, l := range n.Leaves() {
		out = append(out, l.Text)
	}
	return out
}

func TestParse_IOS(t *testing.T) {
	var pressedText string
	var pressedAt int
	opts := []Option{{
		Type:  patterns.TypeURL,
		Style: Style{"color": "blue"},
		OnPress: func(text string, index int) {
			pressedText, pressedAt = text, index
		},
	}}
	props := DefaultProps()
	props.Style = Style{"fontSize": 14}
	props.ChildrenStyle = Style{"color": "black"}

	tree, err := Parse("Visit https://example.com today", opts, props, PlatformIOS)
	require.NoError(t, err)

	root := tree.Root
	assert.Equal(t, PlatformIOS, tree.Platform)
	assert.Equal(t, KindText, root.Kind)
	assert.Equal(t, []Style{{"fontSize": 14}}, root.Style)
	require.Len(t, root.Children, 3)
	assert.Equal(t, []string{"Visit ", "https://example.com", " today"}, leafTexts(root))

	link := root.Children[1]
	assert.Equal(t, "parsedText-1", link.Key)
	assert.Equal(t, []Style{{"color": "black"}, {"color": "blue"}}, link.Style)
	assert.True(t, link.AllowFontScaling)
	assert.Equal(t, patterns.TypeURL, link.Props[KeyType])
	assert.True(t, link.Pressable())

	require.True(t, link.Press())
	assert.Equal(t, "https://example.com", pressedText)
	assert.Equal(t, 6, pressedAt)

	plain := root.Children[0]
	assert.False(t, plain.Pressable())
	assert.False(t, plain.Press())
	assert.Equal(t, []Style{{"color": "black"}}, plain.Style)
	assert.False(t, link.LongPress())
}

func TestParse_Transform(t *testing.T) {
	tree, err := Parse("hi a@b.com", []Option{{Type: patterns.TypeEmail, Replace: "mail:$0"}}, DefaultProps(), PlatformIOS)
	require.NoError(t, err)

	leaves := tree.Root.Leaves()
	require.Len(t, leaves, 2)
	assert.Equal(t, "mail:a@b.com", leaves[1].Text)
	assert.Equal(t, "a@b.com", leaves[1].Segment().Text)
	assert.Equal(t, "a@b.com", tree.Segments[1].Text)
}

func TestParse_AndroidRows(t *testing.T) {
	centered := Option{Pattern: `centered`, Style: Style{"textAlign": "center"}}
	props := DefaultProps()
	props.Style = Style{"color": "grey"}
	props.WrapStyle = Style{"flexDirection": "row"}

	t.Run("centered segment gets its own view", func(t *testing.T) {
		tree, err := Parse("intro centered outro", []Option{centered}, props, PlatformAndroid)
		require.NoError(t, err)

		root := tree.Root
		assert.Equal(t, KindView, root.Kind)
		assert.Equal(t, "text", root.Props["accessibilityRole"])
		require.Len(t, root.Children, 3)

		assert.Equal(t, KindText, root.Children[0].Kind)
		assert.Equal(t, "wrap_0", root.Children[0].Key)
		assert.Equal(t, []Style{{"flexDirection": "row"}}, root.Children[0].Style)

		view := root.Children[1]
		assert.Equal(t, KindView, view.Kind)
		require.Len(t, view.Children, 1)
		assert.Equal(t, "parsedText-1-view", view.Children[0].Key)
		assert.Equal(t, []Style{{"color": "grey"}, {"textAlign": "center"}}, view.Children[0].Style)

		assert.Equal(t, KindText, root.Children[2].Kind)
		assert.Equal(t, "parsedText-2-2-text", root.Children[2].Children[0].Key)
		assert.Equal(t, []string{"intro ", "centered", " outro"}, leafTexts(root))
	})

	t.Run("leading empty text wrap is dropped", func(t *testing.T) {
		tree, err := Parse("centered tail", []Option{centered}, props, PlatformAndroid)
		require.NoError(t, err)

		root := tree.Root
		require.Len(t, root.Children, 2)
		assert.Equal(t, "wrap_1", root.Children[0].Key)
		assert.Equal(t, KindView, root.Children[0].Kind)
		assert.Equal(t, "wrap_2", root.Children[1].Key)
	})

	t.Run("newline-only segments are emptied", func(t *testing.T) {
		tree, err := Parse("a\n\nb", []Option{{Pattern: `a|b`}}, props, PlatformAndroid)
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "", "b"}, leafTexts(tree.Root))
		assert.Equal(t, "a\n\nb", tree.Segments[0].Text+tree.Segments[1].Text+tree.Segments[2].Text)
	})
}

func TestParse_NoOptions(t *testing.T) {
	tree, err := Parse("just text", nil, DefaultProps(), PlatformIOS)
	require.NoError(t, err)
	assert.Equal(t, "just text", tree.Root.Text)
	assert.Empty(t, tree.Root.Children)
	assert.Nil(t, tree.Segments)

	tree, err = Parse("just text", nil, DefaultProps(), PlatformAndroid)
	require.NoError(t, err)
	require.Len(t, tree.Root.Children, 1)
	assert.Equal(t, "just text", tree.Root.Children[0].Text)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("x", []Option{{Type: "bogus"}}, DefaultProps(), PlatformIOS)
	assert.ErrorIs(t, err, patterns.ErrUnsupportedPatternType)

	_, err = Parse("x", nil, DefaultProps(), Platform("web"))
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = ParsePlatform("windows")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	p, err := ParsePlatform("android")
	require.NoError(t, err)
	assert.Equal(t, PlatformAndroid, p)
}

func TestTree_JSON(t *testing.T) {
	opts := []Option{{
		Type:    patterns.TypePhone,
		ID:      "phone",
		Extra:   map[string]any{"callback": func() {}},
		OnPress: func(string, int) {},
	}}
	tree, err := Parse("call 555-123-4567", opts, DefaultProps(), PlatformIOS)
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"platform":"ios"`)
	assert.Contains(t, string(data), `"id":"phone"`)
	assert.NotContains(t, string(data), "callback")
}
