package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/core"
)

func TestSerializers_RoundTrip(t *testing.T) {
	page := core.Page{ID: 12, Title: "Roots", Emoji: "🌱"}
	for ext, s := range DefaultSerializers() {
		t.Run(ext, func(t *testing.T) {
			data, err := s.Serialize(page)
			require.NoError(t, err)
			got, err := s.Parse(data)
			require.NoError(t, err)
			assert.Equal(t, page, got)
		})
	}
}

func TestMarkdownSerializer_Frontmatter(t *testing.T) {
	s := MarkdownSerializer{}

	_, err := s.Parse([]byte("---\nid: 1\n"))
	assert.ErrorContains(t, err, "closing delimiter")

	_, err = s.Parse([]byte("# just a heading\n"))
	assert.Error(t, err)

	p, err := s.Parse([]byte("---\r\nid: 3\r\n---\r\n\r\n# From Heading\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "From Heading", p.Title)
}
