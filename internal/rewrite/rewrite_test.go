package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/mediarefinery/internal/domain"
)

// normalize runs a body through the parser once so equality checks compare
// like with like.
func normalize(t *testing.T, html string) string {
	t.Helper()
	out, _, err := Rewrite(html, nil)
	require.NoError(t, err)
	return out
}

var testMapping = []domain.ReplacementMapping{
	{OriginalURL: "https://site.example.com/u/a.jpg", OptimizedURL: "https://site.example.com/u/a__opt.jpg"},
	{OriginalURL: "https://site.example.com/u/a-480.jpg", OptimizedURL: "https://site.example.com/u/a-480__opt.jpg"},
}

const testBody = `<p>Intro</p>` +
	`<img src="https://site.example.com/u/a.jpg" ` +
	`srcset="https://site.example.com/u/a-480.jpg 480w, https://site.example.com/u/a.jpg 800w" alt="a">` +
	`<img src="https://site.example.com/u/other.jpg" alt="other">`

func TestRewriteSrcAndSrcset(t *testing.T) {
	out, applied, err := Rewrite(testBody, testMapping)
	require.NoError(t, err)

	// One src substitution plus two srcset candidates.
	require.Len(t, applied, 3)
	assert.Equal(t, AttrSrc, applied[0].Attr)
	assert.Equal(t, AttrSrcset, applied[1].Attr)
	assert.Equal(t, AttrSrcset, applied[2].Attr)

	assert.Contains(t, out, `src="https://site.example.com/u/a__opt.jpg"`)
	assert.Contains(t, out, "https://site.example.com/u/a-480__opt.jpg 480w")
	assert.Contains(t, out, "https://site.example.com/u/a__opt.jpg 800w")
	assert.NotContains(t, out, `src="https://site.example.com/u/a.jpg"`)

	// Untouched references stay untouched.
	assert.Contains(t, out, `src="https://site.example.com/u/other.jpg"`)
}

func TestRewriteRequiresExactMatch(t *testing.T) {
	body := `<img src="https://site.example.com/u/a.jpg?w=640">`
	out, applied, err := Rewrite(body, testMapping)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Contains(t, out, "a.jpg?w=640")
}

func TestRewriteNoMatchesLeavesBodyIntact(t *testing.T) {
	body := `<p>No images here.</p><img src="https://elsewhere.example.com/x.png">`
	out, applied, err := Rewrite(body, testMapping)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, normalize(t, body), out)
}

func TestRestoreInvertsRewrite(t *testing.T) {
	norm := normalize(t, testBody)

	rewritten, applied, err := Rewrite(norm, testMapping)
	require.NoError(t, err)
	require.NotEmpty(t, applied)

	restored, err := Restore(rewritten, testMapping)
	require.NoError(t, err)
	assert.Equal(t, norm, restored)
}

func TestRewriteHandlesMalformedSrcset(t *testing.T) {
	body := `<img src="https://site.example.com/u/a.jpg" srcset=" , https://site.example.com/u/a-480.jpg 480w,,">`
	out, applied, err := Rewrite(body, testMapping)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
	assert.Contains(t, out, "https://site.example.com/u/a-480__opt.jpg 480w")
}

func TestPreviewDoesNotMutateInputs(t *testing.T) {
	docs := []domain.Document{
		{ID: 7, Content: testBody},
		{ID: 8, Content: `<p>plain</p>`},
	}
	entries, err := Preview(docs, testMapping)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(7), entries[0].DocumentID)
	assert.Len(t, entries[0].Replacements, 3)
	assert.True(t, strings.Contains(entries[0].RewrittenHTML, "a__opt.jpg"))
	assert.Equal(t, testBody, entries[0].OriginalHTML)

	assert.Empty(t, entries[1].Replacements)
}
