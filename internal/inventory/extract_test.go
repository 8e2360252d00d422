package inventory

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractImageURLs(t *testing.T) {
	html := `<p>text</p>
<img src="https://site.example.com/a.jpg" srcset="https://site.example.com/a-480.jpg 480w, https://site.example.com/a.jpg 800w">
<img src="https://site.example.com/b.png">
<img srcset="https://site.example.com/c.webp 1x">
<div><img src="https://site.example.com/a.jpg"></div>`

	urls, err := ExtractImageURLs(html, nil)
	require.NoError(t, err)

	// First-seen order, duplicates collapsed across src and srcset.
	assert.Equal(t, []string{
		"https://site.example.com/a.jpg",
		"https://site.example.com/a-480.jpg",
		"https://site.example.com/b.png",
		"https://site.example.com/c.webp",
	}, urls)
}

func TestExtractImageURLsResolvesRelativeReferences(t *testing.T) {
	base, err := url.Parse("https://site.example.com/blog/post-1/")
	require.NoError(t, err)

	html := `<img src="/uploads/a.jpg"><img src="b.jpg"><img src="https://cdn.example.com/c.jpg">`
	urls, err := ExtractImageURLs(html, base)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://site.example.com/uploads/a.jpg",
		"https://site.example.com/blog/post-1/b.jpg",
		"https://cdn.example.com/c.jpg",
	}, urls)
}

func TestExtractImageURLsIgnoresEmptyAndNonImages(t *testing.T) {
	html := `<img src=""><img alt="no source"><a href="https://site.example.com/page">link</a>`
	urls, err := ExtractImageURLs(html, nil)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestExtractImageURLsEmptyBody(t *testing.T) {
	urls, err := ExtractImageURLs("", nil)
	require.NoError(t, err)
	assert.Empty(t, urls)
}
