package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><body>
<table class="tabs"><tr><td>
  <table class="d_book"><tr><td><div class="bookimage"><a href="/b10/"><img src="/shots/10.jpg"></a></div></td></tr></table>
  <table class="d_book"><tr><td><div class="bookimage"><a href="/b11/"><img src="/shots/11.jpg"></a></div></td></tr></table>
  <table class="d_book"><tr><td><div class="bookimage"><a href="/b10/"><img src="/shots/10.jpg"></a></div></td></tr></table>
  <table class="d_book"><tr><td><div class="bookimage"><a href="/b12/"><img src="/shots/12.jpg"></a></div></td></tr></table>
</td></tr></table>
<div class="bookimage"><a href="/b99/">outside the listing table</a></div>
</body></html>`

func TestListBookLinks(t *testing.T) {
	links, err := ListBookLinks([]byte(listingHTML), mustBase(t, "https://tululu.org/l55/1/"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://tululu.org/b10/",
		"https://tululu.org/b11/",
		"https://tululu.org/b12/",
	}, links)
}

func TestListBookLinks_Empty(t *testing.T) {
	links, err := ListBookLinks([]byte(`<html><body><table class="tabs"></table></body></html>`), mustBase(t, "https://tululu.org/l55/701/"))
	require.NoError(t, err)
	assert.NotNil(t, links)
	assert.Empty(t, links)
}

func TestListBookLinks_BrokenMarkupTolerated(t *testing.T) {
	html := `<body><table class="tabs"><tr><td><div class="bookimage"><a href="b5/">x</a><div class="bookimage"><a href="">y</a>`

	links, err := ListBookLinks([]byte(html), mustBase(t, "https://tululu.org/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://tululu.org/b5/"}, links)
}

func TestListBookLinks_UnparsableHrefSkipped(t *testing.T) {
	html := `<body><table class="tabs"><tr><td>
<div class="bookimage"><a href="http://[::1">bad</a></div>
<div class="bookimage"><a href="/b6/">ok</a></div>
</td></tr></table></body>`

	links, err := ListBookLinks([]byte(html), mustBase(t, "https://tululu.org/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://tululu.org/b6/"}, links)
}

func TestListBookLinks_DedupesEquivalentForms(t *testing.T) {
	html := `<body><table class="tabs"><tr><td>
<div class="bookimage"><a href="/b7/">a</a></div>
<div class="bookimage"><a href="https://TULULU.org:443/b7">b</a></div>
<div class="bookimage"><a href="/b7/#comments">c</a></div>
</td></tr></table></body>`

	links, err := ListBookLinks([]byte(html), mustBase(t, "https://tululu.org/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://tululu.org/b7/"}, links)
}

func TestParseCatalogPage(t *testing.T) {
	page, err := ParseCatalogPage([]byte(listingHTML), "https://tululu.org/l55/3/", 3)
	require.NoError(t, err)

	assert.Equal(t, 3, page.Index)
	assert.Equal(t, "https://tululu.org/l55/3/", page.URL)
	assert.Len(t, page.BookLinks, 3)
}
