package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTMLBasics(t *testing.T) {
	html := ToHTML("# Heading\n\nSome **bold** text.")
	assert.Contains(t, html, "<h1>Heading</h1>")
	assert.Contains(t, html, "<strong>bold</strong>")
}

func TestToHTMLEmptyInputYieldsPlaceholder(t *testing.T) {
	assert.Equal(t, placeholder, ToHTML(""))
	assert.Equal(t, placeholder, ToHTML("   \n\t"))
}

func TestToHTMLHardWraps(t *testing.T) {
	html := ToHTML("line one\nline two")
	assert.Contains(t, html, "<br>")
}

func TestToHTMLKeepsRawHTML(t *testing.T) {
	html := ToHTML(`before <span class="k">kept</span> after`)
	assert.Contains(t, html, `<span class="k">kept</span>`)
}

func TestToHTMLFixesRelativeStaticSrc(t *testing.T) {
	html := ToHTML(`<img alt="x" src="static/images/foo/bar.png">`)
	assert.Contains(t, html, `src="/static/images/foo/bar.png"`)

	// Absolute srcs stay untouched.
	html = ToHTML(`<img src="/static/images/foo/bar.png">`)
	assert.Contains(t, html, `src="/static/images/foo/bar.png"`)
	assert.NotContains(t, html, `src="//static`)
}

func TestToHTMLTable(t *testing.T) {
	html := ToHTML("| a | b |\n|---|---|\n| 1 | 2 |")
	assert.Contains(t, html, "<table>")
}
