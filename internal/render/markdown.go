// Package render converts article markdown into the HTML pushed downstream.
// It is a pure wrapper with no state: empty input yields a placeholder
// paragraph instead of an error.
package render

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const placeholder = `<p class="placeholder">No content</p>`

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
		html.WithUnsafe(),
	),
)

// Image srcs written as "static/..." need a leading slash to resolve from
// any page.
var relativeStaticSrc = regexp.MustCompile(`(<img [^>]*?src=")(static/[^"]+")`)

// ToHTML renders markdown to HTML.
func ToHTML(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return placeholder
	}

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return placeholder
	}

	return relativeStaticSrc.ReplaceAllString(buf.String(), `$1/$2`)
}
