// Package extract reduces article HTML to markdown. Both origins go through
// it: the official-feed client feeds it the js_content body, the website
// crawler feeds it the readability-extracted article node.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// MarkdownFromHTML parses an HTML fragment and converts it to markdown.
func MarkdownFromHTML(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	root.Contents().Each(func(_ int, s *goquery.Selection) {
		renderBlock(s, &b)
	})

	out := strings.TrimSpace(blankLines.ReplaceAllString(b.String(), "\n\n"))
	return out, nil
}

func renderBlock(s *goquery.Selection, b *strings.Builder) {
	switch name := goquery.NodeName(s); name {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(name[1] - '0')
		text := strings.TrimSpace(inline(s))
		if text != "" {
			fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", level), text)
		}
	case "p":
		if text := strings.TrimSpace(inline(s)); text != "" {
			b.WriteString(text + "\n\n")
		}
	case "img":
		if img := image(s); img != "" {
			b.WriteString(img + "\n\n")
		}
	case "ul":
		s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			if text := strings.TrimSpace(inline(li)); text != "" {
				b.WriteString("- " + text + "\n")
			}
		})
		b.WriteString("\n")
	case "ol":
		s.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
			if text := strings.TrimSpace(inline(li)); text != "" {
				fmt.Fprintf(b, "%d. %s\n", i+1, text)
			}
		})
		b.WriteString("\n")
	case "pre":
		code := strings.Trim(s.Text(), "\n")
		if code != "" {
			b.WriteString("```\n" + code + "\n```\n\n")
		}
	case "blockquote":
		for _, line := range strings.Split(strings.TrimSpace(inline(s)), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				b.WriteString("> " + line + "\n")
			}
		}
		b.WriteString("\n")
	case "hr":
		b.WriteString("---\n\n")
	case "#text":
		if text := strings.TrimSpace(s.Text()); text != "" {
			b.WriteString(text + "\n\n")
		}
	case "script", "style", "#comment":
		// dropped
	default:
		// Containers (div, section, article, figure...) recurse into their
		// children; WeChat bodies in particular nest everything in sections.
		s.Contents().Each(func(_ int, child *goquery.Selection) {
			renderBlock(child, b)
		})
	}
}

func inline(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch goquery.NodeName(c) {
		case "#text":
			b.WriteString(c.Text())
		case "a":
			text := strings.TrimSpace(inline(c))
			href, _ := c.Attr("href")
			if text == "" {
				text = href
			}
			if href != "" {
				fmt.Fprintf(&b, "[%s](%s)", text, href)
			} else {
				b.WriteString(text)
			}
		case "strong", "b":
			if text := strings.TrimSpace(inline(c)); text != "" {
				fmt.Fprintf(&b, "**%s**", text)
			}
		case "em", "i":
			if text := strings.TrimSpace(inline(c)); text != "" {
				fmt.Fprintf(&b, "*%s*", text)
			}
		case "code":
			if text := strings.TrimSpace(c.Text()); text != "" {
				fmt.Fprintf(&b, "`%s`", text)
			}
		case "img":
			b.WriteString(image(c))
		case "br":
			b.WriteString("\n")
		case "script", "style", "#comment":
		default:
			b.WriteString(inline(c))
		}
	})
	return b.String()
}

// image prefers data-src: WeChat lazy-loads every article image through it.
func image(s *goquery.Selection) string {
	src, ok := s.Attr("data-src")
	if !ok || src == "" {
		src, _ = s.Attr("src")
	}
	if src == "" {
		return ""
	}
	alt, _ := s.Attr("alt")
	return fmt.Sprintf("![%s](%s)", alt, src)
}
