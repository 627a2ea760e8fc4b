package util

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// SourceKeyFromURL extracts the stable article identifier from a source URL.
// WeChat article links carry it as the /s/<key> path segment; for any other
// shape the full URL is the key.
func SourceKeyFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if strings.HasPrefix(u.Path, "/s/") {
		key := strings.TrimPrefix(u.Path, "/s/")
		if key != "" {
			return key
		}
	}

	// Older WeChat links carry the identifier in query parameters instead.
	if sn := u.Query().Get("sn"); sn != "" {
		return sn
	}

	return rawURL
}

// GenerateSlug creates a URL-friendly slug from a title.
func GenerateSlug(title string) string {
	slug := strings.ToLower(title)

	reg := regexp.MustCompile(`[^a-z0-9\p{Han}]+`) // Allow Chinese characters
	slug = reg.ReplaceAllString(slug, "-")

	slug = strings.Trim(slug, "-")

	// Truncate on rune boundaries; slugs may contain multi-byte Han runes
	// and end up as filesystem paths.
	if runes := []rune(slug); len(runes) > 50 {
		slug = string(runes[:50])
		slug = strings.Trim(slug, "-")
	}

	return slug
}

// ArticleFolder names the static asset folder for an article's uploaded
// images. The source key keeps uploads for the same article together; the
// nid disambiguates articles whose URLs produce no usable key.
func ArticleFolder(sourceURL string, nid uint) string {
	key := SourceKeyFromURL(sourceURL)
	if key == sourceURL || key == "" {
		return fmt.Sprintf("article_%d", nid)
	}
	slug := GenerateSlug(key)
	if slug == "" {
		return fmt.Sprintf("article_%d", nid)
	}
	return slug
}
