package util

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSourceKeyFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "short link key",
			url:  "https://mp.weixin.qq.com/s/AbCdEf123",
			want: "AbCdEf123",
		},
		{
			name: "sn query parameter",
			url:  "https://mp.weixin.qq.com/s?__biz=MzA3&sn=deadbeef&idx=1",
			want: "deadbeef",
		},
		{
			name: "other site falls back to full url",
			url:  "https://example.com/blog/post-1",
			want: "https://example.com/blog/post-1",
		},
		{
			name: "empty path segment falls back",
			url:  "https://mp.weixin.qq.com/s/",
			want: "https://mp.weixin.qq.com/s/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceKeyFromURL(tt.url))
		})
	}
}

func TestGenerateSlug(t *testing.T) {
	assert.Equal(t, "hello-world", GenerateSlug("Hello, World!"))
	assert.Equal(t, "你好世界", GenerateSlug("你好世界"))
	assert.Equal(t, "a-b", GenerateSlug("  a  ...  b  "))
}

func TestGenerateSlugTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("汉", 60)
	slug := GenerateSlug(long)

	assert.True(t, utf8.ValidString(slug))
	assert.Equal(t, strings.Repeat("汉", 50), slug)
}

func TestArticleFolder(t *testing.T) {
	assert.Equal(t, "abcdef123", ArticleFolder("https://mp.weixin.qq.com/s/AbCdEf123", 7))

	// URLs without a usable key get the nid-derived folder.
	assert.Equal(t, "article_7", ArticleFolder("https://example.com/blog/post-1", 7))
	assert.Equal(t, "article_7", ArticleFolder("", 7))
}
