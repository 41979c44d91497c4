package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedRedirect(t *testing.T) {
	patterns := []string{"app.example.com", "*.shop.example.com"}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://app.example.com/return", true},
		{"http://app.example.com/cancel?x=1", true},
		{"https://eu.shop.example.com/done", true},
		{"https://APP.EXAMPLE.COM/return", true},
		{"https://evil.com/app.example.com", false},
		{"https://app.example.com.evil.com/", false},
		{"ftp://app.example.com/file", false},
		{"not a url at all ://", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AllowedRedirect(tt.url, patterns), "url=%q", tt.url)
	}
}

func TestAllowedRedirectNoPatterns(t *testing.T) {
	assert.False(t, AllowedRedirect("https://app.example.com/", nil))
}

func TestAllowedRedirectWildcardAll(t *testing.T) {
	assert.True(t, AllowedRedirect("https://anything.example.org/x", []string{"*"}))
	assert.False(t, AllowedRedirect("javascript:alert(1)", []string{"*"}))
}
