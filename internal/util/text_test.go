package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, "short", Clamp("short", 10))
	assert.Equal(t, "abcd…", Clamp("abcdefgh", 5))
	assert.Equal(t, "héll…", Clamp("héllo wörld", 5))
	assert.Equal(t, "unchanged", Clamp("unchanged", 0))
	assert.Equal(t, Ellipsis, Clamp("abc", 1))
}

func TestTail(t *testing.T) {
	out, cut := Tail("abcdef", 3)
	assert.True(t, cut)
	assert.Equal(t, "def", out)

	out, cut = Tail("abc", 3)
	assert.False(t, cut)
	assert.Equal(t, "abc", out)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain", nil)
	assert.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = RenderTemplate(`Continue "{{.title}}" ({{percent .score}}){{if .summary}}: {{.summary}}{{end}}`, map[string]any{
		"title":   "Investigate <retry>",
		"score":   0.75,
		"summary": "",
	})
	assert.NoError(t, err)
	assert.Equal(t, `Continue "Investigate <retry>" (75%)`, out)

	_, err = RenderTemplate("{{ .broken", nil)
	assert.Error(t, err)
}
