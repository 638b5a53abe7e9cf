package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubstitutesKnownKeys(t *testing.T) {
	vars := map[string]string{"transaction.hash": "0xabc", "network.slug": "ethereum_mainnet"}
	out := Render("tx ${transaction.hash} on ${network.slug}", vars)
	assert.Equal(t, "tx 0xabc on ethereum_mainnet", out)
}

func TestRenderLeavesUnresolvedPlaceholderLiteral(t *testing.T) {
	out := Render("value: ${missing.key}", map[string]string{})
	assert.Equal(t, "value: ${missing.key}", out)
}

func TestRenderHandlesUnterminatedPlaceholder(t *testing.T) {
	out := Render("broken ${unterminated", map[string]string{"unterminated": "x"})
	assert.Equal(t, "broken ${unterminated", out)
}

func TestRenderNoPlaceholdersIsUnchanged(t *testing.T) {
	out := Render("plain text", map[string]string{"a": "b"})
	assert.Equal(t, "plain text", out)
}

func TestRenderDoesNotReSubstituteReplacementText(t *testing.T) {
	vars := map[string]string{"a": "${b}", "b": "resolved"}
	out := Render("${a}", vars)
	assert.Equal(t, "${b}", out)
}
