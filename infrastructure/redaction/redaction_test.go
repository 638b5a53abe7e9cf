package redaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactStringMasksApiKey(t *testing.T) {
	r := NewRedactor(DefaultConfig())
	out := r.RedactString(`api_key: "sk-live-abc123"`)
	assert.Contains(t, out, "***REDACTED***")
	assert.NotContains(t, out, "sk-live-abc123")
}

func TestRedactMapMasksBlockedFieldNames(t *testing.T) {
	r := NewRedactor(DefaultConfig())
	out := r.RedactMap(map[string]interface{}{
		"webhook_secret": "topsecret",
		"network":        "ethereum",
	})
	assert.Equal(t, "***REDACTED***", out["webhook_secret"])
	assert.Equal(t, "ethereum", out["network"])
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://rpc.example.com", RedactURL("https://rpc.example.com?api_key=xyz"))
	assert.Equal(t, "https://***@rpc.example.com", RedactURL("https://user:pw@rpc.example.com"))
	assert.Equal(t, "", RedactURL(""))
}
