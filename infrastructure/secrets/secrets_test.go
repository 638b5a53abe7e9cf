package secrets

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePlain(t *testing.T) {
	s := Plain("hunter2")
	v, err := s.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)
}

func TestResolveEnvVar(t *testing.T) {
	t.Setenv("WEBHOOK_TOKEN", "tok-abc")
	s := FromEnvVar("WEBHOOK_TOKEN")
	v, err := s.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", v)
}

func TestResolveEnvVarMissing(t *testing.T) {
	os.Unsetenv("DOES_NOT_EXIST_XYZ")
	s := FromEnvVar("DOES_NOT_EXIST_XYZ")
	_, err := s.Resolve(context.Background(), nil)
	assert.Error(t, err)
}

func TestResolveVaultRefWithoutResolver(t *testing.T) {
	s := FromVaultRef("webhook-secret")
	_, err := s.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestRedactedNeverLeaksValue(t *testing.T) {
	assert.Equal(t, "***", Plain("hunter2").Redacted())
	assert.Equal(t, "env:WEBHOOK_TOKEN", FromEnvVar("WEBHOOK_TOKEN").Redacted())
	assert.Equal(t, "vault:webhook-secret", FromVaultRef("webhook-secret").Redacted())
}

func TestMarshalJSONUsesRedactedForm(t *testing.T) {
	s := Plain("hunter2")
	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"***"`, string(data))
}

func TestUnmarshalJSONDispatchesByPrefix(t *testing.T) {
	var s Secret
	require.NoError(t, s.UnmarshalJSON([]byte(`"env:WEBHOOK_TOKEN"`)))
	assert.Equal(t, KindEnvVar, s.Kind())

	require.NoError(t, s.UnmarshalJSON([]byte(`"vault:my-secret"`)))
	assert.Equal(t, KindVaultRef, s.Kind())

	require.NoError(t, s.UnmarshalJSON([]byte(`"hunter2"`)))
	assert.Equal(t, KindPlain, s.Kind())
}

func TestZeroClearsPlaintext(t *testing.T) {
	s := Plain("hunter2")
	s.Zero()
	v, err := s.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}
