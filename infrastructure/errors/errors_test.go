package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsTraceIDAndPath(t *testing.T) {
	c := New(KindTransport, "transport.ethereum", "dial failed")
	assert.Equal(t, KindTransport, c.Kind)
	assert.Equal(t, []string{"transport.ethereum"}, c.Path)
	assert.NotEmpty(t, c.TraceID)
}

func TestWrapPrependsPathAndPreservesTraceID(t *testing.T) {
	root := New(KindChain, "chain.evm", "rpc error")
	wrapped := Wrap(KindFilter, "filter.evm", "decode failed", root)

	assert.Equal(t, []string{"filter.evm", "chain.evm"}, wrapped.Path)
	assert.Equal(t, root.TraceID, wrapped.TraceID)
	assert.Same(t, root, wrapped.Source)
}

func TestAsExtractsContextFromChain(t *testing.T) {
	root := New(KindExpression, "expr", "field not found")
	wrapped := errors.New("outer") // plain error with no Context in its chain

	_, ok := As(wrapped)
	assert.False(t, ok)

	c, ok := As(root)
	require.True(t, ok)
	assert.Equal(t, KindExpression, c.Kind)

	chained := fmt.Errorf("outer: %w", root)
	c, ok = As(chained)
	require.True(t, ok)
	assert.Same(t, root, c)
}

func TestLogOnceLogsExactlyOnce(t *testing.T) {
	logger := logrus.New()
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	c := New(KindTrigger, "trigger.webhook", "dispatch failed")
	c.LogOnce(logger)
	c.LogOnce(logger)

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Equal(t, 1, lines)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "dispatch failed", out["msg"])
	assert.Equal(t, "trigger", out["kind"])
}

func TestWithMetadataRedactsSecrets(t *testing.T) {
	c := New(KindNotification, "notify.webhook", "send failed")
	c.WithMetadata("url", fakeSecret{"https://hooks.example.com/T0/B0/xyz"})

	assert.Equal(t, "***redacted***", c.Metadata["url"])
}

type fakeSecret struct {
	value string
}

func (f fakeSecret) Redacted() string {
	return "***redacted***"
}

func TestFatalClassification(t *testing.T) {
	assert.True(t, KindConfig.Fatal())
	assert.True(t, KindRepository.Fatal())
	assert.False(t, KindTransport.Fatal())
	assert.False(t, KindChain.Fatal())
}
