package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEndpointManagerOrdersByDescendingWeight(t *testing.T) {
	em, err := NewEndpointManager("ethereum", []string{"a", "b", "c"}, []int{10, 100, 50})
	require.NoError(t, err)
	assert.Equal(t, "b", em.Current())
}

func TestNewEndpointManagerBreaksTiesByConfigOrder(t *testing.T) {
	em, err := NewEndpointManager("ethereum", []string{"a", "b", "c"}, []int{50, 50, 100})
	require.NoError(t, err)
	assert.Equal(t, "c", em.Current())
}

func TestNewEndpointManagerRejectsEmpty(t *testing.T) {
	_, err := NewEndpointManager("ethereum", nil, nil)
	assert.Error(t, err)
}

func TestRotateSwapsOnSuccessAndPushesOldActiveToTail(t *testing.T) {
	em, err := NewEndpointManager("ethereum", []string{"a", "b", "c"}, []int{100, 50, 10})
	require.NoError(t, err)

	rotateErr := em.Rotate(context.Background(), func(ctx context.Context, candidate string) error {
		assert.Equal(t, "b", candidate)
		return nil
	})
	require.NoError(t, rotateErr)
	assert.Equal(t, "b", em.Current())

	rotateErr = em.Rotate(context.Background(), func(ctx context.Context, candidate string) error {
		assert.Equal(t, "c", candidate)
		return nil
	})
	require.NoError(t, rotateErr)
	assert.Equal(t, "c", em.Current())
}

func TestRotateReturnsCandidateToTailOnFailure(t *testing.T) {
	em, err := NewEndpointManager("ethereum", []string{"a", "b", "c"}, []int{100, 50, 10})
	require.NoError(t, err)

	rotateErr := em.Rotate(context.Background(), func(ctx context.Context, candidate string) error {
		return assert.AnError
	})
	assert.ErrorIs(t, rotateErr, ErrNoHealthyEndpoint)
	assert.Equal(t, "a", em.Current())

	rotateErr = em.Rotate(context.Background(), func(ctx context.Context, candidate string) error {
		assert.Equal(t, "c", candidate)
		return nil
	})
	require.NoError(t, rotateErr)
	assert.Equal(t, "c", em.Current())
}

func TestRotateFailsWhenNoFallbacksRemain(t *testing.T) {
	em, err := NewEndpointManager("ethereum", []string{"a"}, []int{100})
	require.NoError(t, err)

	rotateErr := em.Rotate(context.Background(), func(ctx context.Context, candidate string) error {
		return nil
	})
	assert.ErrorIs(t, rotateErr, ErrNoHealthyEndpoint)
}
