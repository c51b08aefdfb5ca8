package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/model"
)

type fakeClient struct {
	err error
}

func (f *fakeClient) GenerateStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return nil, f.err
}

func TestAdaptiveRateLimiterBacksOffOnRateLimitSignal(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 1000)
	initial := l.CurrentTPM()

	wrapped := l.Middleware()(&fakeClient{err: coreerrors.New(coreerrors.Transient, coreerrors.TypeRateLimited, "", "slow down", nil)})
	_, err := wrapped.GenerateStream(context.Background(), model.Request{})
	require.Error(t, err)

	assert.Less(t, l.CurrentTPM(), initial)
}

func TestAdaptiveRateLimiterProbesUpOnSuccess(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 2000)
	l.backoff() // drop below initial so probe() has room to climb back up
	afterBackoff := l.CurrentTPM()

	wrapped := l.Middleware()(&fakeClient{})
	_, err := wrapped.GenerateStream(context.Background(), model.Request{})
	require.NoError(t, err)

	assert.Greater(t, l.CurrentTPM(), afterBackoff)
}

func TestAdaptiveRateLimiterClampsMaxToInitial(t *testing.T) {
	l := NewAdaptiveRateLimiter(500, 100)
	assert.Equal(t, 500.0, l.maxTPM)
}
