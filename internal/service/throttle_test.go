package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/identity-api/internal/session"
)

func openTestSession(t *testing.T) session.Session {
	t.Helper()
	store := session.NewMemoryStore()
	sess, err := store.Open(context.Background(), "sess-1")
	require.NoError(t, err)
	return sess
}

func TestLoginThrottle_BelowLimitKeepsSession(t *testing.T) {
	ctx := context.Background()
	sess := openTestSession(t)
	require.NoError(t, sess.Set(ctx, session.KeyPendingUserID, "user-1"))

	throttle := NewLoginThrottle(3)

	destroyed, err := throttle.RecordFailure(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	assert.False(t, destroyed)

	destroyed, err = throttle.RecordFailure(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	assert.False(t, destroyed)

	count, err := throttle.Failures(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Session state survives failed attempts below the limit.
	pending, err := sess.Get(ctx, session.KeyPendingUserID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", pending)
}

func TestLoginThrottle_LimitDestroysSession(t *testing.T) {
	ctx := context.Background()
	sess := openTestSession(t)
	require.NoError(t, sess.Set(ctx, session.KeyPendingUserID, "user-1"))

	throttle := NewLoginThrottle(3)

	for i := 0; i < 2; i++ {
		destroyed, err := throttle.RecordFailure(ctx, sess, GoogleProvider)
		require.NoError(t, err)
		require.False(t, destroyed)
	}

	destroyed, err := throttle.RecordFailure(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	assert.True(t, destroyed)

	// The destroyed session reads as empty, including the pending login.
	pending, err := sess.Get(ctx, session.KeyPendingUserID)
	require.NoError(t, err)
	assert.Empty(t, pending)
	count, err := throttle.Failures(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoginThrottle_CountersArePerProvider(t *testing.T) {
	ctx := context.Background()
	sess := openTestSession(t)

	throttle := NewLoginThrottle(3)

	for i := 0; i < 2; i++ {
		_, err := throttle.RecordFailure(ctx, sess, GoogleProvider)
		require.NoError(t, err)
	}

	destroyed, err := throttle.RecordFailure(ctx, sess, FacebookProvider)
	require.NoError(t, err)
	assert.False(t, destroyed)

	googleCount, err := throttle.Failures(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	facebookCount, err := throttle.Failures(ctx, sess, FacebookProvider)
	require.NoError(t, err)
	assert.Equal(t, 2, googleCount)
	assert.Equal(t, 1, facebookCount)
}

func TestLoginThrottle_ResetClearsCounter(t *testing.T) {
	ctx := context.Background()
	sess := openTestSession(t)

	throttle := NewLoginThrottle(3)

	_, err := throttle.RecordFailure(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	require.NoError(t, throttle.Reset(ctx, sess, GoogleProvider))

	count, err := throttle.Failures(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoginThrottle_GarbageCounterTreatedAsZero(t *testing.T) {
	ctx := context.Background()
	sess := openTestSession(t)
	require.NoError(t, sess.Set(ctx, session.LoginErrorPrefix+GoogleProvider, "not-a-number"))

	throttle := NewLoginThrottle(3)

	destroyed, err := throttle.RecordFailure(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	assert.False(t, destroyed)

	count, err := throttle.Failures(ctx, sess, GoogleProvider)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
