package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySessionStore is a map-backed SessionStore for tests.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]CustomerSession
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]CustomerSession)}
}

func (m *memorySessionStore) Get(_ context.Context, sid string) (CustomerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sid], nil
}

func (m *memorySessionStore) Put(_ context.Context, sid string, sess CustomerSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = sess
	return nil
}

func (m *memorySessionStore) Clear(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

func TestClaimThenVerify(t *testing.T) {
	svc := NewSessionService(newMemorySessionStore())
	ctx := context.Background()

	require.NoError(t, svc.Claim(ctx, "sid", "+255700000001"))
	sess, err := svc.Current(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "+255700000001", sess.Identity)
	assert.False(t, sess.Verified)

	require.NoError(t, svc.Verify(ctx, "sid", "+255700000001"))
	sess, err = svc.Current(ctx, "sid")
	require.NoError(t, err)
	assert.True(t, sess.Verified)
}

func TestClaimEmptyIdentityRejected(t *testing.T) {
	svc := NewSessionService(newMemorySessionStore())

	err := svc.Claim(context.Background(), "sid", "")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestIdentitySwitchClearsVerifiedFlag(t *testing.T) {
	svc := NewSessionService(newMemorySessionStore())
	ctx := context.Background()

	require.NoError(t, svc.Claim(ctx, "sid", "A"))
	require.NoError(t, svc.Verify(ctx, "sid", "A"))

	// Claiming a different identity on the same session must not carry the
	// earlier verification over.
	require.NoError(t, svc.Claim(ctx, "sid", "B"))
	sess, err := svc.Current(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "B", sess.Identity)
	assert.False(t, sess.Verified)
}

func TestReclaimSameIdentityKeepsVerifiedFlag(t *testing.T) {
	svc := NewSessionService(newMemorySessionStore())
	ctx := context.Background()

	require.NoError(t, svc.Claim(ctx, "sid", "A"))
	require.NoError(t, svc.Verify(ctx, "sid", "A"))
	require.NoError(t, svc.Claim(ctx, "sid", "A"))

	sess, err := svc.Current(ctx, "sid")
	require.NoError(t, err)
	assert.True(t, sess.Verified)
}

func TestVerifyRequiresMatchingIdentity(t *testing.T) {
	svc := NewSessionService(newMemorySessionStore())
	ctx := context.Background()

	require.NoError(t, svc.Claim(ctx, "sid", "A"))

	err := svc.Verify(ctx, "sid", "B")
	var authz *AuthorizationError
	assert.ErrorAs(t, err, &authz)
}

func TestCancelClaimNeverDowngradesVerified(t *testing.T) {
	svc := NewSessionService(newMemorySessionStore())
	ctx := context.Background()

	require.NoError(t, svc.Claim(ctx, "sid", "A"))
	require.NoError(t, svc.Verify(ctx, "sid", "A"))
	require.NoError(t, svc.CancelClaim(ctx, "sid"))

	sess, err := svc.Current(ctx, "sid")
	require.NoError(t, err)
	assert.True(t, sess.Verified)

	// An unverified claim is dropped entirely.
	require.NoError(t, svc.Claim(ctx, "sid2", "B"))
	require.NoError(t, svc.CancelClaim(ctx, "sid2"))
	sess, err = svc.Current(ctx, "sid2")
	require.NoError(t, err)
	assert.Empty(t, sess.Identity)
}
