package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(clock func() time.Time) Config {
	return Config{
		AccessKey:  []byte("access-signing-key-0123456789ab"),
		RefreshKey: []byte("refresh-signing-key-0123456789a"),
		Issuer:     "authvault-test",
		Clock:      clock,
	}
}

func TestNewRejectsSharedKeys(t *testing.T) {
	key := []byte("shared-key-0123456789abcdef01234")
	_, err := New(Config{AccessKey: key, RefreshKey: key})
	require.Error(t, err)

	_, err = New(Config{AccessKey: key})
	require.Error(t, err)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec, err := New(testConfig(nil))
	require.NoError(t, err)

	token, err := codec.Issue(KindAccess, "acct-1", "sess-1", true, time.Minute)
	require.NoError(t, err)

	claims, err := codec.Verify(token, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.True(t, claims.Admin)
	assert.Equal(t, KindAccess, claims.Kind)
}

func TestKindSeparationByKey(t *testing.T) {
	codec, err := New(testConfig(nil))
	require.NoError(t, err)

	refresh, err := codec.Issue(KindRefresh, "acct-1", "sess-1", false, time.Hour)
	require.NoError(t, err)

	// A refresh token presented as an access token fails on signature,
	// before the kind claim is even consulted.
	_, err = codec.Verify(refresh, KindAccess)
	require.ErrorIs(t, err, ErrBadSignature)

	access, err := codec.Issue(KindAccess, "acct-1", "sess-1", false, time.Minute)
	require.NoError(t, err)
	_, err = codec.Verify(access, KindRefresh)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyStrictExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := now
	codec, err := New(testConfig(func() time.Time { return current }))
	require.NoError(t, err)

	token, err := codec.Issue(KindAccess, "acct-1", "sess-1", false, 15*time.Minute)
	require.NoError(t, err)

	current = now.Add(14*time.Minute + 59*time.Second)
	_, err = codec.Verify(token, KindAccess)
	require.NoError(t, err)

	// No leeway: one second past expiry is expired.
	current = now.Add(15*time.Minute + time.Second)
	_, err = codec.Verify(token, KindAccess)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerifyTamperedToken(t *testing.T) {
	codec, err := New(testConfig(nil))
	require.NoError(t, err)

	token, err := codec.Issue(KindAccess, "acct-1", "sess-1", false, time.Minute)
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = codec.Verify(tampered, KindAccess)
	require.Error(t, err)

	_, err = codec.Verify("not-a-token", KindAccess)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyWrongIssuer(t *testing.T) {
	other, err := New(Config{
		AccessKey:  []byte("access-signing-key-0123456789ab"),
		RefreshKey: []byte("refresh-signing-key-0123456789a"),
		Issuer:     "someone-else",
	})
	require.NoError(t, err)

	token, err := other.Issue(KindAccess, "acct-1", "sess-1", false, time.Minute)
	require.NoError(t, err)

	codec, err := New(testConfig(nil))
	require.NoError(t, err)
	_, err = codec.Verify(token, KindAccess)
	require.ErrorIs(t, err, ErrMalformed)
}
