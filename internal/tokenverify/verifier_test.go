package tokenverify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	return New(Config{
		HMACSecret:      []byte("test-secret"),
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: 2 * time.Minute,
	})
}

func TestMintAndVerifyAccessToken(t *testing.T) {
	v := newTestVerifier(t)

	pair, err := v.Mint("u1", "t1", []string{"user"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)

	claims, err := v.Verify(context.Background(), "Bearer "+pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, "access", claims.TokenType)
}

func TestVerifyDeterministic(t *testing.T) {
	v := newTestVerifier(t)
	pair, err := v.Mint("u1", "t1", []string{"user"})
	require.NoError(t, err)

	first, err := v.Verify(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	second, err := v.Verify(context.Background(), pair.AccessToken)
	require.NoError(t, err)

	assert.Equal(t, first.Subject, second.Subject)
	assert.Equal(t, first.ID, second.ID)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	v := newTestVerifier(t)
	pair, err := v.Mint("u1", "t1", nil)
	require.NoError(t, err)

	_, err = v.Refresh(context.Background(), pair.AccessToken)
	require.Error(t, err)
	svcErr := accesserrors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, accesserrors.AuthenticationError, svcErr.Code)
}

func TestRefreshMintsNewPair(t *testing.T) {
	v := newTestVerifier(t)
	pair, err := v.Mint("u1", "t1", []string{"user"})
	require.NoError(t, err)

	newPair, err := v.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, newPair.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)
}

func TestRefreshTokenRevokedAfterUse(t *testing.T) {
	v := newTestVerifier(t)
	pair, err := v.Mint("u1", "t1", nil)
	require.NoError(t, err)

	_, err = v.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), pair.RefreshToken)
	require.Error(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	v := newTestVerifier(t)
	pair, err := v.Mint("u1", "t1", nil)
	require.NoError(t, err)

	require.NoError(t, v.Logout(context.Background(), pair.AccessToken))

	_, err = v.Verify(context.Background(), pair.AccessToken)
	require.Error(t, err)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	v := newTestVerifier(t)
	_, err := v.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	v := newTestVerifier(t)
	_, err := v.Verify(context.Background(), "")
	require.Error(t, err)
}

func TestUserInfoFromToken(t *testing.T) {
	v := newTestVerifier(t)
	pair, err := v.Mint("u1", "t1", []string{"user", "admin"})
	require.NoError(t, err)

	info, err := v.UserInfoFromToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", info.Subject)
	assert.Equal(t, "t1", info.Tenant)
	assert.ElementsMatch(t, []string{"user", "admin"}, info.Roles)
}
