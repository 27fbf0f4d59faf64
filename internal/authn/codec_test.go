package authn

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taspla-gateway/internal/clock"
	"taspla-gateway/internal/config"
	"taspla-gateway/internal/model"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T, secret string) (*Codec, *clock.Fixture) {
	t.Helper()
	clk := clock.NewFixture(testStart)
	c, err := NewCodec([]byte(secret), 0, clk)
	require.NoError(t, err)
	return c, clk
}

func testIdentity() model.Identity {
	return model.Identity{UserID: uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"), Username: "alice"}
}

func TestCodec_RoundTrip(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")
	id := testIdentity()

	token, err := c.Issue(id, "alice@example.com")
	require.NoError(t, err)

	claims, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, id.UserID.String(), claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
	require.NotNil(t, claims.ExpiresAt)
	assert.True(t, claims.ExpiresAt.Time.Equal(testStart.Add(DefaultTTL)), "exp = %v", claims.ExpiresAt.Time)
}

func TestCodec_OmitsEmptyEmail(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")

	token, err := c.Issue(testIdentity(), "")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.NotContains(t, raw, "email")
	assert.Contains(t, raw, "sub")
	assert.Contains(t, raw, "username")
	assert.Contains(t, raw, "exp")
}

func TestCodec_Expiry(t *testing.T) {
	c, clk := newTestCodec(t, "s3cret")

	token, err := c.Issue(testIdentity(), "")
	require.NoError(t, err)

	clk.Set(testStart.Add(6 * 24 * time.Hour))
	_, err = c.Decode(token)
	assert.NoError(t, err, "token should still be valid after six days")

	clk.Set(testStart.Add(8 * 24 * time.Hour))
	_, err = c.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "token should be expired after eight days")
}

func TestCodec_CustomTTL(t *testing.T) {
	clk := clock.NewFixture(testStart)
	c, err := NewCodec([]byte("s3cret"), time.Hour, clk)
	require.NoError(t, err)

	token, err := c.Issue(testIdentity(), "")
	require.NoError(t, err)

	clk.Advance(59 * time.Minute)
	_, err = c.Decode(token)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = c.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_TamperedTokenRejected(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")

	token, err := c.Issue(testIdentity(), "alice@example.com")
	require.NoError(t, err)

	for i := range len(token) {
		b := []byte(token)
		b[i] ^= 0x01
		_, err := c.Decode(string(b))
		assert.ErrorIs(t, err, ErrInvalidToken, "flipping byte %d (%q) must invalidate the token", i, token[i])
	}
}

func TestCodec_WrongSecretRejected(t *testing.T) {
	issuer, _ := newTestCodec(t, "secret-a")
	verifier, _ := newTestCodec(t, "secret-b")

	token, err := issuer.Issue(testIdentity(), "")
	require.NoError(t, err)

	_, err = verifier.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_DisallowedAlgorithms(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")
	claims := Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testIdentity().UserID.String(),
			ExpiresAt: jwt.NewNumericDate(testStart.Add(time.Hour)),
		},
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.Decode(none)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg=none must be rejected")

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = c.Decode(hs512)
	assert.ErrorIs(t, err, ErrInvalidToken, "HS512 must be rejected")
}

func TestCodec_MissingExpiryRejected(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Subject: testIdentity().UserID.String()},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = c.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_MalformedInput(t *testing.T) {
	c, _ := newTestCodec(t, "s3cret")
	for _, token := range []string{"", "malformed.token", "a.b.c", "not a token at all"} {
		_, err := c.Decode(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestNewCodec_EmptySecret(t *testing.T) {
	_, err := NewCodec(nil, 0, nil)
	assert.Error(t, err)
}

func TestNewCodecFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		auth    config.AuthConfig
		wantErr bool
	}{
		{"configured secret", config.AuthConfig{JWTSecret: "k", Environment: config.EnvProduction, TokenTTLHours: 1}, false},
		{"development fallback", config.AuthConfig{Environment: config.EnvDevelopment}, false},
		{"production without secret", config.AuthConfig{Environment: config.EnvProduction}, true},
		{"staging without secret", config.AuthConfig{Environment: config.EnvStaging}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCodecFromConfig(&config.Config{Auth: tt.auth}, testLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			token, err := c.Issue(testIdentity(), "")
			require.NoError(t, err)
			_, err = c.Decode(token)
			assert.NoError(t, err)
		})
	}
}

func TestNewCodecFromConfig_FallbackMatchesDevelopmentSecret(t *testing.T) {
	c, err := NewCodecFromConfig(&config.Config{Auth: config.AuthConfig{Environment: config.EnvDevelopment}}, testLogger())
	require.NoError(t, err)

	dev, err := NewCodec([]byte(config.DevelopmentSecret), 0, nil)
	require.NoError(t, err)

	token, err := c.Issue(testIdentity(), "")
	require.NoError(t, err)
	_, err = dev.Decode(token)
	assert.NoError(t, err)
}
