package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(testSecret)

	profile := &UserProfile{
		Sub:      "user-123",
		Name:     "Ada",
		Email:    "ada@example.com",
		Username: "ada",
	}
	claims := NewProviderClaims(profile, "access-token", "id-token")

	token, err := codec.Encode(claims, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded := codec.Decode(token)
	require.NotNil(t, decoded)

	assert.True(t, decoded.Bool(KeyIsAuthenticated))
	assert.Equal(t, "access-token", decoded.String(KeyAccessToken))
	assert.Equal(t, "id-token", decoded.String(KeyIDToken))

	// iat/exp are attached during encoding.
	assert.Contains(t, decoded, "iat")
	assert.Contains(t, decoded, "exp")

	got := decoded.Profile()
	require.NotNil(t, got)
	assert.Equal(t, "user-123", got.Sub)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, "ada@example.com", got.Email)
}

func TestCodec_RoundTripVirtualClaims(t *testing.T) {
	codec := NewCodec(testSecret)
	now := time.Now()

	profile := &UserProfile{Sub: "virt-1", Expiry: now.Add(time.Hour).Unix()}
	token, err := codec.Encode(NewVirtualClaims(profile, now), time.Hour)
	require.NoError(t, err)

	decoded := codec.Decode(token)
	require.NotNil(t, decoded)
	assert.True(t, decoded.Bool(KeyIsVirtual))
	assert.True(t, decoded.Bool(KeyIsAuthenticated))
	assert.EqualValues(t, now.UnixMilli(), decoded[KeyLastVerified])
}

func TestCodec_TamperRejection(t *testing.T) {
	codec := NewCodec(testSecret)
	token, err := codec.Encode(NewErrorClaims("boom"), time.Hour)
	require.NoError(t, err)

	// Flip one character at every position; decode must fail every time.
	for i := 0; i < len(token); i++ {
		mutated := []byte(token)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		if string(mutated) == token {
			continue
		}
		assert.Nil(t, codec.Decode(string(mutated)), "position %d", i)
	}
}

func TestCodec_WrongSecret(t *testing.T) {
	token, err := NewCodec(testSecret).Encode(NewErrorClaims("boom"), time.Hour)
	require.NoError(t, err)

	other := NewCodec("ffffffffffffffffffffffffffffffff")
	assert.Nil(t, other.Decode(token))
	assert.False(t, other.Verify(token))
}

func TestCodec_ExpiredToken(t *testing.T) {
	codec := NewCodec(testSecret)
	token, err := codec.Encode(NewProviderClaims(&UserProfile{Sub: "u"}, "", ""), -time.Second)
	require.NoError(t, err)

	// Correct signature, expired lifetime: identical to no session.
	assert.Nil(t, codec.Decode(token))
	assert.False(t, codec.Verify(token))
}

func TestCodec_MalformedInput(t *testing.T) {
	codec := NewCodec(testSecret)

	for _, input := range []string{
		"",
		"garbage",
		"a.b.c",
		"eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1In0.",
	} {
		assert.Nil(t, codec.Decode(input), "input %q", input)
	}
}

func TestClaims_ProfileMissingSubject(t *testing.T) {
	claims := Claims{KeyUserInfo: map[string]any{"name": "nobody"}}
	assert.Nil(t, claims.Profile())

	assert.Nil(t, Claims{}.Profile())
}

func TestUserProfile_Expired(t *testing.T) {
	now := time.Now()

	fresh := &UserProfile{Sub: "u", Expiry: now.Add(time.Minute).Unix()}
	assert.False(t, fresh.Expired(now))

	stale := &UserProfile{Sub: "u", Expiry: now.Add(-time.Minute).Unix()}
	assert.True(t, stale.Expired(now))

	// No expiry set: the enclosing token still carries one.
	assert.False(t, (&UserProfile{Sub: "u"}).Expired(now))
}
