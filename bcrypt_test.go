package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-auth-server"
)

func TestBcryptHasher(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  auth.ErrNoEmptyString,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := fastHasher.HashPassword(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, hash)

			cost, err := bcrypt.Cost([]byte(hash))
			require.NoError(t, err)
			assert.Equal(t, 4, cost)

			assert.NoError(t, fastHasher.ComparePasswordAndHash(tt.password, hash))
			assert.ErrorIs(t, fastHasher.ComparePasswordAndHash("wrong", hash), auth.ErrMismatchedHashAndPassword)
		})
	}
}

func TestNewBcryptHasher_OutOfRangeCost(t *testing.T) {
	h := auth.NewBcryptHasher(0)
	assert.GreaterOrEqual(t, h.Cost, bcrypt.MinCost)
	assert.LessOrEqual(t, h.Cost, bcrypt.MaxCost)

	h = auth.NewBcryptHasher(64)
	assert.LessOrEqual(t, h.Cost, bcrypt.MaxCost)
}

func TestComparePasswordAndHash_Malformed(t *testing.T) {
	err := auth.ComparePasswordAndHash("secret", "not-a-hash")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
}

func TestHashPassword_Salted(t *testing.T) {
	hash1, err := fastHasher.HashPassword("samePassword")
	require.NoError(t, err)
	hash2, err := fastHasher.HashPassword("samePassword")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
}
