//go:build race

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHashCost_RaceBuild(t *testing.T) {
	assert.Equal(t, bcrypt.MinCost, passwordHashCost())
	assert.Equal(t, bcrypt.MinCost, NewBcryptHasher(0).Cost)
}
