//go:build !race

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordHashCost(t *testing.T) {
	assert.Equal(t, 12, passwordHashCost())
	assert.Equal(t, 12, NewBcryptHasher(99).Cost)
}
