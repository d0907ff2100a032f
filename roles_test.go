package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-auth-server"
)

func TestContainsRole(t *testing.T) {
	roles := []string{"Admin", " User "}

	assert.True(t, auth.ContainsRole(roles, "admin"))
	assert.True(t, auth.ContainsRole(roles, "USER"))
	assert.False(t, auth.ContainsRole(roles, "Auditor"))
	assert.False(t, auth.ContainsRole(roles, " "))
	assert.False(t, auth.ContainsRole(nil, "Admin"))
}

func TestFirstRole(t *testing.T) {
	role, ok := auth.FirstRole([]string{"User", "Admin"})
	assert.True(t, ok)
	assert.Equal(t, "User", role)

	_, ok = auth.FirstRole(nil)
	assert.False(t, ok)
}
