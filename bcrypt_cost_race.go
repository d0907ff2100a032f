//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// Race builds hash at the minimum cost so the detector's slowdown stays
// within test timeouts.
func passwordHashCost() int {
	return bcrypt.MinCost
}
