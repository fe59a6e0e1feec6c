// Package auth verifies password credentials and drives the password reset
// flow. It owns the credential columns on the users table; identity CRUD
// lives in the principal package.
package auth

// Credential is a user row with its password material. It never leaves this
// package in serialized form.
type Credential struct {
	UserID         int64
	Username       string
	Name           string
	HashedPassword []byte
	Salt           []byte
}
