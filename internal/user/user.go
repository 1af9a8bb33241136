// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     user
// Description: User accounts, password hashing and login tokens
// License:     MIT
// ============================================================================

// Package user stores accounts as Storable entities and provides the
// commands to load, save, delete and authenticate them.
package user

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/villain-cms/villain/internal/storage"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Type is the storable discriminator of User.
const Type = "user.User"

// MinPasswordLength is the shortest password SetPassword accepts.
const MinPasswordLength = 8

// BcryptCost is the bcrypt work factor for new hashes.
var BcryptCost = bcrypt.DefaultCost

// Property names
const (
	fieldUsername = "username"
	fieldEmail    = "email"
	fieldName     = "displayName"
	fieldPassword = "passwordHash"
	fieldRoles    = "roles"
)

func init() {
	storage.RegisterType(Type, func() storage.Storable { return &User{Decorator: storage.NewDecorator(nil)} })
}

// User is a user account.
type User struct {
	storage.Decorator
}

// New creates a user with the given username.
func New(username string) *User {
	u := &User{Decorator: storage.NewDecorator(nil)}
	u.Set(fieldUsername, username)
	return u
}

// StorableType implements storage.Typed.
func (u *User) StorableType() string { return Type }

// ID returns the datastore id, empty until the user was saved.
func (u *User) ID() string { return u.GetString("_id") }

func (u *User) Username() string         { return u.GetString(fieldUsername) }
func (u *User) SetUsername(name string)  { u.Set(fieldUsername, name) }
func (u *User) Email() string            { return u.GetString(fieldEmail) }
func (u *User) SetEmail(email string)    { u.Set(fieldEmail, email) }
func (u *User) DisplayName() string      { return u.GetString(fieldName) }
func (u *User) SetDisplayName(n string)  { u.Set(fieldName, n) }
func (u *User) SetRoles(roles ...string) { u.Set(fieldRoles, roles) }

// Roles returns the role names of the user.
func (u *User) Roles() []string {
	switch v := u.Get(fieldRoles).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HasRole reports whether the user has role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// SetPassword stores a bcrypt hash of password. The plain text is never
// kept.
func (u *User) SetPassword(password string) error {
	if len(password) < MinPasswordLength {
		return verrors.Newf("password must be at least %d characters", MinPasswordLength).
			WithCode(verrors.CodeInvalidInput).
			WithDetail("field", "password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return verrors.Wrap(err, "hash password").WithCode(verrors.CodeInvalidInput)
	}
	u.Set(fieldPassword, string(hash))
	return nil
}

// HasPassword reports whether a password hash is set.
func (u *User) HasPassword() bool {
	return u.GetString(fieldPassword) != ""
}

// CheckPassword compares password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	hash := u.GetString(fieldPassword)
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
