package users

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

// Role gates what the logged in user may do in the directory.
type Role string

const (
	RoleUser  Role = "USER"  // Browses centers, likes, comments, books visits
	RoleCEO   Role = "CEO"   // Owns centers and their filials
	RoleAdmin Role = "ADMIN" // Views aggregate impact metrics
)

// ParseRole maps a raw claim or field onto a known role. Unknown or empty values
// are reported as not ok.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleCEO:
		return RoleCEO, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

func (r Role) IsCEO() bool   { return r == RoleCEO }
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// Profile is the server side user record. Only Role is interpreted by the client.
type Profile struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      Role   `json:"role,omitempty"`
	Image     string `json:"image,omitempty"` // Uploaded image filename
}

// FullName joins the name fields, skipping empty ones.
func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ProfileUpdate carries a partial profile; nil fields are left untouched.
type ProfileUpdate struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Image     *string `json:"image,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u ProfileUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil && u.Phone == nil && u.Image == nil
}

// Apply merges the set fields into p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Image != nil {
		p.Image = *u.Image
	}
}

// Credentials are the login form fields.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ValidateCredentials rejects malformed login input before it is sent.
func ValidateCredentials(c Credentials) error {
	email := strings.TrimSpace(c.Email)
	if email == "" {
		return fmt.Errorf("email is required: %w", apperrors.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("email %q is not valid: %w", email, apperrors.ErrValidation)
	}
	if c.Password == "" {
		return fmt.Errorf("password is required: %w", apperrors.ErrValidation)
	}
	return nil
}

// ValidatePasswordStrength applies the sign up rules: at least 8 characters
// with an upper case letter, a lower case letter and a digit.
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long: %w", apperrors.ErrValidation)
	}
	rules := []struct {
		ok   func(rune) bool
		what string
	}{
		{unicode.IsUpper, "an uppercase letter"},
		{unicode.IsLower, "a lowercase letter"},
		{unicode.IsDigit, "a number"},
	}
	for _, rule := range rules {
		if !strings.ContainsFunc(password, rule.ok) {
			return fmt.Errorf("password must contain %s: %w", rule.what, apperrors.ErrValidation)
		}
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
