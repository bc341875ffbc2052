package model

import (
	"strings"
	"time"

	"umuhanda-backend/internal/domain"

	"github.com/google/uuid"
)

// User is a learner account. Subscriptions are not embedded; grants reference
// the user by ID.
type User struct {
	ID                       string     `json:"id"`
	Names                    string     `json:"names"`
	Email                    string     `json:"email"`
	PhoneNumber              string     `json:"phone_number"`
	PasswordHash             string     `json:"-"`
	Country                  string     `json:"country,omitempty"`
	City                     string     `json:"city,omitempty"`
	Address                  string     `json:"address,omitempty"`
	BirthDate                *time.Time `json:"birth_date,omitempty"`
	IsSubscribed             bool       `json:"is_subscribed"`
	AllowedToDownloadGazette bool       `json:"allowedToDownloadGazette"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// NewUser validates registration input. passwordHash must already be hashed.
func NewUser(names, email, phone, passwordHash string) (*User, error) {
	names = strings.TrimSpace(names)
	email = NormalizeEmail(email)
	phone = strings.TrimSpace(phone)
	if names == "" || phone == "" || passwordHash == "" {
		return nil, domain.ErrInvalidArgument
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:           uuid.NewString(),
		Names:        names,
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// NormalizeEmail lower-cases and trims an address so lookups by invoice
// customer email match what was stored at registration.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
