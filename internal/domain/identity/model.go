package identity

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPrimaryColor   = "#1e3a8a"
	DefaultSecondaryColor = "#f59e0b"
)

// ClinicProfile is the branding of one clinic. Each tenant has exactly one.
type ClinicProfile struct {
	Name           string    `json:"name"`
	PrimaryColor   string    `json:"primary_color"`
	SecondaryColor string    `json:"secondary_color"`
	LogoURL        string    `json:"logo_url"`
	DoctorName     string    `json:"doctor_name"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// LoginResult is returned to a caller that authenticated successfully.
type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *User          `json:"user"`
	Clinic    *ClinicProfile `json:"clinic"`
}
