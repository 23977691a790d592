package identity

import (
	"context"
	"errors"
	"mime/multipart"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/equivet/equivet/internal/platform/apperr"
	"github.com/equivet/equivet/internal/platform/auth"
	"github.com/equivet/equivet/internal/platform/blobstore"
	"github.com/equivet/equivet/internal/platform/db"
)

// ErrInvalidCredentials covers an unknown email and a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

type Service struct {
	clinic ClinicRepository
	users  UserRepository
	tokens *auth.TokenManager
	images *blobstore.Images
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(clinic ClinicRepository, users UserRepository, tokens *auth.TokenManager, images *blobstore.Images, now func() time.Time, logger zerolog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{clinic: clinic, users: users, tokens: tokens, images: images, now: now, logger: logger}
}

// Login checks email and password against the users of the clinic in ctx
// and issues an access token scoped to that clinic.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Invalid("email and password are required")
	}
	tenantID := db.TenantFromContext(ctx)
	log := s.logger.With().Str("tenant_id", tenantID).Str("email", email).Logger()

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Info().Msg("login rejected: unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		log.Info().Str("user_id", u.ID.String()).Msg("login rejected: wrong password")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(auth.Session{
		UserID:   u.ID.String(),
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		TenantID: tenantID,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		log.Warn().Err(err).Msg("record last login failed")
	} else {
		u.LastLogin = &now
	}

	clinic, err := s.clinic.Get(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("login")
	return &LoginResult{Token: token, ExpiresAt: exp, User: u, Clinic: clinic}, nil
}

func (s *Service) GetClinic(ctx context.Context) (*ClinicProfile, error) {
	return s.clinic.Get(ctx)
}

// UpdateClinic rewrites the clinic branding. Blank colors fall back to the
// defaults. The logo is managed by SetLogo and kept as is here.
func (s *Service) UpdateClinic(ctx context.Context, p *ClinicProfile) error {
	p.Name = strings.TrimSpace(p.Name)
	p.DoctorName = strings.TrimSpace(p.DoctorName)
	p.PrimaryColor = strings.TrimSpace(p.PrimaryColor)
	p.SecondaryColor = strings.TrimSpace(p.SecondaryColor)
	if len([]rune(p.Name)) < 2 {
		return apperr.Invalid("clinic name must be at least 2 characters")
	}
	if p.PrimaryColor == "" {
		p.PrimaryColor = DefaultPrimaryColor
	}
	if p.SecondaryColor == "" {
		p.SecondaryColor = DefaultSecondaryColor
	}
	if !colorPattern.MatchString(p.PrimaryColor) || !colorPattern.MatchString(p.SecondaryColor) {
		return apperr.Invalid("colors must be #rrggbb")
	}
	prev, err := s.clinic.Get(ctx)
	if err != nil {
		return err
	}
	p.LogoURL = prev.LogoURL
	return s.clinic.Update(ctx, p)
}

// SetLogo stores an uploaded image as the clinic logo.
func (s *Service) SetLogo(ctx context.Context, fh *multipart.FileHeader) (*ClinicProfile, error) {
	p, err := s.clinic.Get(ctx)
	if err != nil {
		return nil, err
	}
	url, err := s.images.SaveUpload(ctx, db.TenantFromContext(ctx), "clinic", fh)
	if err != nil {
		return nil, err
	}
	old := p.LogoURL
	p.LogoURL = url
	if err := s.clinic.Update(ctx, p); err != nil {
		_ = s.images.Remove(ctx, url)
		return nil, err
	}
	if old != "" {
		if err := s.images.Remove(ctx, old); err != nil {
			s.logger.Warn().Err(err).Str("url", old).Msg("remove previous logo failed")
		}
	}
	return p, nil
}

// CreateUser adds a staff member with a bcrypt-hashed password.
func (s *Service) CreateUser(ctx context.Context, u *User, password string) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)
	if !emailPattern.MatchString(u.Email) {
		return apperr.Invalid("invalid email: %s", u.Email)
	}
	if len([]rune(u.Name)) < 2 {
		return apperr.Invalid("name must be at least 2 characters")
	}
	if !auth.ValidRole(u.Role) {
		return apperr.Invalid("invalid role: %s", u.Role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		if len(password) < auth.MinPasswordLength {
			return apperr.Invalid("%s", err.Error())
		}
		return err
	}
	u.PasswordHash = hash
	return s.users.Create(ctx, u)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}
