package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"chatify/internal/content"
	"chatify/internal/models"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 7 * 24 * time.Hour
	MinPasswordLength  = 6
)

var (
	ErrUserExists         = fmt.Errorf("%w: email already exists", models.ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", models.ErrUnauthorized)
)

type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	models.User
	Token       string `json:"token"`
	TokenExpiry int64  `json:"tokenExpiry"`
}

// Credentials is a user together with the password hash. Accounts with an
// empty hash cannot log in.
type Credentials struct {
	models.User
	PasswordHash string
}

type CredentialStore interface {
	CreateUser(ctx context.Context, credentials Credentials) error
	FindCredentialsByEmail(ctx context.Context, email string) (Credentials, error)
	FindUser(ctx context.Context, id string) (models.User, error)
}

type Config struct {
	Secret      string        `json:"secret"`
	secretBytes []byte        `json:"-"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

// AuthService issues and verifies session tokens. Tokens are HS256 JWTs whose
// subject is the user id; logged out tokens are remembered until they expire.
type AuthService struct {
	Config
	store   CredentialStore
	revoked geche.Geche[string, struct{}]
	cost    int
	now     func() time.Time
}

func NewAuthService(ctx context.Context, config Config, store CredentialStore) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:  config,
		store:   store,
		revoked: geche.NewMapTTLCache[string, struct{}](ctx, config.TokenExpiry, time.Minute),
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
	}, nil
}

func (as *AuthService) Signup(ctx context.Context, req SignupRequest) (LoginResponse, error) {
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return LoginResponse{}, fmt.Errorf("%w: full name is required", models.ErrValidation)
	}
	if err := content.ValidateEmail(req.Email); err != nil {
		return LoginResponse{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if utf8.RuneCountInString(req.Password) < MinPasswordLength {
		return LoginResponse{}, fmt.Errorf("%w: password must be at least %d characters", models.ErrValidation, MinPasswordLength)
	}

	user, err := as.createUser(ctx, req.Email, fullName, req.Password)
	if err != nil {
		return LoginResponse{}, err
	}
	return as.issue(user)
}

// AddUser creates an account with a random password and returns that password.
func (as *AuthService) AddUser(ctx context.Context, email, fullName string) (models.User, string, error) {
	if err := content.ValidateEmail(email); err != nil {
		return models.User{}, "", fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if fullName = strings.TrimSpace(fullName); fullName == "" {
		fullName = strings.SplitN(email, "@", 2)[0]
	}

	password, err := generatePassword()
	if err != nil {
		return models.User{}, "", err
	}
	user, err := as.createUser(ctx, email, fullName, password)
	if err != nil {
		return models.User{}, "", err
	}
	return user, password, nil
}

func (as *AuthService) createUser(ctx context.Context, email, fullName, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), as.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := as.now().UTC()
	creds := Credentials{
		User: models.User{
			ID:        uuid.NewString(),
			Email:     strings.ToLower(strings.TrimSpace(email)),
			FullName:  fullName,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: string(hash),
	}
	if err := as.store.CreateUser(ctx, creds); err != nil {
		return models.User{}, err
	}
	return creds.User, nil
}

func (as *AuthService) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	creds, err := as.store.FindCredentialsByEmail(ctx, req.Email)
	if errors.Is(err, models.ErrNotFound) {
		return LoginResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResponse{}, err
	}

	if creds.PasswordHash == "" {
		return LoginResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResponse{}, ErrInvalidCredentials
	}

	resp, err := as.issue(creds.User)
	if err != nil {
		slog.Error("login failed", "user_id", creds.ID, "error", err)
		return LoginResponse{}, err
	}
	return resp, nil
}

// Logoff revokes token until its natural expiry.
func (as *AuthService) Logoff(token string) error {
	claims, err := as.parse(token)
	if err != nil {
		return err
	}
	as.revoked.Set(claims.ID, struct{}{})
	return nil
}

// GetUserID returns the user id a valid, unrevoked token was issued to.
func (as *AuthService) GetUserID(token string) (string, error) {
	claims, err := as.parse(token)
	if err != nil {
		return "", err
	}
	if _, err := as.revoked.Get(claims.ID); err == nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// CurrentUser resolves token to the stored user.
func (as *AuthService) CurrentUser(ctx context.Context, token string) (models.User, error) {
	userID, err := as.GetUserID(token)
	if err != nil {
		return models.User{}, err
	}
	user, err := as.store.FindUser(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.User{}, ErrInvalidToken
	}
	return user, err
}

func (as *AuthService) issue(user models.User) (LoginResponse, error) {
	now := as.now()
	expiresAt := now.Add(as.TokenExpiry)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.secretBytes)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return LoginResponse{
		User:        user,
		Token:       token,
		TokenExpiry: expiresAt.Unix(),
	}, nil
}

func (as *AuthService) parse(token string) (*jwt.RegisteredClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return as.secretBytes, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(as.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
