package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	jose "gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"

	"CapIot.relaysync/internal/models"
	"CapIot.relaysync/internal/repository"
)

const (
	bcryptCost = 10
	// TokenTTL is how long an issued access token stays valid.
	TokenTTL = 24 * time.Hour
)

// TokenConfig describes the tokens Login issues; the auth middleware must
// be configured with the same values.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// UserClaims are the application claims carried next to the registered
// ones.
type UserClaims struct {
	Username string `json:"username"`
}

// Registration is the register request body.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
	User      models.UserProfile `json:"user"`
}

// UserService manages operator accounts and issues access tokens.
type UserService struct {
	users  repository.UserRepository
	tokens TokenConfig
	lg     *slog.Logger
	now    func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(users repository.UserRepository, tokens TokenConfig, lg *slog.Logger) *UserService {
	return &UserService{users: users, tokens: tokens, lg: lg.With("component", "users"), now: time.Now}
}

// Register creates an account. ErrConflict when the username or email is
// taken.
func (s *UserService) Register(ctx context.Context, r Registration) (models.UserProfile, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	if r.Username == "" || r.Email == "" || r.Password == "" {
		return models.UserProfile{}, invalid("username", "username, email, and password required")
	}

	exists, err := s.users.UserExists(ctx, r.Username, r.Email)
	if err != nil {
		return models.UserProfile{}, err
	}
	if exists {
		return models.UserProfile{}, ErrConflict
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcryptCost)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{Username: r.Username, Email: r.Email, Password: string(hash), FullName: r.FullName}
	if err := s.users.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.UserProfile{}, ErrConflict
		}
		return models.UserProfile{}, err
	}
	s.lg.Info("user registered", "username", user.Username)
	return user.Profile(), nil
}

// Login checks the password and issues a signed HS256 token.
func (s *UserService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if username == "" || password == "" {
		return LoginResult{}, invalid("username", "username and password required")
	}
	user, err := s.users.FindUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(TokenTTL)
	token, err := s.sign(user, now, expires)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: expires, User: user.Profile()}, nil
}

func (s *UserService) sign(user models.User, now, expires time.Time) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.tokens.Secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("token signer: %w", err)
	}
	registered := jwt.Claims{
		Issuer:    s.tokens.Issuer,
		Subject:   strconv.FormatUint(uint64(user.ID), 10),
		Audience:  jwt.Audience{s.tokens.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(expires),
	}
	raw, err := jwt.Signed(signer).Claims(registered).Claims(UserClaims{Username: user.Username}).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return raw, nil
}
