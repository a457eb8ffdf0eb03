package auth

import (
	"errors"
	"fmt"
	"time"

	"coderoom/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid session token")

const resumeTokenIssuer = "coderoom"

// ResumeClaims bind a session token to one username in one room.
type ResumeClaims struct {
	RoomID string `json:"room_id"`
	jwt.RegisteredClaims
}

type Service struct {
	secret    []byte
	expiresIn time.Duration
	cost      int
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		secret:    cfg.JWT.Secret,
		expiresIn: cfg.JWT.ExpiresIn,
		cost:      bcrypt.DefaultCost,
	}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword reports whether password matches hash. bcrypt compares in
// constant time.
func (s *Service) ComparePassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *Service) IssueResumeToken(roomID, username string) (string, error) {
	now := time.Now()
	claims := ResumeClaims{
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    resumeTokenIssuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ValidateResumeToken checks that tokenString was issued for username in roomID.
func (s *Service) ValidateResumeToken(tokenString, roomID, username string) error {
	token, err := jwt.ParseWithClaims(tokenString, &ResumeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(resumeTokenIssuer))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ResumeClaims)
	if !ok || !token.Valid {
		return ErrInvalidToken
	}
	if claims.RoomID != roomID || claims.Subject != username {
		return fmt.Errorf("%w: issued for another room or user", ErrInvalidToken)
	}
	return nil
}
