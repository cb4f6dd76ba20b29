package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/model"
)

type JWTService interface {
	GenerateAccessToken(user *model.User) (string, error)
	GenerateRefreshToken(user *model.User) (string, error)
	ValidateToken(token string) (*model.TokenClaims, error)
	ValidateRefreshToken(token string) (*model.TokenClaims, error)
	AccessTTL() time.Duration
}

type jwtService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewJWTService(secret, issuer string, accessTTL, refreshTTL time.Duration) JWTService {
	return &jwtService{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *jwtService) AccessTTL() time.Duration { return s.accessTTL }

func (s *jwtService) GenerateAccessToken(user *model.User) (string, error) {
	return s.generate(user, model.TokenTypeAccess, s.accessTTL)
}

func (s *jwtService) GenerateRefreshToken(user *model.User) (string, error) {
	return s.generate(user, model.TokenTypeRefresh, s.refreshTTL)
}

func (s *jwtService) generate(user *model.User, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &model.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Email:     user.Email,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateToken(tokenString string) (*model.TokenClaims, error) {
	return s.parse(tokenString, model.TokenTypeAccess)
}

func (s *jwtService) ValidateRefreshToken(tokenString string) (*model.TokenClaims, error) {
	return s.parse(tokenString, model.TokenTypeRefresh)
}

func (s *jwtService) parse(tokenString, wantType string) (*model.TokenClaims, error) {
	claims := &model.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, model.ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, model.ErrInvalidToken
	}
	return claims, nil
}
