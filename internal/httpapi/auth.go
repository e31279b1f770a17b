package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/store"
)

var (
	errInvalidToken = errors.New("invalid or expired token")
	errUnknownStaff = errors.New("token subject is not a staff member")
)

// StaffResolver is satisfied by identity.Directory.
type StaffResolver interface {
	Staff(ctx context.Context, id string) (domain.Staff, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	staff    StaffResolver
}

type staffClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, staff StaffResolver) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		staff:    staff,
	}
}

// Issue signs a bearer token for a staff member. Credentials are checked
// upstream; whoever calls Issue vouches for the staff identity.
func (a *AuthManager) Issue(staff domain.Staff) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   staff.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "farmtech",
		},
		Role: staff.Role,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &staffClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("farmtech"))
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{StaffID: sub, Role: claims.Role}, nil
}

// Authenticate verifies the token and re-reads the staff record, so a role
// change or removal takes effect before the token expires.
func (a *AuthManager) Authenticate(ctx context.Context, tokenStr string) (domain.Actor, error) {
	actor, err := a.ParseToken(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}
	if a.staff == nil {
		return actor, nil
	}
	staff, err := a.staff.Staff(ctx, actor.StaffID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Actor{}, errUnknownStaff
	}
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{StaffID: staff.ID, Role: staff.Role}, nil
}
