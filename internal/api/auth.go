package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	purposeAccess = "doctor_access"
	purposeOAuth  = "google_oauth"
	oauthStateTTL = 10 * time.Minute
)

var errInvalidToken = errors.New("invalid token")

// DoctorAuth issues and checks the HS256 tokens that guard the doctor panel.
type DoctorAuth struct {
	secret   []byte
	doctorID uuid.UUID
	now      func() time.Time
}

func NewDoctorAuth(secret string, doctorID uuid.UUID) *DoctorAuth {
	return &DoctorAuth{secret: []byte(secret), doctorID: doctorID, now: time.Now}
}

// IssueToken signs an access token for the configured doctor.
func (a *DoctorAuth) IssueToken(ttl time.Duration) (string, error) {
	return a.sign(purposeAccess, ttl)
}

// IssueState signs the short lived OAuth state parameter.
func (a *DoctorAuth) IssueState() (string, error) {
	return a.sign(purposeOAuth, oauthStateTTL)
}

func (a *DoctorAuth) VerifyState(raw string) error {
	_, err := a.parse(raw, purposeOAuth)
	return err
}

func (a *DoctorAuth) sign(purpose string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("doctor jwt secret is not configured")
	}
	now := a.now()
	claims := jwt.MapClaims{
		"sub": a.doctorID.String(),
		"pur": purpose,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *DoctorAuth) parse(raw, purpose string) (uuid.UUID, error) {
	if len(a.secret) == 0 {
		return uuid.Nil, errInvalidToken
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return uuid.Nil, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errInvalidToken
	}
	if p, _ := claims["pur"].(string); p != purpose {
		return uuid.Nil, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, errInvalidToken
	}
	id, err := uuid.Parse(sub)
	if err != nil || id != a.doctorID {
		return uuid.Nil, errInvalidToken
	}
	return id, nil
}

// Middleware rejects requests without a valid doctor bearer token.
func (a *DoctorAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if _, err := a.parse(raw, purposeAccess); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
