package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"boutique/backend/internal/domain"
	"boutique/backend/internal/service"
)

const tokenIssuer = "boutique"

var errInvalidToken = errors.New("invalid or expired session token")

// SessionManager issues and verifies the signed tokens that carry an
// employee and store selection between requests.
type SessionManager struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Store string `json:"store"`
}

func NewSessionManager(secret string, tokenTTL time.Duration) *SessionManager {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &SessionManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

func (m *SessionManager) Issue(session domain.Session) (domain.SessionResponse, error) {
	now := m.now().UTC()
	expiresAt := now.Add(m.tokenTTL)
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(session.EmployeeID, 10),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Store: string(session.Store),
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Session:   session,
	}, nil
}

func (m *SessionManager) Parse(tokenStr string) (domain.Session, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return domain.Session{}, errInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return domain.Session{}, errInvalidToken
	}
	employeeID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || employeeID < 1 {
		return domain.Session{}, errInvalidToken
	}
	storeID, err := domain.ParseStore(claims.Store)
	if err != nil {
		return domain.Session{}, errInvalidToken
	}
	return domain.Session{EmployeeID: employeeID, Store: storeID}, nil
}

// requireSession rejects requests without a valid bearer token and places the
// token's session on the request context.
func (a *API) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		session, err := a.sessions.Parse(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithSession(r.Context(), session)))
	})
}
