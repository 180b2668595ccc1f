package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/legaleagle/legal-eagle-api/databases"
	"github.com/legaleagle/legal-eagle-api/models"
)

// MiddlewareDB holds the two principal stores a bearer token can resolve
// against, plus the secret for admin JWTs
type MiddlewareDB struct {
	UDB       databases.UserDatabase
	LDB       databases.LawyerDatabase
	JWTSecret string
}

var authenticator auth.Authenticator
var cache store.Cache
var adminSecret string

// tokenCacheTTL keeps cached token entries short-lived so logout and
// session expiry propagate quickly
const tokenCacheTTL = 15 * time.Minute

// SetupGoGuardian sets up the go-guardian middleware
func (m MiddlewareDB) SetupGoGuardian() {
	authenticator = auth.New()
	cache = store.NewFIFO(context.Background(), tokenCacheTTL)
	tokenStrategy := bearer.New(m.AuthenticateToken, cache)

	authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
	adminSecret = m.JWTSecret
}

// Middleware resolves the bearer token to a principal and stores it on the
// request context before handing off to the route handler
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := adminPrincipal(r); ok {
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
			return
		}
		info, err := authenticator.Authenticate(r)
		if err != nil {
			zap.S().Errorw("unauthorized",
				"url", r.URL)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		p, err := principalFromInfo(info)
		if err != nil {
			zap.S().Errorw("failed to rebuild principal from token cache", "error", err)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}
		zap.S().Debugf("principal %s authenticated", info.UserName())
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// AuthenticateToken is the bearer strategy callback: the token is tried
// against the direct-lawyer store first, then the shared-role user store.
// First match wins. Sessions past their TTL never authenticate, even
// before the purge job removes them.
func (m MiddlewareDB) AuthenticateToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	now := time.Now()

	lawyer, err := m.LDB.FindOne(ctx, bson.M{"sessions.token": token})
	if err == nil && sessionAlive(lawyer.Sessions, token, now) {
		ext := map[string][]string{
			"kind":     {KindDirectLawyer},
			"role":     {models.RoleLawyer},
			"lawyerId": {lawyer.ID.Hex()},
		}
		return auth.NewDefaultUser(lawyer.Email, lawyer.ID.Hex(), nil, ext), nil
	}

	user, err := m.UDB.FindOne(ctx, bson.M{"sessions.token": token})
	if err != nil {
		return nil, fmt.Errorf("invalid session")
	}
	if !sessionAlive(user.Sessions, token, now) {
		return nil, fmt.Errorf("session expired")
	}

	ext := map[string][]string{
		"kind": {KindSharedUser},
		"role": {user.Role},
	}
	if user.Role == models.RoleLawyer {
		// shared-role lawyers act through their profile back-reference
		if profile, perr := m.LDB.FindOne(ctx, bson.M{"userId": user.ID}); perr == nil {
			ext["lawyerId"] = []string{profile.ID.Hex()}
		}
	}
	return auth.NewDefaultUser(user.Email, user.ID.Hex(), nil, ext), nil
}

// ResolvePrincipal turns a raw token into a Principal outside the HTTP
// middleware path. Admin JWTs are honored the same way Middleware honors
// them; everything else goes through the session stores.
func (m MiddlewareDB) ResolvePrincipal(ctx context.Context, token string) (Principal, error) {
	if m.JWTSecret != "" {
		if email, err := VerifyAdminToken(m.JWTSecret, token); err == nil {
			return Principal{Kind: KindAdmin, Email: email}, nil
		}
	}
	info, err := m.AuthenticateToken(ctx, nil, token)
	if err != nil {
		return Principal{}, err
	}
	return principalFromInfo(info)
}

func sessionAlive(sessions []models.Session, token string, now time.Time) bool {
	for _, s := range sessions {
		if s.Token == token {
			return !s.Expired(now)
		}
	}
	return false
}

func principalFromInfo(info auth.Info) (Principal, error) {
	id, err := primitive.ObjectIDFromHex(info.ID())
	if err != nil {
		return Principal{}, err
	}
	p := Principal{
		ID:    id,
		Email: info.UserName(),
	}
	ext := info.Extensions()
	if v := ext["kind"]; len(v) > 0 {
		p.Kind = v[0]
	}
	if v := ext["role"]; len(v) > 0 {
		p.Role = v[0]
	}
	if v := ext["lawyerId"]; len(v) > 0 {
		if lid, lerr := primitive.ObjectIDFromHex(v[0]); lerr == nil {
			p.LawyerID = &lid
		}
	}
	return p, nil
}

// CacheToken primes the bearer token cache after register/login so the
// first authenticated request skips a store round trip
func CacheToken(r *http.Request, token string, info auth.Info) {
	if authenticator == nil {
		return
	}
	tokenStrategy := authenticator.Strategy(bearer.CachedStrategyKey)
	auth.Append(tokenStrategy, token, info, r)
}

// SessionInfo builds the cacheable auth info for a freshly issued session
func SessionInfo(kind, email, id, role, lawyerID string) auth.Info {
	ext := map[string][]string{
		"kind": {kind},
		"role": {role},
	}
	if lawyerID != "" {
		ext["lawyerId"] = []string{lawyerID}
	}
	return auth.NewDefaultUser(email, id, nil, ext)
}

// ForgetToken revokes a token from the bearer cache on logout
func ForgetToken(r *http.Request, token string) {
	if authenticator == nil {
		return
	}
	tokenStrategy := authenticator.Strategy(bearer.CachedStrategyKey)
	auth.Revoke(tokenStrategy, token, r)
}

// BearerToken extracts the raw token from the Authorization header
func BearerToken(r *http.Request) string {
	reqToken := r.Header.Get("Authorization")
	splitToken := strings.Split(reqToken, "Bearer ")
	if len(splitToken) < 2 {
		return ""
	}
	return strings.TrimSpace(splitToken[1])
}

// adminPrincipal accepts a signed admin JWT in place of a session token
func adminPrincipal(r *http.Request) (Principal, bool) {
	if adminSecret == "" {
		return Principal{}, false
	}
	token := BearerToken(r)
	if token == "" {
		return Principal{}, false
	}
	email, err := VerifyAdminToken(adminSecret, token)
	if err != nil {
		return Principal{}, false
	}
	return Principal{Kind: KindAdmin, Email: email}, true
}

// VerifyAdminToken validates an admin JWT and returns the admin email
func VerifyAdminToken(secret, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid admin token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid admin claims")
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return "", fmt.Errorf("not an admin token")
	}
	email, _ := claims["sub"].(string)
	return email, nil
}
