package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/frankferrari/lanomat/internal/errors"
	"github.com/frankferrari/lanomat/internal/models"
)

const (
	CookieName    = "lanomat_player"
	SessionExpiry = 7 * 24 * time.Hour
)

type login struct {
	userID int64
	expiry time.Time
}

// Auth maps player cookies to user IDs. Tokens live in memory; after a
// restart players rejoin by name and get a new one.
type Auth struct {
	clock    clockwork.Clock
	secure   bool
	sessions map[string]login
	mu       sync.RWMutex
}

// New creates a new Auth. secure marks cookies Secure for HTTPS deployments.
func New(clock clockwork.Clock, secure bool) *Auth {
	return &Auth{
		clock:    clock,
		secure:   secure,
		sessions: make(map[string]login),
	}
}

// Login issues a token for the user
func (a *Auth) Login(userID int64) string {
	token := generateToken()
	a.mu.Lock()
	a.sessions[token] = login{userID: userID, expiry: a.clock.Now().Add(SessionExpiry)}
	a.mu.Unlock()
	return token
}

// Logout invalidates a token
func (a *Auth) Logout(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// LogoutUser invalidates every token of a user
func (a *Auth) LogoutUser(userID int64) {
	a.mu.Lock()
	for token, l := range a.sessions {
		if l.userID == userID {
			delete(a.sessions, token)
		}
	}
	a.mu.Unlock()
}

// ValidateSession returns the user a token belongs to
func (a *Auth) ValidateSession(token string) (int64, bool) {
	a.mu.RLock()
	l, exists := a.sessions[token]
	a.mu.RUnlock()

	if !exists {
		return 0, false
	}

	if a.clock.Now().After(l.expiry) {
		a.mu.Lock()
		delete(a.sessions, token)
		a.mu.Unlock()
		return 0, false
	}

	return l.userID, true
}

// UserFromRequest extracts and validates the player cookie
func (a *Auth) UserFromRequest(r *http.Request) (int64, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return 0, false
	}
	return a.ValidateSession(cookie.Value)
}

// Identity is the caller of a request
type Identity struct {
	Session *models.Session
	User    *models.User
}

// IsHost reports whether the caller may run host actions
func (id Identity) IsHost() bool {
	return id.User.IsHost()
}

// CanRunRound reports whether the caller may control the countdown and wheel
func (id Identity) CanRunRound() bool {
	return id.User.CanRunRound()
}

type identityKey struct{}

// WithIdentity returns a context carrying id
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by RequireUser
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Resolver looks up a user and their session
type Resolver interface {
	Identify(ctx context.Context, userID int64) (*models.Session, *models.User, error)
}

// RequireUser middleware resolves the player cookie into an Identity
// (returns 401 when there is none)
func (a *Auth) RequireUser(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := a.UserFromRequest(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, `{"code":"UNAUTHORIZED","error":"Unauthorized - please join a session"}`)
				return
			}

			session, user, err := resolver.Identify(r.Context(), userID)
			if errors.IsNotFound(err) {
				// the player was removed or the session ended
				a.LogoutUser(userID)
				a.ClearSessionCookie(w)
				writeError(w, http.StatusUnauthorized, `{"code":"UNAUTHORIZED","error":"Unauthorized - please join a session"}`)
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, `{"code":"INTERNAL_ERROR","error":"internal server error"}`)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{Session: session, User: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireHost middleware rejects callers who are not hosts (returns 403).
// It must run after RequireUser.
func RequireHost(next http.Handler) http.Handler {
	return requireRole(Identity.IsHost, `{"code":"FORBIDDEN","error":"only hosts can do this"}`)(next)
}

// RequireModerator middleware lets hosts and moderators through (returns 403
// for everyone else). It must run after RequireUser.
func RequireModerator(next http.Handler) http.Handler {
	return requireRole(Identity.CanRunRound, `{"code":"FORBIDDEN","error":"only hosts and moderators can do this"}`)(next)
}

func requireRole(allowed func(Identity) bool, forbidden string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, `{"code":"UNAUTHORIZED","error":"Unauthorized - please join a session"}`)
				return
			}
			if !allowed(id) {
				writeError(w, http.StatusForbidden, forbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// SetSessionCookie sets the player cookie on the response
func (a *Auth) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionExpiry.Seconds()),
	})
}

// ClearSessionCookie removes the player cookie
func (a *Auth) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		MaxAge:   -1,
	})
}

// generateToken creates a random session token
func generateToken() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
