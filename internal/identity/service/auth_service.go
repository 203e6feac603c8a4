package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"layoutaria/internal/audit"
	auditdomain "layoutaria/internal/audit/domain"
	"layoutaria/internal/metrics"
	"layoutaria/internal/platform/apperr"
	"layoutaria/internal/platform/sanitize"
	"layoutaria/internal/security"
	sessiondomain "layoutaria/internal/session/domain"
	"layoutaria/internal/store"
	userdomain "layoutaria/internal/user/domain"
)

const (
	// TokenType is the scheme clients use when presenting the access token.
	TokenType = "Bearer"

	// sessionListLimit bounds ListSessions to the most recently used sessions.
	sessionListLimit = 25

	maxNameLength   = 80
	maxEmailLength  = 180
	maxSecretLength = 512
)

const (
	ActionRegister      = "auth.register"
	ActionLogin         = "auth.login"
	ActionRefresh       = "auth.refresh"
	ActionLogout        = "auth.logout"
	ActionLogoutAll     = "auth.logout_all"
	ActionSessionRevoke = "auth.session.revoke"
)

var (
	errInvalidCredentials = apperr.Unauthorized("Invalid credentials")
	errInvalidRefresh     = apperr.Unauthorized("Invalid or expired refresh token")
	errUserNotFound       = apperr.NotFound("User not found")

	// errRefreshReplay is the cause attached when a rotated refresh token is presented again.
	errRefreshReplay = errors.New("rotated refresh token presented again")
)

// PasswordHasher is the one-way password function used for registration and login.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenSigner issues and verifies access tokens.
type TokenSigner interface {
	IssueAccess(id security.AccessIdentity) (string, time.Time, error)
	ValidateAccess(token string) (security.AccessIdentity, error)
}

// decoyComparer is implemented by hashers that can burn a comparison for unknown accounts.
type decoyComparer interface {
	CompareDecoy(password string)
}

// Config holds the session policy.
type Config struct {
	// MaxActiveSessions caps concurrently active sessions per user (min 1).
	MaxActiveSessions int
	// RefreshTTL is the lifetime of a refresh token (min one day).
	RefreshTTL time.Duration
	// Retention is how long revoked or expired sessions are kept before removal.
	Retention time.Duration
}

// DefaultConfig is five sessions, 14 day refresh tokens and 30 days retention.
func DefaultConfig() Config {
	return Config{
		MaxActiveSessions: 5,
		RefreshTTL:        14 * 24 * time.Hour,
		Retention:         30 * 24 * time.Hour,
	}
}

func (c Config) normalized() Config {
	if c.MaxActiveSessions < 1 {
		c.MaxActiveSessions = 1
	}
	if c.RefreshTTL < 24*time.Hour {
		c.RefreshTTL = 24 * time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = DefaultConfig().Retention
	}
	return c
}

// RegisterInput is the payload of Register.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput is the payload of Login.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned by Register, Login and Refresh. RefreshToken is the raw
// secret; it is handed out here once and only its hash is stored.
type AuthResult struct {
	AccessToken           string                `json:"accessToken"`
	AccessTokenExpiresAt  time.Time             `json:"accessTokenExpiresAt"`
	RefreshToken          string                `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time             `json:"refreshTokenExpiresAt"`
	TokenType             string                `json:"tokenType"`
	SessionID             string                `json:"sessionId"`
	User                  userdomain.PublicUser `json:"user"`
}

// LogoutResult reports whether a session was revoked by Logout.
type LogoutResult struct {
	Revoked bool `json:"revoked"`
}

// LogoutAllResult reports how many sessions LogoutAll revoked.
type LogoutAllResult struct {
	RevokedSessions int `json:"revokedSessions"`
}

// SessionSummary counts the sessions returned by ListSessions.
type SessionSummary struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// SessionList is the result of ListSessions.
type SessionList struct {
	Items   []sessiondomain.View `json:"items"`
	Summary SessionSummary       `json:"summary"`
}

// RevokeSessionResult is the result of RevokeSession.
type RevokeSessionResult struct {
	Revoked bool               `json:"revoked"`
	Session sessiondomain.View `json:"session"`
}

// AuthService manages users' refresh-token sessions: issue, rotation,
// revocation and the per-user cap. Every state change runs inside one store
// mutation, so a failed operation leaves no trace.
type AuthService struct {
	store  *store.Store
	hasher PasswordHasher
	tokens TokenSigner
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures an AuthService.
type Option func(*AuthService)

func WithClock(c clockwork.Clock) Option {
	return func(s *AuthService) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(st *store.Store, hasher PasswordHasher, tokens TokenSigner, cfg Config, opts ...Option) *AuthService {
	s := &AuthService{
		store:  st,
		hasher: hasher,
		tokens: tokens,
		cfg:    cfg.normalized(),
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sessionTx carries one mutation's working state. Revocations are tallied so
// metrics are only recorded once the mutation has committed.
type sessionTx struct {
	doc     *store.Document
	now     time.Time
	info    audit.RequestInfo
	issued  string
	revoked map[sessiondomain.RevokeReason]int
}

type txResult[T any] struct {
	value   T
	issued  string
	revoked map[sessiondomain.RevokeReason]int
}

// mutate runs fn in a store mutation and records session metrics on commit.
func mutate[T any](ctx context.Context, s *AuthService, info audit.RequestInfo, fn func(tx *sessionTx) (T, error)) (T, error) {
	res, err := store.Mutate(ctx, s.store, func(d *store.Document) (txResult[T], error) {
		tx := &sessionTx{
			doc:     d,
			now:     s.clock.Now().UTC(),
			info:    info,
			revoked: map[sessiondomain.RevokeReason]int{},
		}
		s.collectStale(tx)
		v, err := fn(tx)
		if err != nil {
			return txResult[T]{}, err
		}
		return txResult[T]{value: v, issued: tx.issued, revoked: tx.revoked}, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if res.issued != "" {
		metrics.SessionsIssuedTotal.WithLabelValues(res.issued).Inc()
	}
	for reason, n := range res.revoked {
		metrics.SessionsRevokedTotal.WithLabelValues(string(reason)).Add(float64(n))
	}
	return res.value, nil
}

// Register creates a user with role "user" and opens its first session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, info audit.RequestInfo) (*AuthResult, error) {
	name := sanitize.Text(in.Name, maxNameLength)
	email := normalizeEmail(in.Email)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	return mutate(ctx, s, info, func(tx *sessionTx) (*AuthResult, error) {
		if tx.doc.UserByEmail(email) != nil {
			return nil, apperr.Conflict("Email already registered")
		}
		user := &userdomain.User{
			ID:           uuid.New().String(),
			Name:         name,
			Email:        email,
			PasswordHash: hash,
			Role:         userdomain.RoleUser,
			CreatedAt:    tx.now,
			UpdatedAt:    tx.now,
		}
		if err := user.Validate(); err != nil {
			return nil, apperr.Validation(err.Error())
		}
		tx.doc.Users = append(tx.doc.Users, user)
		return s.issue(tx, user, ActionRegister, map[string]string{"method": "register"})
	})
}

// Login verifies the password and opens a new session, evicting the least
// recently used ones beyond the cap.
func (s *AuthService) Login(ctx context.Context, in LoginInput, info audit.RequestInfo) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, errInvalidCredentials
	}

	// bcrypt runs against a snapshot, outside the writer.
	snapshot := s.store.Read(ctx)
	candidate := snapshot.UserByEmail(email)
	if candidate == nil {
		if d, ok := s.hasher.(decoyComparer); ok {
			d.CompareDecoy(in.Password)
		}
		return nil, errInvalidCredentials
	}
	if err := s.hasher.Compare(candidate.PasswordHash, in.Password); err != nil {
		return nil, errInvalidCredentials
	}

	return mutate(ctx, s, info, func(tx *sessionTx) (*AuthResult, error) {
		user := tx.doc.UserByID(candidate.ID)
		if user == nil || user.PasswordHash != candidate.PasswordHash {
			return nil, errInvalidCredentials
		}
		return s.issue(tx, user, ActionLogin, map[string]string{"method": "password"})
	})
}

// Refresh rotates a refresh token: the presented session is revoked as
// rotated and a successor is issued. A token can be used once; presenting a
// rotated token again fails and is reported as a replay.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, info audit.RequestInfo) (*AuthResult, error) {
	hash := security.HashRefreshToken(sanitize.Text(refreshToken, maxSecretLength))

	res, err := mutate(ctx, s, info, func(tx *sessionTx) (*AuthResult, error) {
		current := tx.doc.SessionByTokenHash(hash)
		if !current.IsActive(tx.now) {
			if current != nil && current.RevokeReason != nil && *current.RevokeReason == sessiondomain.ReasonRotated {
				return nil, &apperr.Error{Kind: apperr.KindUnauthorized, Message: errInvalidRefresh.Message, Cause: errRefreshReplay}
			}
			return nil, errInvalidRefresh
		}
		user := tx.doc.UserByID(current.UserID)
		if user == nil {
			return nil, errInvalidRefresh
		}

		current.Revoke(sessiondomain.ReasonRotated, tx.now)
		current.Touch(tx.now, tx.info.IP, tx.info.UserAgent)
		tx.revoked[sessiondomain.ReasonRotated]++

		s.evictOldest(tx, user.ID)
		next, raw, err := s.createSession(tx, user.ID, map[string]string{"previousSessionId": current.ID})
		if err != nil {
			return nil, err
		}
		replacedBy := next.ID
		current.ReplacedBy = &replacedBy

		s.appendAudit(tx, user, ActionRefresh, map[string]any{
			"previousSessionId":     current.ID,
			"nextSessionId":         next.ID,
			"refreshTokenExpiresAt": next.ExpiresAt,
		})
		tx.issued = ActionRefresh
		return s.buildResult(user, next, raw)
	})
	if errors.Is(err, errRefreshReplay) {
		metrics.RefreshReplaysTotal.Inc()
		s.logger.WarnContext(ctx, "refresh token replay rejected", "ip", info.IP, "user_agent", info.UserAgent)
	}
	return res, err
}

// Logout revokes the session behind refreshToken. An unknown or already
// inactive token is not an error; the result reports Revoked false.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, info audit.RequestInfo) (LogoutResult, error) {
	hash := security.HashRefreshToken(sanitize.Text(refreshToken, maxSecretLength))

	return mutate(ctx, s, info, func(tx *sessionTx) (LogoutResult, error) {
		sess := tx.doc.SessionByTokenHash(hash)
		if !sess.IsActive(tx.now) {
			return LogoutResult{Revoked: false}, nil
		}
		s.revoke(tx, sess, sessiondomain.ReasonLogout)
		if user := tx.doc.UserByID(sess.UserID); user != nil {
			s.appendAudit(tx, user, ActionLogout, map[string]any{"sessionId": sess.ID})
		}
		return LogoutResult{Revoked: true}, nil
	})
}

// LogoutAll revokes every active session of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID string, info audit.RequestInfo) (LogoutAllResult, error) {
	return mutate(ctx, s, info, func(tx *sessionTx) (LogoutAllResult, error) {
		user := tx.doc.UserByID(userID)
		if user == nil {
			return LogoutAllResult{}, errUserNotFound
		}
		n := 0
		for _, sess := range tx.doc.Sessions {
			if sess.UserID != user.ID || !sess.IsActive(tx.now) {
				continue
			}
			s.revoke(tx, sess, sessiondomain.ReasonLogoutAll)
			n++
		}
		s.appendAudit(tx, user, ActionLogoutAll, map[string]any{"revokedSessions": n})
		return LogoutAllResult{RevokedSessions: n}, nil
	})
}

// ListSessions returns the user's most recently used sessions, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID, currentSessionID string) (*SessionList, error) {
	doc := s.store.Read(ctx)
	if doc.UserByID(userID) == nil {
		return nil, errUserNotFound
	}
	now := s.clock.Now().UTC()

	var owned []*sessiondomain.Session
	for _, sess := range doc.Sessions {
		if sess.UserID == userID {
			owned = append(owned, sess)
		}
	}
	slices.SortStableFunc(owned, func(a, b *sessiondomain.Session) int {
		return b.LastActivity().Compare(a.LastActivity())
	})
	if len(owned) > sessionListLimit {
		owned = owned[:sessionListLimit]
	}

	out := &SessionList{Items: make([]sessiondomain.View, 0, len(owned))}
	for _, sess := range owned {
		out.Items = append(out.Items, sess.View(currentSessionID))
		if sess.IsActive(now) {
			out.Summary.Active++
		}
	}
	out.Summary.Total = len(out.Items)
	return out, nil
}

// RevokeSession revokes one of the user's own sessions. Revoking an inactive
// session succeeds without effect.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID, currentSessionID string, info audit.RequestInfo) (*RevokeSessionResult, error) {
	return mutate(ctx, s, info, func(tx *sessionTx) (*RevokeSessionResult, error) {
		user := tx.doc.UserByID(userID)
		if user == nil {
			return nil, errUserNotFound
		}
		sess := tx.doc.SessionByID(sessionID)
		if sess == nil || sess.UserID != userID {
			return nil, apperr.NotFound("Session not found")
		}
		if !sess.IsActive(tx.now) {
			return &RevokeSessionResult{Revoked: false, Session: sess.View(currentSessionID)}, nil
		}
		s.revoke(tx, sess, sessiondomain.ReasonManualRevoke)
		s.appendAudit(tx, user, ActionSessionRevoke, map[string]any{"sessionId": sess.ID})
		return &RevokeSessionResult{Revoked: true, Session: sess.View(currentSessionID)}, nil
	})
}

// Me returns the public view of userID.
func (s *AuthService) Me(ctx context.Context, userID string) (userdomain.PublicUser, error) {
	user := s.store.Read(ctx).UserByID(userID)
	if user == nil {
		return userdomain.PublicUser{}, errUserNotFound
	}
	return user.Public(), nil
}

// Authenticate verifies an access token and returns the caller it names.
func (s *AuthService) Authenticate(accessToken string) (userdomain.Actor, error) {
	id, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return userdomain.Actor{}, apperr.Unauthorized("Invalid or expired token")
	}
	return userdomain.Actor{
		ID:        id.UserID,
		Role:      userdomain.Role(id.Role),
		Email:     id.Email,
		SessionID: id.SessionID,
	}, nil
}

// issue evicts down to the cap, creates a session for user and signs its access token.
func (s *AuthService) issue(tx *sessionTx, user *userdomain.User, action string, metadata map[string]string) (*AuthResult, error) {
	s.evictOldest(tx, user.ID)
	sess, raw, err := s.createSession(tx, user.ID, metadata)
	if err != nil {
		return nil, err
	}
	s.appendAudit(tx, user, action, map[string]any{
		"sessionId":             sess.ID,
		"refreshTokenExpiresAt": sess.ExpiresAt,
	})
	tx.issued = action
	return s.buildResult(user, sess, raw)
}

// collectStale removes sessions that were revoked or expired longer than the retention window ago.
func (s *AuthService) collectStale(tx *sessionTx) {
	cutoff := tx.now.Add(-s.cfg.Retention)
	tx.doc.Sessions = slices.DeleteFunc(tx.doc.Sessions, func(sess *sessiondomain.Session) bool {
		return sess.IsStale(cutoff)
	})
}

// evictOldest revokes the user's least recently used active sessions so that
// one more can be created without exceeding the cap.
func (s *AuthService) evictOldest(tx *sessionTx, userID string) {
	var active []*sessiondomain.Session
	for _, sess := range tx.doc.Sessions {
		if sess.UserID == userID && sess.IsActive(tx.now) {
			active = append(active, sess)
		}
	}
	slices.SortStableFunc(active, func(a, b *sessiondomain.Session) int {
		return a.LastActivity().Compare(b.LastActivity())
	})
	overflow := max(0, len(active)-s.cfg.MaxActiveSessions+1)
	for _, sess := range active[:overflow] {
		sess.Revoke(sessiondomain.ReasonSessionLimit, tx.now)
		tx.revoked[sessiondomain.ReasonSessionLimit]++
	}
}

func (s *AuthService) createSession(tx *sessionTx, userID string, metadata map[string]string) (*sessiondomain.Session, string, error) {
	raw, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, "", apperr.Internal("generate refresh token", err)
	}
	now := tx.now
	sess := &sessiondomain.Session{
		ID:            uuid.New().String(),
		UserID:        userID,
		TokenHash:     security.HashRefreshToken(raw),
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.RefreshTTL),
		LastUsedAt:    &now,
		LastIP:        tx.info.IP,
		LastUserAgent: tx.info.UserAgent,
		Metadata:      metadata,
	}
	tx.doc.Sessions = append(tx.doc.Sessions, sess)
	return sess, raw, nil
}

func (s *AuthService) revoke(tx *sessionTx, sess *sessiondomain.Session, reason sessiondomain.RevokeReason) {
	sess.Revoke(reason, tx.now)
	sess.Touch(tx.now, tx.info.IP, tx.info.UserAgent)
	tx.revoked[reason]++
}

func (s *AuthService) appendAudit(tx *sessionTx, user *userdomain.User, action string, metadata map[string]any) {
	tx.doc.AppendAudit(audit.NewLog(audit.Entry{
		ActorID:      user.ID,
		ActorRole:    string(user.Role),
		Action:       action,
		ResourceType: auditdomain.ResourceUser,
		ResourceID:   user.ID,
		Metadata:     metadata,
	}, tx.info, tx.now))
}

func (s *AuthService) buildResult(user *userdomain.User, sess *sessiondomain.Session, raw string) (*AuthResult, error) {
	access, accessExp, err := s.tokens.IssueAccess(security.AccessIdentity{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		SessionID: sess.ID,
	})
	if err != nil {
		return nil, apperr.Internal("sign access token", err)
	}
	return &AuthResult{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp,
		RefreshToken:          raw,
		RefreshTokenExpiresAt: sess.ExpiresAt,
		TokenType:             TokenType,
		SessionID:             sess.ID,
		User:                  user.Public(),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(sanitize.Text(email, maxEmailLength))
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	if !emailPattern.MatchString(email) {
		return apperr.Validation("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return apperr.Validation("password must be at least 8 characters")
	}
	if len(password) > 72 {
		return apperr.Validation("password must be at most 72 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasLower {
		return apperr.Validation("password must include a lowercase letter")
	}
	if !hasUpper {
		return apperr.Validation("password must include an uppercase letter")
	}
	if !hasNumber {
		return apperr.Validation("password must include a number")
	}
	if !hasSymbol {
		return apperr.Validation("password must include a special character")
	}
	return nil
}
