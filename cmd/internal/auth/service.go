package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/security/password"
)

// Service implements the account and session use cases.
type Service struct {
	users    identity.Store
	sessions *session.Engine
	pw       password.Config

	limiter Limiter
	policy  LoginPolicy

	log *slog.Logger
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPasswordConfig sets the password policy used to validate registrations.
// It should match the credential store's configuration.
func WithPasswordConfig(cfg password.Config) Option {
	return func(s *Service) { s.pw = cfg }
}

// WithLimiter enables login throttling.
func WithLimiter(l Limiter, p LoginPolicy) Option {
	return func(s *Service) {
		s.limiter = l
		s.policy = p
	}
}

// WithLogger sets the logger for security events.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service. users and sessions are required.
func NewService(users identity.Store, sessions *session.Engine, opts ...Option) (*Service, error) {
	if users == nil || sessions == nil {
		return nil, errors.New("auth: nil user store or session engine")
	}
	s := &Service{
		users:    users,
		sessions: sessions,
		pw:       password.DefaultConfig(),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// RegisterInput is a registration request.
type RegisterInput struct {
	FullName        string
	Email           string
	Password        string
	ProfileImageURL *string
}

// Result is what Register and Login return: the public user plus a fresh session.
type Result struct {
	User    identity.User
	Session session.Issued
}

// Register validates in, creates the user and opens its first session.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta session.Meta) (Result, error) {
	create := identity.CreateUserInput{
		FullName:        in.FullName,
		Email:           in.Email,
		Password:        in.Password,
		ProfileImageURL: in.ProfileImageURL,
		Now:             s.now().UTC(),
	}
	if err := identity.ValidateCreate(create, s.pw); err != nil {
		return Result{}, mapIdentityErr(err)
	}

	if _, err := s.users.GetUserByEmail(ctx, in.Email); err == nil {
		return Result{}, ErrEmailInUse
	} else if !identity.IsNotFound(err) {
		return Result{}, err
	}

	u, err := s.users.CreateUser(ctx, create)
	if err != nil {
		return Result{}, mapIdentityErr(err)
	}

	issued, err := s.sessions.Issue(ctx, u.ID, meta)
	if err != nil {
		return Result{}, err
	}

	s.log.Info("auth.register.ok", slog.String("user_id", u.ID), slog.String("ip", meta.IP))
	return Result{User: u, Session: issued}, nil
}

// Login checks credentials and opens a new session. Existing sessions of the
// user are left alone.
func (s *Service) Login(ctx context.Context, email, pw string, meta session.Meta) (Result, error) {
	if err := s.throttleLogin(ctx, email, meta.IP); err != nil {
		return Result{}, err
	}

	u, ok, err := s.users.VerifyPassword(ctx, email, pw)
	switch {
	case identity.IsNotFound(err), identity.IsInvalidInput(err), err == nil && !ok:
		s.log.Info("auth.login.fail", slog.String("ip", meta.IP))
		return Result{}, ErrInvalidCredentials
	case err != nil:
		return Result{}, err
	}

	issued, err := s.sessions.Issue(ctx, u.ID, meta)
	if err != nil {
		return Result{}, err
	}

	s.log.Info("auth.login.ok",
		slog.String("user_id", u.ID),
		slog.String("session_id", issued.SessionID),
		slog.String("ip", meta.IP),
	)
	return Result{User: u, Session: issued}, nil
}

// Refresh rotates a refresh secret; see session.Engine.Refresh for outcomes.
func (s *Service) Refresh(ctx context.Context, secret string, meta session.Meta) (session.Issued, error) {
	return s.sessions.Refresh(ctx, secret, meta)
}

// Logout revokes the session behind secret. It never fails from the caller's
// point of view; store errors are logged.
func (s *Service) Logout(ctx context.Context, secret string) error {
	if err := s.sessions.Revoke(ctx, secret); err != nil {
		s.log.Warn("auth.logout.revoke_fail", slog.Any("err", err))
	}
	return nil
}

// Authenticate verifies a bearer access token and returns the user id.
func (s *Service) Authenticate(accessToken string) (string, error) {
	claims, err := s.sessions.Codec().ParseAccessToken(accessToken, s.now())
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Profile returns the user without credentials.
func (s *Service) Profile(ctx context.Context, userID string) (identity.User, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return identity.User{}, mapIdentityErr(err)
	}
	return u, nil
}

// UpdateProfile applies a partial profile update.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in identity.UpdateProfileInput) (identity.User, error) {
	in.Now = s.now().UTC()
	u, err := s.users.UpdateProfile(ctx, userID, in)
	if err != nil {
		return identity.User{}, mapIdentityErr(err)
	}
	return u, nil
}

func (s *Service) throttleLogin(ctx context.Context, email, ip string) error {
	if s.limiter == nil {
		return nil
	}

	var keys []limitKey
	if norm := identity.NormalizeEmail(email); norm != "" && s.policy.MaxPerEmail > 0 {
		keys = append(keys, limitKey{loginEmailKey(norm), s.policy.MaxPerEmail})
	}
	if strings.TrimSpace(ip) != "" && s.policy.MaxPerIP > 0 {
		keys = append(keys, limitKey{loginIPKey(ip), s.policy.MaxPerIP})
	}

	for _, k := range keys {
		ok, retry, err := s.limiter.Hit(ctx, k.key, k.max, s.policy.Window)
		if err != nil {
			// Fail open: an unavailable limiter must not lock everyone out.
			s.log.Warn("auth.login.limiter_fail", slog.Any("err", err))
			continue
		}
		if !ok {
			s.log.Warn("auth.login.rate_limited", slog.String("ip", ip), slog.Duration("retry_after", retry))
			return RateLimitError{RetryAfter: retry}
		}
	}
	return nil
}

type limitKey struct {
	key string
	max int
}

func mapIdentityErr(err error) error {
	var opErr identity.OpError
	switch {
	case err == nil:
		return nil
	case identity.IsConflict(err):
		return ErrEmailInUse
	case identity.IsNotFound(err):
		return ErrNotFound
	case errors.As(err, &opErr) && errors.Is(err, identity.ErrInvalidInput):
		return InputError{Msg: opErr.Msg}
	case identity.IsInvalidInput(err):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return err
	}
}
