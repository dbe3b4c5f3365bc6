package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"sessiond/cmd/security/token"

	"github.com/oklog/ulid/v2"
)

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID    string
	UserID       string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Engine is the refresh-token state machine. It is the only writer of a
// record's current and previous token pairs.
type Engine struct {
	store   Store
	codec   *Codec
	ttl     time.Duration
	maxLen  int
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger used for security events.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics sets the collectors that count refresh outcomes.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds an Engine over store using codec for token material.
func NewEngine(cfg Config, store Store, codec *Codec, opts ...EngineOption) (*Engine, error) {
	if store == nil || codec == nil {
		return nil, fmt.Errorf("%w: nil store or codec", ErrConfig)
	}
	if cfg.RefreshTTL <= 0 || cfg.MaxSecretBytes <= 0 {
		return nil, fmt.Errorf("%w: refresh ttl and max secret bytes must be > 0", ErrConfig)
	}
	e := &Engine{
		store:  store,
		codec:  codec,
		ttl:    cfg.RefreshTTL,
		maxLen: cfg.MaxSecretBytes,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Codec returns the codec used to mint and parse access tokens.
func (e *Engine) Codec() *Codec { return e.codec }

// Issue creates a new lineage for userID and returns its first token pair.
func (e *Engine) Issue(ctx context.Context, userID string, meta Meta) (Issued, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Issued{}, errors.New("session: empty user id")
	}

	now := e.now().UTC()
	secret, hash, ident, err := e.codec.newSecret()
	if err != nil {
		return Issued{}, err
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return Issued{}, err
	}

	rec := Record{
		ID:                id.String(),
		UserID:            userID,
		CurrentHash:       hash,
		CurrentIdentifier: ident,
		CreatedAt:         now,
		ExpiresAt:         now.Add(e.ttl),
		UserAgent:         meta.UserAgent,
		IP:                meta.IP,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		return Issued{}, err
	}

	access, accessExp, err := e.codec.MintAccessToken(userID, now)
	if err != nil {
		return Issued{}, err
	}

	e.metrics.sessionIssued()
	return Issued{
		SessionID:    rec.ID,
		UserID:       userID,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: secret,
		RefreshExp:   rec.ExpiresAt,
	}, nil
}

// Refresh classifies a presented refresh secret and, when it is the current
// one, rotates the lineage and returns a new token pair.
//
// Outcomes:
//   - unknown, malformed or unverifiable secret: ErrInvalid
//   - session past expires_at: record deleted, ErrExpired
//   - previous-generation secret: lineage deleted, ErrReuseDetected
func (e *Engine) Refresh(ctx context.Context, secret string, meta Meta) (Issued, error) {
	out, outcome, err := e.refresh(ctx, secret)
	e.metrics.refresh(outcome)

	switch outcome {
	case OutcomeReuse:
		e.log.Warn("session.refresh.reuse_detected",
			slog.String("outcome", outcome),
			slog.String("session_id", out.SessionID),
			slog.String("user_id", out.UserID),
			slog.String("ip", meta.IP),
		)
		return Issued{}, err
	case OutcomeError:
		e.log.Error("session.refresh.error", slog.Any("err", err))
	}
	if err != nil {
		return Issued{}, err
	}
	return out, nil
}

func (e *Engine) refresh(ctx context.Context, secret string) (Issued, string, error) {
	if secret == "" || len(secret) > e.maxLen {
		return Issued{}, OutcomeInvalid, ErrInvalid
	}

	ident := e.codec.DeriveIdentifier(secret)
	rec, err := e.store.FindByIdentifier(ctx, ident)
	if errors.Is(err, ErrNotFound) {
		return Issued{}, OutcomeInvalid, ErrInvalid
	}
	if err != nil {
		return Issued{}, OutcomeError, err
	}

	// Once a record has been read, the rest runs to completion even if the
	// caller goes away, so a rotation is never half-applied from its view.
	ctx = context.WithoutCancel(ctx)
	now := e.now().UTC()

	out, outcome, err := e.classify(ctx, rec, ident, secret, now)
	if outcome != OutcomeLostRace {
		return out, outcome, err
	}

	// Another request rotated this record between our read and our write.
	// Re-read: the presented secret is now the previous generation.
	rec, err = e.store.FindByIdentifier(ctx, ident)
	if errors.Is(err, ErrNotFound) {
		return Issued{}, OutcomeInvalid, ErrInvalid
	}
	if err != nil {
		return Issued{}, OutcomeError, err
	}
	out, outcome, err = e.classify(ctx, rec, ident, secret, now)
	if outcome == OutcomeLostRace {
		return Issued{}, OutcomeInvalid, ErrInvalid
	}
	return out, outcome, err
}

// classify evaluates one observed record. OutcomeLostRace means the
// conditional update found the record already changed.
func (e *Engine) classify(ctx context.Context, rec Record, ident, secret string, now time.Time) (Issued, string, error) {
	// expires_at itself is already expired, same as the sweeper's <= delete.
	if !rec.ExpiresAt.After(now) {
		if err := e.store.Delete(ctx, rec.ID); err != nil {
			return Issued{}, OutcomeError, err
		}
		return Issued{}, OutcomeExpired, ErrExpired
	}

	switch {
	case token.EqualHex64(ident, rec.CurrentIdentifier) && e.codec.VerifySecret(secret, rec.CurrentHash):
		return e.rotate(ctx, rec, now)

	case token.EqualHex64(ident, rec.PreviousIdentifier) &&
		e.codec.VerifySecret(secret, rec.PreviousHash):
		if err := e.store.Delete(ctx, rec.ID); err != nil {
			return Issued{}, OutcomeError, err
		}
		return Issued{SessionID: rec.ID, UserID: rec.UserID}, OutcomeReuse, ErrReuseDetected

	default:
		return Issued{}, OutcomeInvalid, ErrInvalid
	}
}

func (e *Engine) rotate(ctx context.Context, rec Record, now time.Time) (Issued, string, error) {
	secret, hash, ident, err := e.codec.newSecret()
	if err != nil {
		return Issued{}, OutcomeError, err
	}
	exp := now.Add(e.ttl)

	ok, err := e.store.Rotate(ctx, Rotation{
		ID:            rec.ID,
		Observed:      rec.CurrentIdentifier,
		NewHash:       hash,
		NewIdentifier: ident,
		Now:           now,
		ExpiresAt:     exp,
	})
	if err != nil {
		return Issued{}, OutcomeError, err
	}
	if !ok {
		return Issued{}, OutcomeLostRace, nil
	}

	access, accessExp, err := e.codec.MintAccessToken(rec.UserID, now)
	if err != nil {
		return Issued{}, OutcomeError, err
	}

	return Issued{
		SessionID:    rec.ID,
		UserID:       rec.UserID,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: secret,
		RefreshExp:   exp,
	}, OutcomeRotated, nil
}

// Revoke deletes the lineage that secret belongs to, current or previous.
// Unknown or malformed secrets are not an error.
func (e *Engine) Revoke(ctx context.Context, secret string) error {
	if secret == "" || len(secret) > e.maxLen {
		return nil
	}
	rec, err := e.store.FindByIdentifier(ctx, e.codec.DeriveIdentifier(secret))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return e.store.Delete(context.WithoutCancel(ctx), rec.ID)
}

// RevokeAllForUser deletes every lineage of userID.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return e.store.DeleteByUser(ctx, strings.TrimSpace(userID))
}

// DeleteExpired removes expired records as of now.
func (e *Engine) DeleteExpired(ctx context.Context) (int64, error) {
	return e.store.DeleteExpired(ctx, e.now().UTC())
}
