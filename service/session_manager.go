package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/layer-3/leaderboard/adapters/codec"
	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/ports"
)

// RetryPolicy decides what happens to a score submission rejected with 401
type RetryPolicy int

const (
	// RetryNever refreshes the access token once and leaves resubmission to the caller
	RetryNever RetryPolicy = iota
	// RetryOnceAfterRefresh resubmits once, re-signed, after a successful refresh
	RetryOnceAfterRefresh
)

// ParseRetryPolicy accepts "never" and "once"
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never":
		return RetryNever, nil
	case "once":
		return RetryOnceAfterRefresh, nil
	}
	return RetryNever, fmt.Errorf("%w: unknown retry policy %q", core.ErrConfiguration, s)
}

const refreshFlight = "refresh"

// SessionManager owns the credentials and the token pair of one player and
// talks to the leaderboard API on their behalf.
//
// Every operation returns immediately. Outcomes are delivered through the
// EventPublisher; a failed precondition is also returned to the caller and no
// request is sent. The token pair is only ever changed under mu, and renewals
// are coalesced so that at most one refresh request is in flight.
type SessionManager struct {
	transport ports.Transport
	codec     ports.Codec
	events    ports.EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	refreshMethod string
	retry         RetryPolicy

	mu         sync.Mutex
	creds      core.Credentials
	session    core.Session
	generation uint64 // bumped whenever the session is replaced or cleared

	refreshes singleflight.Group
	inflight  sync.WaitGroup
}

// Option customises a SessionManager
type Option func(*SessionManager)

// WithCodec replaces the JSON codec
func WithCodec(c ports.Codec) Option {
	return func(m *SessionManager) { m.codec = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *SessionManager) { m.logger = l }
}

// WithClock overrides the time source used for signing
func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) { m.now = now }
}

// WithRefreshMethod sets the verb of the token refresh call (GET or POST)
func WithRefreshMethod(method string) Option {
	return func(m *SessionManager) { m.refreshMethod = strings.ToUpper(method) }
}

// WithRetryPolicy sets the 401 policy of SubmitScore
func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *SessionManager) { m.retry = p }
}

// WithAPISecret presets the API secret
func WithAPISecret(secret string) Option {
	return func(m *SessionManager) { m.creds.APISecret = secret }
}

// NewSessionManager creates an unauthenticated session manager
func NewSessionManager(applicationID string, transport ports.Transport, events ports.EventPublisher, opts ...Option) *SessionManager {
	m := &SessionManager{
		transport:     transport,
		codec:         codec.JSON{},
		events:        events,
		logger:        zap.NewNop(),
		now:           time.Now,
		refreshMethod: http.MethodPost,
		retry:         RetryNever,
		creds:         core.Credentials{ApplicationID: strings.TrimSpace(applicationID)},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports whether the manager holds a usable token pair
func (m *SessionManager) State() core.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State()
}

// Session returns a consistent snapshot of the token pair
func (m *SessionManager) Session() core.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// AccessTokenExpiry decodes the exp claim of the current access token
func (m *SessionManager) AccessTokenExpiry() (time.Time, error) {
	s := m.Session()
	if s.State() != core.Authenticated {
		return time.Time{}, core.ErrAuthorization
	}
	return core.AccessTokenExpiry(s.AccessToken)
}

// Wait blocks until every dispatched operation, including scheduled refreshes, has
// settled and its events were published. Publishers run inside the operation, so an
// event handler must not call Wait.
func (m *SessionManager) Wait() {
	m.inflight.Wait()
}

// SetAPISecret stores the secret used to sign submissions. Once set it cannot be
// replaced by a different value for the lifetime of the manager.
func (m *SessionManager) SetAPISecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: empty api secret", core.ErrConfiguration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds.APISecret != "" && m.creds.APISecret != secret {
		return fmt.Errorf("%w: api secret already set", core.ErrConfiguration)
	}
	m.creds.APISecret = secret
	return nil
}

// Restore authenticates with a previously issued token pair
func (m *SessionManager) Restore(accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return fmt.Errorf("%w: both tokens are required", core.ErrAuthorization)
	}
	m.mu.Lock()
	m.session = core.Session{AccessToken: accessToken, RefreshToken: refreshToken}
	m.generation++
	m.mu.Unlock()
	m.logger.Info("session restored")
	return nil
}

// SignOut drops the token pair
func (m *SessionManager) SignOut(ctx context.Context) {
	m.mu.Lock()
	was := m.session.State()
	m.session = core.Session{}
	m.generation++
	m.mu.Unlock()

	if was == core.Authenticated {
		m.logger.Info("signed out")
		m.publish(ctx, core.Event{Type: core.EventSignedOut, Op: core.OpSignOut})
	}
}

// RequestOTP asks the API to email a one-time password
func (m *SessionManager) RequestOTP(ctx context.Context, email string) error {
	const op = core.OpRequestOTP
	appID, err := m.requireApplication(ctx, op)
	if err != nil {
		return err
	}
	body, err := m.codec.Marshal(otpRequest{Email: email})
	if err != nil {
		return m.reject(ctx, op, fmt.Errorf("encode request: %w", err))
	}

	req := &ports.Request{
		Method: http.MethodPost,
		Path:   pathOTPGenerate,
		Header: jsonHeader(appID),
		Body:   body,
	}
	m.send(ctx, op, req, func(resp *ports.Response) {
		if !ValidResponse(resp) {
			m.fail(ctx, op, &core.StatusError{Op: op, StatusCode: resp.StatusCode})
			return
		}
		m.publish(ctx, core.Event{Type: core.EventOTPSent, Op: op})
	})
	return nil
}

// VerifyOTP exchanges the emailed code for a token pair. The session is only
// replaced when the response carries both tokens.
func (m *SessionManager) VerifyOTP(ctx context.Context, email, code string) error {
	const op = core.OpVerifyOTP
	appID, err := m.requireApplication(ctx, op)
	if err != nil {
		return err
	}
	if code == "" {
		return m.reject(ctx, op, fmt.Errorf("%w: empty one-time password", core.ErrConfiguration))
	}
	body, err := m.codec.Marshal(otpVerifyRequest{Email: email, OTP: code})
	if err != nil {
		return m.reject(ctx, op, fmt.Errorf("encode request: %w", err))
	}

	req := &ports.Request{
		Method: http.MethodPost,
		Path:   pathOTPVerify,
		Header: jsonHeader(appID),
		Body:   body,
	}
	m.send(ctx, op, req, func(resp *ports.Response) {
		if !ValidResponse(resp) {
			m.fail(ctx, op, &core.StatusError{Op: op, StatusCode: resp.StatusCode})
			return
		}
		var tokens tokenResponse
		if err := m.codec.Unmarshal(resp.Body, &tokens); err != nil {
			m.fail(ctx, op, fmt.Errorf("%w: %v", core.ErrParse, err))
			return
		}
		if tokens.Access == "" || tokens.Refresh == "" {
			m.fail(ctx, op, fmt.Errorf("%w: response must carry access and refresh tokens", core.ErrParse))
			return
		}

		m.mu.Lock()
		m.session = core.Session{AccessToken: tokens.Access, RefreshToken: tokens.Refresh}
		m.generation++
		m.mu.Unlock()

		m.logger.Info("session authenticated", zap.String("op", op))
		m.publish(ctx, core.Event{Type: core.EventOTPVerified, Op: op})
	})
	return nil
}

// RefreshAccessToken renews the access token in the background. Concurrent
// calls share a single request.
func (m *SessionManager) RefreshAccessToken(ctx context.Context) error {
	if _, _, err := m.requireSession(ctx, core.OpRefresh); err != nil {
		return err
	}
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		_ = m.refresh(ctx, "")
	}()
	return nil
}

// HandleUnauthorized is the explicit reaction to a 401: one coalesced refresh
func (m *SessionManager) HandleUnauthorized(ctx context.Context) error {
	return m.RefreshAccessToken(ctx)
}

// ValidResponse reports whether resp is a 200. It has no side effects.
func ValidResponse(resp *ports.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusOK
}

// CheckResponse is ValidResponse with an optional side effect: when
// refreshOnUnauthorized is set, a 401 schedules a refresh before false is returned.
func (m *SessionManager) CheckResponse(ctx context.Context, resp *ports.Response, refreshOnUnauthorized bool) bool {
	if refreshOnUnauthorized && resp != nil && resp.StatusCode == http.StatusUnauthorized {
		if err := m.HandleUnauthorized(ctx); err != nil {
			m.logger.Warn("refresh after 401 not scheduled", zap.Error(err))
		}
	}
	return ValidResponse(resp)
}

// refresh runs or joins the in-flight refresh and waits for its outcome. A
// non-empty rejected skips the request when that access token was already
// replaced; the check runs inside the flight so a refresh that just settled is
// not repeated.
func (m *SessionManager) refresh(ctx context.Context, rejected string) error {
	_, err, shared := m.refreshes.Do(refreshFlight, func() (any, error) {
		if rejected != "" && m.accessTokenReplaced(rejected) {
			m.logger.Debug("access token already renewed", zap.String("op", core.OpRefresh))
			return nil, nil
		}
		return nil, m.doRefresh(context.WithoutCancel(ctx))
	})
	if shared {
		m.logger.Debug("joined in-flight refresh", zap.String("op", core.OpRefresh))
	}
	return err
}

func (m *SessionManager) accessTokenReplaced(rejected string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State() == core.Authenticated && m.session.AccessToken != rejected
}

func (m *SessionManager) doRefresh(ctx context.Context) error {
	const op = core.OpRefresh

	m.mu.Lock()
	appID := m.creds.ApplicationID
	session := m.session
	gen := m.generation
	m.mu.Unlock()

	if appID == "" {
		err := fmt.Errorf("%w: application id not set", core.ErrConfiguration)
		m.fail(ctx, op, err)
		return err
	}
	if session.State() != core.Authenticated {
		m.fail(ctx, op, core.ErrAuthorization)
		return core.ErrAuthorization
	}

	body, err := m.codec.Marshal(refreshRequest{Refresh: session.RefreshToken})
	if err != nil {
		err = fmt.Errorf("encode request: %w", err)
		m.fail(ctx, op, err)
		return err
	}
	req := &ports.Request{
		Method: m.refreshMethod,
		Path:   pathTokenRefresh,
		Header: jsonHeader(appID),
		Body:   body,
	}

	resp, err := m.roundTrip(ctx, req)
	if err != nil {
		m.fail(ctx, op, err)
		return err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		err := &core.StatusError{Op: op, StatusCode: resp.StatusCode}
		m.fail(ctx, op, err)
		m.invalidate(ctx, gen, err)
		return err
	case !ValidResponse(resp):
		err := &core.StatusError{Op: op, StatusCode: resp.StatusCode}
		m.fail(ctx, op, err)
		return err
	}

	var tokens tokenResponse
	if err := m.codec.Unmarshal(resp.Body, &tokens); err != nil {
		err = fmt.Errorf("%w: %v", core.ErrParse, err)
		m.fail(ctx, op, err)
		return err
	}
	if tokens.Access == "" {
		err := fmt.Errorf("%w: response carries no access token", core.ErrParse)
		m.fail(ctx, op, err)
		return err
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.Info("discarding refresh for a replaced session", zap.String("op", op))
		return fmt.Errorf("%w: session changed during refresh", core.ErrAuthorization)
	}
	m.session.AccessToken = tokens.Access
	m.mu.Unlock()

	m.logger.Info("access token refreshed", zap.String("op", op))
	m.publish(ctx, core.Event{Type: core.EventTokenRefreshed, Op: op})
	return nil
}

// invalidate clears the session rejected by the refresh endpoint, unless it was
// replaced in the meantime
func (m *SessionManager) invalidate(ctx context.Context, gen uint64, cause error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.session = core.Session{}
	m.generation++
	m.mu.Unlock()

	m.logger.Warn("refresh token rejected, session cleared")
	m.publish(ctx, core.Event{Type: core.EventSignedOut, Op: core.OpRefresh, Err: cause})
}

// renewAfter refreshes unless the rejected access token was already replaced
func (m *SessionManager) renewAfter(ctx context.Context, rejected string) error {
	if m.State() != core.Authenticated {
		return core.ErrAuthorization
	}
	return m.refresh(ctx, rejected)
}

// scheduleRenewal is the one-shot reaction to a 401 on an authenticated call
func (m *SessionManager) scheduleRenewal(ctx context.Context, rejected string) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if err := m.renewAfter(ctx, rejected); err != nil {
			m.logger.Warn("renewal after 401 failed", zap.Error(err))
		}
	}()
}

// send dispatches req and runs handle with the response. Transport failures are
// reported as ErrTransport.
func (m *SessionManager) send(ctx context.Context, op string, req *ports.Request, handle func(*ports.Response)) {
	m.inflight.Add(1)
	m.transport.Send(ctx, req, func(resp *ports.Response, err error) {
		defer m.inflight.Done()
		if err == nil && resp == nil {
			err = errors.New("no response")
		}
		if err != nil {
			m.fail(ctx, op, transportError(err))
			return
		}
		handle(resp)
	})
}

// roundTrip is the blocking form of send
func (m *SessionManager) roundTrip(ctx context.Context, req *ports.Request) (*ports.Response, error) {
	type result struct {
		resp *ports.Response
		err  error
	}
	done := make(chan result, 1)
	m.transport.Send(ctx, req, func(resp *ports.Response, err error) {
		done <- result{resp, err}
	})
	res := <-done
	if res.err == nil && res.resp == nil {
		res.err = errors.New("no response")
	}
	if res.err != nil {
		return nil, transportError(res.err)
	}
	return res.resp, nil
}

func transportError(err error) error {
	if errors.Is(err, core.ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrTransport, err)
}

func (m *SessionManager) requireApplication(ctx context.Context, op string) (string, error) {
	m.mu.Lock()
	appID := m.creds.ApplicationID
	m.mu.Unlock()
	if appID == "" {
		return "", m.reject(ctx, op, fmt.Errorf("%w: application id not set", core.ErrConfiguration))
	}
	return appID, nil
}

func (m *SessionManager) requireSession(ctx context.Context, op string) (string, core.Session, error) {
	appID, err := m.requireApplication(ctx, op)
	if err != nil {
		return "", core.Session{}, err
	}
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session.State() != core.Authenticated {
		return "", core.Session{}, m.reject(ctx, op, core.ErrAuthorization)
	}
	return appID, session, nil
}

// reject reports a precondition failure and hands it back to the caller
func (m *SessionManager) reject(ctx context.Context, op string, err error) error {
	m.fail(ctx, op, err)
	return err
}

func (m *SessionManager) fail(ctx context.Context, op string, err error) {
	m.logger.Warn("operation failed", zap.String("op", op), zap.Error(err))
	m.publish(ctx, core.Event{Type: core.EventFailed, Op: op, Err: err})
}

func (m *SessionManager) publish(ctx context.Context, event core.Event) {
	if m.events == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = m.now()
	}
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Error("failed to publish event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
