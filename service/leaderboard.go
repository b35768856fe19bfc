package service

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/ports"
)

// SubmitScore posts a signed score for the signed-in player.
//
// secret is only used when no API secret is set yet; it is then kept for later
// calls. A 401 schedules exactly one token refresh. Whether the submission is
// then re-sent depends on the RetryPolicy; by default it is not, and the caller
// decides after the token.refreshed event.
func (m *SessionManager) SubmitScore(ctx context.Context, score float64, topic, secret string) error {
	const op = core.OpSubmitScore
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return m.reject(ctx, op, fmt.Errorf("%w: score must be finite", core.ErrConfiguration))
	}
	if _, _, err := m.requireSession(ctx, op); err != nil {
		return err
	}

	m.mu.Lock()
	if m.creds.APISecret == "" && secret != "" {
		m.creds.APISecret = secret
	}
	signingKey := m.creds.APISecret
	m.mu.Unlock()

	if signingKey == "" {
		return m.reject(ctx, op, fmt.Errorf("%w: api secret not set", core.ErrConfiguration))
	}

	m.postSignedScore(ctx, signingKey, score, topic, false)
	return nil
}

func (m *SessionManager) postSignedScore(ctx context.Context, secret string, score float64, topic string, retried bool) {
	const op = core.OpSubmitScore

	m.mu.Lock()
	appID := m.creds.ApplicationID
	session := m.session
	m.mu.Unlock()
	if session.State() != core.Authenticated {
		m.fail(ctx, op, core.ErrAuthorization)
		return
	}

	sub := core.NewScoreSubmission(secret, score, topic, m.now())
	body, err := m.codec.Marshal(signedScoreRequest{
		Score:     sub.Score,
		Timestamp: strconv.FormatInt(sub.Timestamp, 10),
		Signature: sub.Signature,
		Topic:     sub.Topic,
	})
	if err != nil {
		m.fail(ctx, op, fmt.Errorf("encode request: %w", err))
		return
	}

	req := &ports.Request{
		Method: http.MethodPost,
		Path:   pathSignedScore,
		Header: bearerHeader(appID, session.AccessToken),
		Body:   body,
	}
	m.send(ctx, op, req, func(resp *ports.Response) {
		switch resp.StatusCode {
		case http.StatusOK:
			m.logger.Info("score posted", zap.String("topic", topic), zap.Bool("retried", retried))
			m.publish(ctx, core.Event{Type: core.EventScorePosted, Op: op})
		case http.StatusUnauthorized:
			rejected := &core.StatusError{Op: op, StatusCode: resp.StatusCode}
			if m.retry == RetryOnceAfterRefresh && !retried {
				m.inflight.Add(1)
				go func() {
					defer m.inflight.Done()
					if err := m.renewAfter(ctx, session.AccessToken); err != nil {
						m.fail(ctx, op, rejected)
						return
					}
					m.postSignedScore(ctx, secret, score, topic, true)
				}()
				return
			}
			m.fail(ctx, op, rejected)
			if !retried {
				m.scheduleRenewal(ctx, session.AccessToken)
			}
		default:
			m.fail(ctx, op, &core.StatusError{Op: op, StatusCode: resp.StatusCode})
		}
	})
}

// ServerSubmitScore posts a score on behalf of username, authenticated by the API secret
func (m *SessionManager) ServerSubmitScore(ctx context.Context, username string, score float64) error {
	const op = core.OpServerScore
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return m.reject(ctx, op, fmt.Errorf("%w: score must be finite", core.ErrConfiguration))
	}
	appID, err := m.requireApplication(ctx, op)
	if err != nil {
		return err
	}
	m.mu.Lock()
	secret := m.creds.APISecret
	m.mu.Unlock()
	if secret == "" {
		return m.reject(ctx, op, fmt.Errorf("%w: api secret not set", core.ErrConfiguration))
	}

	body, err := m.codec.Marshal(serverScoreRequest{Username: username, Score: score})
	if err != nil {
		return m.reject(ctx, op, fmt.Errorf("encode request: %w", err))
	}
	header := jsonHeader(appID)
	header.Set(HeaderAPISecret, secret)
	header.Set("Accept", "application/json")

	req := &ports.Request{
		Method: http.MethodPost,
		Path:   pathServerScores(appID),
		Header: header,
		Body:   body,
	}
	m.send(ctx, op, req, func(resp *ports.Response) {
		if !ValidResponse(resp) {
			m.fail(ctx, op, &core.StatusError{Op: op, StatusCode: resp.StatusCode})
			return
		}
		m.publish(ctx, core.Event{Type: core.EventScorePosted, Op: op})
	})
	return nil
}

// GetTopScores fetches a leaderboard; the result arrives as a scores.received event
func (m *SessionManager) GetTopScores(ctx context.Context, q core.TopScoresQuery) error {
	const op = core.OpTopScores
	appID, err := m.requireApplication(ctx, op)
	if err != nil {
		return err
	}
	query, err := topScoresValues(q)
	if err != nil {
		return m.reject(ctx, op, err)
	}

	header := http.Header{}
	header.Set(HeaderApplicationID, appID)
	req := &ports.Request{
		Method: http.MethodGet,
		Path:   pathTopScores(appID),
		Query:  query,
		Header: header,
	}
	m.send(ctx, op, req, func(resp *ports.Response) {
		if !ValidResponse(resp) {
			m.fail(ctx, op, &core.StatusError{Op: op, StatusCode: resp.StatusCode})
			return
		}
		var scores core.TopScores
		if err := m.codec.Unmarshal(resp.Body, &scores); err != nil {
			m.fail(ctx, op, fmt.Errorf("%w: %v", core.ErrParse, err))
			return
		}
		m.publish(ctx, core.Event{Type: core.EventScoresReceived, Op: op, Scores: &scores})
	})
	return nil
}

// GetUser fetches the profile of the signed-in player
func (m *SessionManager) GetUser(ctx context.Context) error {
	const op = core.OpGetUser
	appID, session, err := m.requireSession(ctx, op)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set(HeaderApplicationID, appID)
	header.Set("Authorization", "Bearer "+session.AccessToken)
	req := &ports.Request{
		Method: http.MethodGet,
		Path:   pathUser,
		Header: header,
	}
	m.send(ctx, op, req, func(resp *ports.Response) {
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			m.fail(ctx, op, &core.StatusError{Op: op, StatusCode: resp.StatusCode})
			m.scheduleRenewal(ctx, session.AccessToken)
			return
		case !ValidResponse(resp):
			m.fail(ctx, op, &core.StatusError{Op: op, StatusCode: resp.StatusCode})
			return
		}
		var user core.User
		if err := m.codec.Unmarshal(resp.Body, &user); err != nil {
			m.fail(ctx, op, fmt.Errorf("%w: %v", core.ErrParse, err))
			return
		}
		m.publish(ctx, core.Event{Type: core.EventUserReceived, Op: op, User: &user})
	})
	return nil
}

func topScoresValues(q core.TopScoresQuery) (url.Values, error) {
	v := url.Values{}
	if q.Featured {
		v.Set("featured", "true")
	}
	if q.Topic != "" {
		v.Set("topic", q.Topic)
	}
	if q.Period != "" {
		if !q.Period.Valid() {
			return nil, fmt.Errorf("%w: unknown period %q", core.ErrConfiguration, q.Period)
		}
		v.Set("period", string(q.Period))
	}
	switch q.Order {
	case "":
	case core.OrderHighest, core.OrderLowest:
		v.Set("order", string(q.Order))
	default:
		return nil, fmt.Errorf("%w: unknown order %q", core.ErrConfiguration, q.Order)
	}
	if q.StartTime != "" {
		v.Set("starttime", q.StartTime)
	}
	if q.EndTime != "" {
		v.Set("endtime", q.EndTime)
	}
	if q.IncludeAllUsersScores {
		v.Set("include_all_users_scores", "true")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = core.DefaultTopScoresLimit
	}
	v.Set("limit", strconv.Itoa(limit))
	return v, nil
}
