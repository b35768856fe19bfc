package sandbox

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/leaderboard/adapters/store"
	"github.com/layer-3/leaderboard/core"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	testApp    = "app-1"
	testSecret = "secret"
)

var testNow = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

func newTestServer() (*Server, http.Handler) {
	s := New(Config{
		ApplicationID: testApp,
		APISecret:     testSecret,
		JWTSecret:     []byte("jwt-key"),
		FixedOTP:      "424242",
	}, store.NewMemoryStore(), nil).WithClock(func() time.Time { return testNow })
	return s, s.Router()
}

func call(h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerApplicationID, testApp)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func login(t *testing.T, h http.Handler, email string) (string, string) {
	t.Helper()
	w := call(h, http.MethodPost, "/public/auth/otp/generate", map[string]string{"email": email}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(h, http.MethodPost, "/public/auth/otp/verify", map[string]string{"email": email, "otp": "424242"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	return body["access"].(string), body["refresh"].(string)
}

func signedScore(score float64, topic string, at time.Time) map[string]any {
	ts := at.Unix()
	body := map[string]any{
		"score":     score,
		"timestamp": strconv.FormatInt(ts, 10),
		"signature": core.Sign(testSecret, score, ts, topic),
	}
	if topic != "" {
		body["topic"] = topic
	}
	return body
}

func TestRequireApplication(t *testing.T) {
	_, h := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/public/auth/otp/generate", bytes.NewBufferString(`{"email":"a@b.c"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(h, http.MethodPost, "/public/auth/otp/generate", map[string]string{"email": "a@b.c"},
		map[string]string{headerApplicationID: "other"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(h, http.MethodGet, "/public/leaderboards/other/top-scores", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOTPLogin(t *testing.T) {
	s, h := newTestServer()

	access, refresh := login(t, h, "Ann@Example.com")
	sub, err := s.tokens.ParseAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "Ann@Example.com", sub)
	_, err = s.tokens.ParseRefresh(refresh)
	require.NoError(t, err)

	// Codes are single use
	w := call(h, http.MethodPost, "/public/auth/otp/verify", map[string]string{"email": "ann@example.com", "otp": "424242"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	_, h := newTestServer()
	require.Equal(t, http.StatusOK, call(h, http.MethodPost, "/public/auth/otp/generate", map[string]string{"email": "a@b.c"}, nil).Code)

	w := call(h, http.MethodPost, "/public/auth/otp/verify", map[string]string{"email": "a@b.c", "otp": "000000"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(h, http.MethodPost, "/public/auth/otp/verify", map[string]string{"email": "a@b.c"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateOTP_RandomCode(t *testing.T) {
	codes := store.NewMemoryStore()
	s := New(Config{ApplicationID: testApp, APISecret: testSecret, JWTSecret: []byte("k")}, codes, nil)
	h := s.Router()

	w := call(h, http.MethodPost, "/public/auth/otp/generate", map[string]string{"email": "a@b.c"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	code, err := codes.Get(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Len(t, code, 6)
	_, err = strconv.Atoi(code)
	assert.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	_, h := newTestServer()
	access, refresh := login(t, h, "ann@example.com")

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		w := call(h, method, "/public/auth/token/refresh", map[string]string{"refresh": refresh}, nil)
		require.Equal(t, http.StatusOK, w.Code, method)
		body := decode(t, w)
		assert.NotEmpty(t, body["access"])
		assert.NotContains(t, body, "refresh")
	}

	w := call(h, http.MethodPost, "/public/auth/token/refresh", map[string]string{"refresh": access}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitSignedScore(t *testing.T) {
	s, h := newTestServer()
	access, _ := login(t, h, "ann@example.com")
	bearer := map[string]string{"Authorization": "Bearer " + access}

	w := call(h, http.MethodPost, "/public/leaderboards/sdk/score", signedScore(12.345, "t", testNow), bearer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, s.Board().Len())

	top := s.Board().Top(Filter{Order: core.OrderHighest})
	require.Len(t, top.Items, 1)
	assert.Equal(t, "ann", top.Items[0].User.Username)
	assert.Equal(t, "t", top.Items[0].Topic)
}

func TestSubmitSignedScore_Rejections(t *testing.T) {
	s, h := newTestServer()
	access, _ := login(t, h, "ann@example.com")
	bearer := map[string]string{"Authorization": "Bearer " + access}

	w := call(h, http.MethodPost, "/public/leaderboards/sdk/score", signedScore(10, "", testNow), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tampered := signedScore(10, "", testNow)
	tampered["score"] = 11.0
	w = call(h, http.MethodPost, "/public/leaderboards/sdk/score", tampered, bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Topic is part of the signed message
	retopic := signedScore(10, "t", testNow)
	retopic["topic"] = "other"
	w = call(h, http.MethodPost, "/public/leaderboards/sdk/score", retopic, bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(h, http.MethodPost, "/public/leaderboards/sdk/score", signedScore(10, "", testNow.Add(-time.Hour)), bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(h, http.MethodPost, "/public/leaderboards/sdk/score", map[string]any{"score": 1}, bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, s.Board().Len())
}

func TestSubmitSignedScore_ExpiredAccessToken(t *testing.T) {
	now := testNow
	s := New(Config{
		ApplicationID: testApp,
		APISecret:     testSecret,
		JWTSecret:     []byte("jwt-key"),
		FixedOTP:      "424242",
	}, store.NewMemoryStore(), nil).WithClock(func() time.Time { return now })
	h := s.Router()
	access, _ := login(t, h, "ann@example.com")

	now = testNow.Add(time.Hour)
	w := call(h, http.MethodPost, "/public/leaderboards/sdk/score", signedScore(10, "", now),
		map[string]string{"Authorization": "Bearer " + access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitServerScore(t *testing.T) {
	s, h := newTestServer()
	path := "/public/leaderboards/" + testApp + "/scores"

	w := call(h, http.MethodPost, path, map[string]any{"username": "bob", "score": 7}, map[string]string{headerAPISecret: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(h, http.MethodPost, path, map[string]any{"username": "bob", "score": 7}, map[string]string{headerAPISecret: testSecret})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["id"])
	assert.Equal(t, 1, s.Board().Len())
}

func TestTopScoresEndpoint(t *testing.T) {
	s, h := newTestServer()
	ann := core.User{Username: "ann", Name: "ann"}
	bob := core.User{Username: "bob", Name: "bob"}
	s.Board().Add(ann, 10, "t", testNow)
	s.Board().Add(bob, 30, "t", testNow)
	s.Board().Add(bob, 99, "t", testNow.AddDate(0, -2, 0))

	path := "/public/leaderboards/" + testApp + "/top-scores"
	w := call(h, http.MethodGet, path+"?topic=t&period=monthly&limit=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var top core.TopScores
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &top))
	require.Equal(t, 2, top.Count)
	assert.Equal(t, "bob", top.Items[0].User.Username)
	assert.Equal(t, 30.0, top.Items[0].Score)

	w = call(h, http.MethodGet, path+"?order=lowest", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &top))
	assert.Equal(t, "ann", top.Items[0].User.Username)

	for _, q := range []string{"?order=random", "?period=yearly", "?limit=0", "?starttime=yesterday"} {
		w = call(h, http.MethodGet, path+q, nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestUserEndpoint(t *testing.T) {
	_, h := newTestServer()
	access, _ := login(t, h, "ann@example.com")

	w := call(h, http.MethodGet, "/public/user/", nil, map[string]string{"Authorization": "Bearer " + access})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"username": "ann", "name": "ann"}, decode(t, w))

	w = call(h, http.MethodGet, "/public/user/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
