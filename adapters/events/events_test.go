package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/leaderboard/core"
)

func TestDispatcher_RoutesByType(t *testing.T) {
	d := NewDispatcher()
	ctx := context.Background()

	var posted, verified int
	var all []core.EventType
	var scores []core.TopScores
	var failures []string

	d.OnScorePosted(func() { posted++ })
	d.OnOTPVerified(func() { verified++ })
	d.OnTopScores(func(s core.TopScores) { scores = append(scores, s) })
	d.OnFailure(func(op string, err error) { failures = append(failures, op+": "+err.Error()) })
	d.OnAny(func(e core.Event) { all = append(all, e.Type) })

	require.NoError(t, d.Publish(ctx, core.Event{Type: core.EventScorePosted}))
	require.NoError(t, d.Publish(ctx, core.Event{Type: core.EventOTPVerified}))
	require.NoError(t, d.Publish(ctx, core.Event{Type: core.EventScoresReceived, Scores: &core.TopScores{Count: 3}}))
	require.NoError(t, d.Publish(ctx, core.Event{Type: core.EventScoresReceived}))
	require.NoError(t, d.Publish(ctx, core.Event{Type: core.EventFailed, Op: core.OpRefresh, Err: errors.New("boom")}))

	assert.Equal(t, 1, posted)
	assert.Equal(t, 1, verified)
	assert.Equal(t, []core.TopScores{{Count: 3}}, scores)
	assert.Equal(t, []string{"refresh_access_token: boom"}, failures)
	assert.Len(t, all, 5)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, core.Event) error { return f.err }

func TestFanout_DeliversToAll(t *testing.T) {
	d := NewDispatcher()
	var mu sync.Mutex
	seen := 0
	d.OnAny(func(core.Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	boom := errors.New("boom")
	f := Fanout{failingPublisher{err: boom}, d}
	err := f.Publish(context.Background(), core.Event{Type: core.EventOTPSent})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, seen)
}

func TestWatermillPublisher_PublishesEnvelope(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	p := NewWatermillPublisher(pubSub, "")
	at := time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(ctx, core.Event{
		ID:     "evt-1",
		Type:   core.EventScoresReceived,
		Op:     core.OpTopScores,
		At:     at,
		Scores: &core.TopScores{Items: []core.ScoreEntry{{ID: 1, Score: 10, Rank: 1}}, Count: 1},
	}))
	require.NoError(t, p.Publish(ctx, core.Event{
		Type: core.EventFailed,
		Op:   core.OpRefresh,
		Err:  core.ErrAuthExpired,
	}))

	var first, second Envelope
	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "evt-1", msg.UUID)
		assert.Equal(t, string(core.EventScoresReceived), msg.Metadata.Get("type"))
		require.NoError(t, json.Unmarshal(msg.Payload, &first))
	case <-ctx.Done():
		t.Fatal("no message")
	}
	select {
	case msg := <-messages:
		msg.Ack()
		assert.NotEmpty(t, msg.UUID)
		require.NoError(t, json.Unmarshal(msg.Payload, &second))
	case <-ctx.Done():
		t.Fatal("no message")
	}

	assert.Equal(t, core.EventScoresReceived, first.Type)
	assert.True(t, at.Equal(first.At))
	require.NotNil(t, first.Scores)
	assert.Equal(t, 1, first.Scores.Count)
	assert.Empty(t, first.Error)

	assert.Equal(t, core.EventFailed, second.Type)
	assert.Equal(t, core.ErrAuthExpired.Error(), second.Error)
}
