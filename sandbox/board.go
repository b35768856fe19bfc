package sandbox

import (
	"sort"
	"sync"
	"time"

	"github.com/layer-3/leaderboard/core"
)

type record struct {
	id        int64
	user      core.User
	score     float64
	topic     string
	createdAt time.Time
}

// Board is the in-memory score list of the sandbox
type Board struct {
	mu      sync.RWMutex
	records []record
	nextID  int64
}

// NewBoard creates an empty board
func NewBoard() *Board {
	return &Board{nextID: 1}
}

// Add appends a score
func (b *Board) Add(user core.User, score float64, topic string, at time.Time) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.records = append(b.records, record{
		id:        id,
		user:      user,
		score:     score,
		topic:     topic,
		createdAt: at.UTC(),
	})
	return id
}

// Len returns the number of stored scores
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Filter selects the rows of a top-scores query
type Filter struct {
	Topic     string
	From, To  time.Time // Zero means unbounded
	Order     core.Order
	AllScores bool // Keep every score instead of each user's best
	Limit     int
}

// Top ranks the scores matching f
func (b *Board) Top(f Filter) core.TopScores {
	b.mu.RLock()
	matched := make([]record, 0, len(b.records))
	for _, r := range b.records {
		if f.Topic != "" && r.topic != f.Topic {
			continue
		}
		if !f.From.IsZero() && r.createdAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && r.createdAt.After(f.To) {
			continue
		}
		matched = append(matched, r)
	}
	b.mu.RUnlock()

	lowest := f.Order == core.OrderLowest
	better := func(a, b record) bool {
		if a.score == b.score {
			return a.id < b.id
		}
		if lowest {
			return a.score < b.score
		}
		return a.score > b.score
	}

	if !f.AllScores {
		best := make(map[string]record, len(matched))
		for _, r := range matched {
			if cur, ok := best[r.user.Username]; !ok || better(r, cur) {
				best[r.user.Username] = r
			}
		}
		matched = matched[:0]
		for _, r := range best {
			matched = append(matched, r)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return better(matched[i], matched[j]) })
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := core.TopScores{Items: make([]core.ScoreEntry, 0, len(matched)), Count: len(matched)}
	for i, r := range matched {
		out.Items = append(out.Items, core.ScoreEntry{
			ID:        r.id,
			User:      r.user,
			Score:     r.score,
			Topic:     r.topic,
			CreatedAt: r.createdAt.Format(time.RFC3339),
			Rank:      i + 1,
		})
	}
	return out
}
