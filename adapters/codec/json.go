package codec

import (
	"github.com/goccy/go-json"

	"github.com/layer-3/leaderboard/ports"
)

// JSON is the Codec used for every leaderboard API body
type JSON struct{}

var _ ports.Codec = JSON{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
