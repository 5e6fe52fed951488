package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/teslashibe/go-intent/pkg/perception"
	"github.com/teslashibe/go-intent/pkg/protocol"
)

// ReplayRecord is one line of a JSON-lines trace.
type ReplayRecord struct {
	TimestampMs int64              `json:"ts"`
	Level       float64            `json:"level"`
	Sample      *protocol.FaceData `json:"sample,omitempty"`
}

// replayInputs serves the current record to the engine.
type replayInputs struct {
	sample *perception.Sample
	level  float64
}

func (r *replayInputs) Sample(context.Context, time.Time) (*perception.Sample, error) {
	return r.sample, nil
}

func (r *replayInputs) PollLevel() float64 { return r.level }

// Replay runs a recorded trace through a fresh engine built from cfg, one
// tick per record at the record's timestamp. fn, when set, sees every
// snapshot. It returns the number of records replayed.
func Replay(ctx context.Context, r io.Reader, cfg Config, out Committer, fn func(Snapshot)) (int, error) {
	in := &replayInputs{}
	e := New(cfg, Deps{Perception: in, Audio: in, Output: out})

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		n      int
		line   int
		lastTS int64
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}

		var rec ReplayRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return n, fmt.Errorf("replay: line %d: %w", line, err)
		}
		if rec.TimestampMs < lastTS {
			return n, fmt.Errorf("replay: line %d: timestamp %d goes backwards", line, rec.TimestampMs)
		}
		lastTS = rec.TimestampMs

		in.sample = nil
		if rec.Sample != nil {
			in.sample = rec.Sample.Sample(rec.TimestampMs)
		}
		in.level = rec.Level

		e.PollAudio()
		snap := e.Tick(ctx, time.UnixMilli(rec.TimestampMs))
		n++
		if fn != nil {
			fn(snap)
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("replay: read: %w", err)
	}
	return n, nil
}
