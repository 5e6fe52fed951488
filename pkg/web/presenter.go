package web

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-intent/pkg/convlog"
	"github.com/teslashibe/go-intent/pkg/engine"
	"github.com/teslashibe/go-intent/pkg/hub"
	"github.com/teslashibe/go-intent/pkg/output"
	"github.com/teslashibe/go-intent/pkg/protocol"
)

// DefaultPublishInterval caps signal frames sent to dashboards.
const DefaultPublishInterval = 100 * time.Millisecond

// Publisher delivers presentation messages. *hub.Hub satisfies it.
type Publisher interface {
	Publish(t protocol.MessageType, data any) error
}

// Presenter turns engine snapshots and output events into dashboard
// messages. It implements engine.Presenter, output.Display and
// output.Haptics.
type Presenter struct {
	pub      Publisher
	log      *convlog.Log
	interval time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	lastSignal time.Time
	lastPhase  protocol.PhaseData
	lastInputs [2]bool
	started    bool
}

// NewPresenter creates a presenter. l, when set, is republished after
// every commit.
func NewPresenter(pub Publisher, l *convlog.Log, interval time.Duration, logger *slog.Logger) *Presenter {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Presenter{
		pub:      pub,
		log:      l,
		interval: interval,
		logger:   logger.With("component", "web.presenter"),
	}
}

// Present publishes the signal frame at most once per interval, and phase
// and input status whenever they change.
func (p *Presenter) Present(s engine.Snapshot) {
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	phase := phaseData(s)
	inputs := [2]bool{s.Camera, s.Mic}

	p.mu.Lock()
	first := !p.started
	p.started = true
	sendSignal := first || at.Sub(p.lastSignal) >= p.interval || phase.Phase != p.lastPhase.Phase
	if sendSignal {
		p.lastSignal = at
	}
	// Phase and candidate changes go out at once; progress rides with the
	// signal throttle.
	sendPhase := first ||
		phase.Phase != p.lastPhase.Phase ||
		phase.Candidate != p.lastPhase.Candidate ||
		(sendSignal && phase != p.lastPhase)
	if sendPhase {
		p.lastPhase = phase
	}
	sendStatus := first || inputs != p.lastInputs
	p.lastInputs = inputs
	p.mu.Unlock()

	if sendSignal {
		frame, err := json.Marshal(s.Frame)
		if err != nil {
			p.logger.Warn("encode frame", "error", err)
		} else {
			p.publish(protocol.TypeSignal, protocol.SignalData{Frame: frame, Level: s.Level, Spike: s.Spike})
		}
	}
	if sendPhase {
		p.publish(protocol.TypePhase, phase)
	}
	if sendStatus {
		p.PublishStatus(s.Camera, s.Mic)
	}
}

// ShowCommit publishes a commit immediately, followed by the updated log.
func (p *Presenter) ShowCommit(ev output.Event) {
	p.publish(protocol.TypeCommit, protocol.CommitData{
		ID:       ev.Entry.ID,
		Message:  ev.Message,
		Category: ev.Category,
		Source:   string(ev.Source),
		Spoken:   ev.Spoken,
	})
	p.PublishLog()
}

// Pulse publishes a haptic pattern.
func (p *Presenter) Pulse(pattern []time.Duration) {
	p.publish(protocol.TypeHaptic, protocol.HapticData{Pattern: protocol.MillisPattern(pattern)})
}

// PublishLog publishes the current conversation log.
func (p *Presenter) PublishLog() {
	if p.log == nil {
		return
	}
	entries, err := json.Marshal(p.log.Entries())
	if err != nil {
		p.logger.Warn("encode log", "error", err)
		return
	}
	p.publish(protocol.TypeLog, protocol.LogData{Patient: p.log.Patient(), Entries: entries})
}

// PublishStatus publishes input state.
func (p *Presenter) PublishStatus(camera, mic bool) {
	data := protocol.StatusData{Camera: camera, Mic: mic}
	if p.log != nil {
		data.Patient = p.log.Patient()
	}
	p.publish(protocol.TypeStatus, data)
}

// Welcome returns the messages that bring a new dashboard up to date with
// snapshot s: status, phase, the latest frame and the log.
func (p *Presenter) Welcome(s engine.Snapshot) []hub.Message {
	var out []hub.Message
	add := func(t protocol.MessageType, data any) {
		msg, err := protocol.NewMessage(t, data)
		if err != nil {
			p.logger.Warn("encode welcome", "type", t, "error", err)
			return
		}
		m, err := hub.Encode(msg)
		if err != nil {
			p.logger.Warn("encode welcome", "type", t, "error", err)
			return
		}
		out = append(out, m)
	}

	status := protocol.StatusData{Camera: s.Camera, Mic: s.Mic}
	if p.log != nil {
		status.Patient = p.log.Patient()
	}
	add(protocol.TypeStatus, status)
	add(protocol.TypePhase, phaseData(s))
	if frame, err := json.Marshal(s.Frame); err == nil {
		add(protocol.TypeSignal, protocol.SignalData{Frame: frame, Level: s.Level, Spike: s.Spike})
	}
	if p.log != nil {
		if entries, err := json.Marshal(p.log.Entries()); err == nil {
			add(protocol.TypeLog, protocol.LogData{Patient: p.log.Patient(), Entries: entries})
		}
	}
	return out
}

func (p *Presenter) publish(t protocol.MessageType, data any) {
	if p.pub == nil {
		return
	}
	if err := p.pub.Publish(t, data); err != nil {
		p.logger.Warn("publish failed", "type", t, "error", err)
	}
}

func phaseData(s engine.Snapshot) protocol.PhaseData {
	d := protocol.PhaseData{
		Phase:    string(s.Phase),
		Label:    s.Label,
		Progress: s.Progress,
	}
	if s.Candidate != nil {
		d.Candidate = s.Candidate.Label
	}
	return d
}
