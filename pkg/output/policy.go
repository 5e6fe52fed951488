package output

import "time"

// SpeechPolicy decides whether a committed message is spoken.
type SpeechPolicy struct {
	Cooldown       time.Duration // minimum gap between any two utterances
	RepeatCooldown time.Duration // minimum gap before repeating the same message
}

// DefaultSpeechPolicy returns a 4s cooldown and a 10s repeat cooldown.
func DefaultSpeechPolicy() SpeechPolicy {
	return SpeechPolicy{
		Cooldown:       4 * time.Second,
		RepeatCooldown: 10 * time.Second,
	}
}

// TTSState is what the policy remembers about the last utterance.
type TTSState struct {
	LastSpeak   time.Time
	LastMessage string
}

// Allow reports whether msg may be spoken at now.
func (p SpeechPolicy) Allow(st TTSState, msg string, now time.Time) bool {
	if st.LastSpeak.IsZero() {
		return true
	}
	elapsed := now.Sub(st.LastSpeak)
	if elapsed < p.Cooldown {
		return false
	}
	return msg != st.LastMessage || elapsed >= p.RepeatCooldown
}
