package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/teslashibe/go-intent/pkg/convlog"
	"github.com/teslashibe/go-intent/pkg/output"
	"github.com/teslashibe/go-intent/pkg/rules"
)

func smileTrace(start int64, frames int) string {
	var b strings.Builder
	b.WriteString("# sustained smile\n")
	for i := 0; i < frames; i++ {
		fmt.Fprintf(&b, `{"ts":%d,"level":0.05,"sample":{"present":true,"expressions":{"mouthSmileLeft":0.5,"mouthSmileRight":0.5}}}`+"\n", start+int64(i)*33)
	}
	return b.String()
}

func TestReplayCommitsFromTrace(t *testing.T) {
	l, _ := convlog.New(convlog.NewMemoryStore(), "trace")
	out := output.NewCoordinator(output.Config{Recorder: l})

	var commits []string
	n, err := Replay(context.Background(), strings.NewReader(smileTrace(1700000000000, 40)), DefaultConfig(), out, func(s Snapshot) {
		if s.Committed != nil {
			commits = append(commits, s.Committed.Label)
		}
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 40 {
		t.Errorf("replayed %d records, want 40", n)
	}
	if len(commits) != 1 || commits[0] != rules.FeelingHappy {
		t.Errorf("commits = %v, want one %q", commits, rules.FeelingHappy)
	}
	if l.Len() != 1 {
		t.Errorf("log len = %d, want 1", l.Len())
	}
}

func TestReplayRejectsBadTraces(t *testing.T) {
	tests := []struct {
		name  string
		trace string
	}{
		{"bad json", "{\"ts\":1}\nnot json\n"},
		{"time goes backwards", "{\"ts\":2000}\n{\"ts\":1000}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Replay(context.Background(), strings.NewReader(tt.trace), DefaultConfig(), nil, nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), "line 2") {
				t.Errorf("error should name line 2: %v", err)
			}
			if n != 1 {
				t.Errorf("replayed %d records before the error, want 1", n)
			}
		})
	}
}
