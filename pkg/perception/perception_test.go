package perception

import (
	"context"
	"errors"
	"go/parser"
	"go/token"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLandmarksGet(t *testing.T) {
	l := Landmarks{
		NoseTip:   {X: 0.5, Y: 0.5},
		MouthLeft: {X: math.NaN(), Y: 0.6},
	}

	if _, ok := l.Get(NoseTip); !ok {
		t.Error("nose tip should be present")
	}
	if _, ok := l.Get(MouthLeft); ok {
		t.Error("NaN point should read as missing")
	}
	if _, ok := l.Get(UpperLip); ok {
		t.Error("absent role should read as missing")
	}
	if l.Has(MouthRoles[:]...) {
		t.Error("mouth roles should be incomplete")
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		face    *Face
		wantErr bool
	}{
		{"nil face", nil, false},
		{"full mesh", &Face{Landmarks: Landmarks{
			NoseTip: {0.5, 0.5}, MouthLeft: {0.4, 0.7}, MouthRight: {0.6, 0.7},
			UpperLip: {0.5, 0.68}, LowerLip: {0.5, 0.72},
		}}, false},
		{"yunet keypoints", &Face{Landmarks: Landmarks{
			NoseTip: {0.5, 0.5}, MouthLeft: {0.4, 0.7}, MouthRight: {0.6, 0.7},
		}}, false},
		{"expressions only", &Face{Expressions: map[string]float64{"jawOpen": 0.2}}, false},
		{"missing nose", &Face{Landmarks: Landmarks{MouthLeft: {0.4, 0.7}}}, true},
		{"empty face", &Face{}, true},
		{"infinite point", &Face{Landmarks: Landmarks{NoseTip: {math.Inf(1), 0.5}}}, true},
		{"nan expression", &Face{Expressions: map[string]float64{"jawOpen": math.NaN()}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.face)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBuffer(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1000, 0)
	b := NewBuffer(500 * time.Millisecond)

	if _, err := b.Sample(ctx, start); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("empty buffer should be unavailable, got %v", err)
	}

	face := &Sample{Face: &Face{Landmarks: Landmarks{NoseTip: {0.5, 0.5}}}}
	b.Push(face, start)

	s, err := b.Sample(ctx, start.Add(100*time.Millisecond))
	if err != nil || !s.HasFace() {
		t.Fatalf("fresh sample should carry the face: %v %+v", err, s)
	}

	s, err = b.Sample(ctx, start.Add(600*time.Millisecond))
	if err != nil {
		t.Fatalf("stale sample should not error: %v", err)
	}
	if s.HasFace() {
		t.Error("stale sample should read as no face")
	}

	b.Reset()
	if _, err := b.Sample(ctx, start); !errors.Is(err, ErrUnavailable) {
		t.Errorf("reset buffer should be unavailable, got %v", err)
	}
}

type stubFrames struct{ err error }

func (s stubFrames) Next(context.Context) (Frame, error) { return Frame{Data: []byte{1}}, s.err }
func (s stubFrames) Close() error                        { return nil }

type stubDetector struct{ gotTS int64 }

func (d *stubDetector) Detect(_ Frame, ts int64) (*Sample, error) {
	d.gotTS = ts
	return &Sample{TimestampMs: ts}, nil
}
func (d *stubDetector) Close() error { return nil }

func TestDetectorSource(t *testing.T) {
	now := time.UnixMilli(123456)
	det := &stubDetector{}
	src := &DetectorSource{Frames: stubFrames{}, Detector: det}

	s, err := src.Sample(context.Background(), now)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if s.TimestampMs != 123456 || det.gotTS != 123456 {
		t.Errorf("timestamp not forwarded: sample=%d detector=%d", s.TimestampMs, det.gotTS)
	}

	readErr := errors.New("read failed")
	src.Frames = stubFrames{err: readErr}
	if _, err := src.Sample(context.Background(), now); !errors.Is(err, readErr) {
		t.Errorf("frame error should propagate, got %v", err)
	}

	empty := &DetectorSource{}
	if _, err := empty.Sample(context.Background(), now); !errors.Is(err, ErrUnavailable) {
		t.Errorf("unconfigured source should be unavailable, got %v", err)
	}
}

// The extractor and everything above it import this package, so it must
// build without OpenCV. Detector backends live in ./detection.
func TestPackageHasNoOpenCVImports(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatal(err)
	}
	fset := token.NewFileSet()
	for _, name := range files {
		src, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		f, err := parser.ParseFile(fset, name, src, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, imp := range f.Imports {
			if path := strings.Trim(imp.Path.Value, `"`); strings.HasPrefix(path, "gocv.io/") || path == "C" {
				t.Errorf("%s imports %s", name, path)
			}
		}
	}
}
