// Package detection holds the OpenCV-backed face detector and camera
// capture. It is the only package that needs cgo and an OpenCV install.
package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-intent/pkg/perception"
)

// YuNetConfig configures the YuNet face detector.
type YuNetConfig struct {
	ModelPath        string  // Path to the ONNX model
	ConfidenceThresh float64 // Minimum face score
	InputWidth       int
	InputHeight      int
}

// DefaultYuNetConfig returns production defaults.
func DefaultYuNetConfig() YuNetConfig {
	return YuNetConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// YuNet detects faces with OpenCV's FaceDetectorYN. It reports five
// keypoints (both eyes, nose tip, both mouth corners) and no expression
// data, so the extractor can track head gestures and movement from it but
// the landmark mouth estimator stays idle.
type YuNet struct {
	detector gocv.FaceDetectorYN
	config   YuNetConfig
	mu       sync.Mutex
}

// NewYuNet loads the model at cfg.ModelPath.
func NewYuNet(cfg YuNetConfig) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: model file not found: %s", perception.ErrUnavailable, cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{detector: detector, config: cfg}, nil
}

// yunetFace is one row of FaceDetectorYN output, normalized.
type yunetFace struct {
	w, h   float64
	score  float64
	points [5]perception.Point // right eye, left eye, nose tip, right mouth corner, left mouth corner
}

// Detect decodes a JPEG frame and returns the best face.
func (d *YuNet) Detect(frame perception.Frame, timestampMs int64) (*perception.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("decode image: empty")
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())
	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	// Output rows: 0-3 box (px), 4-13 five keypoints (x,y px), 14 score.
	rows := make([]yunetFace, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		f := yunetFace{
			w:     float64(faces.GetFloatAt(r, 2)) / imgW,
			h:     float64(faces.GetFloatAt(r, 3)) / imgH,
			score: float64(faces.GetFloatAt(r, 14)),
		}
		for i := range f.points {
			f.points[i] = perception.Point{
				X: float64(faces.GetFloatAt(r, 4+2*i)) / imgW,
				Y: float64(faces.GetFloatAt(r, 5+2*i)) / imgH,
			}
		}
		rows = append(rows, f)
	}

	best := selectBest(rows)
	if best == nil {
		return &perception.Sample{TimestampMs: timestampMs}, nil
	}

	// The subject faces the camera, so the subject's left is image right.
	return &perception.Sample{
		TimestampMs: timestampMs,
		Face: &perception.Face{
			Landmarks: perception.Landmarks{
				perception.RightEye:   best.points[0],
				perception.LeftEye:    best.points[1],
				perception.NoseTip:    best.points[2],
				perception.MouthRight: best.points[3],
				perception.MouthLeft:  best.points[4],
			},
		},
	}, nil
}

// Close releases the detector.
func (d *YuNet) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// selectBest scores faces by confidence*0.7 + relative area*0.3.
func selectBest(faces []yunetFace) *yunetFace {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if a := f.w * f.h; a > maxArea {
			maxArea = a
		}
	}

	var best *yunetFace
	bestScore := -1.0
	for i := range faces {
		area := 0.0
		if maxArea > 0 {
			area = faces[i].w * faces[i].h / maxArea
		}
		if s := faces[i].score*0.7 + area*0.3; s > bestScore {
			bestScore = s
			best = &faces[i]
		}
	}
	return best
}

var _ perception.Detector = (*YuNet)(nil)
