// facecam runs YuNet on a local camera and streams face samples to an
// intentd ingest socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-intent/internal/log"
	"github.com/teslashibe/go-intent/pkg/ingest"
	"github.com/teslashibe/go-intent/pkg/perception"
	"github.com/teslashibe/go-intent/pkg/perception/detection"
	"github.com/teslashibe/go-intent/pkg/protocol"
)

var (
	serverURL  string
	clientID   string
	device     int
	modelPath  string
	confidence float64
	fps        int
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "facecam",
	Short:        "Stream face samples from a local camera to intentd",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&serverURL, "server", "ws://localhost:8080/ws/ingest", "Ingest websocket URL")
	f.StringVar(&clientID, "id", "facecam", "Client ID appended to the URL")
	f.IntVar(&device, "device", 0, "Camera device index")
	f.StringVar(&modelPath, "model", detection.DefaultYuNetConfig().ModelPath, "YuNet ONNX model")
	f.Float64Var(&confidence, "confidence", 0.5, "Minimum face score")
	f.IntVar(&fps, "fps", 30, "Samples per second")
	f.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log.Init(logLevel)
	logger := log.Component("facecam")

	if fps <= 0 {
		return fmt.Errorf("fps must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	yc := detection.DefaultYuNetConfig()
	yc.ModelPath = modelPath
	yc.ConfidenceThresh = confidence
	det, err := detection.NewYuNet(yc)
	if err != nil {
		return err
	}
	cam, err := detection.OpenCamera(device)
	if err != nil {
		det.Close()
		return err
	}
	src := &perception.DetectorSource{Frames: cam, Detector: det}
	defer src.Close()

	url := serverURL
	if clientID != "" {
		url = serverURL + "/" + clientID
	}
	client, err := ingest.Dial(ctx, url, log.L())
	if err != nil {
		return err
	}
	defer func() {
		client.SendCamera(false)
		client.Close()
	}()

	go client.Listen(ctx, func(m *protocol.Message) {
		if m.Type == protocol.TypeError {
			var e protocol.ErrorData
			m.ParseData(&e)
			logger.Warn("server rejected a message", "error", e.Message)
		}
	})

	if err := client.SendCamera(true); err != nil {
		return err
	}
	logger.Info("streaming", "server", url, "device", device, "fps", fps)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var sent, faces, failures int
	report := time.NewTicker(10 * time.Second)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopped", "sent", sent, "faces", faces)
			return nil

		case <-report.C:
			logger.Info("stats", "sent", sent, "faces", faces, "failures", failures)

		case now := <-ticker.C:
			s, err := src.Sample(ctx, now)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				failures++
				logger.Debug("sample failed", "error", err)
				// A failed detection is sent as no face.
				s = &perception.Sample{TimestampMs: now.UnixMilli()}
			}
			if s.HasFace() {
				faces++
			}
			if err := client.SendSample(s); err != nil {
				return fmt.Errorf("send sample: %w", err)
			}
			sent++
		}
	}
}
