package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-intent/internal/config"
	"github.com/teslashibe/go-intent/internal/log"
	"github.com/teslashibe/go-intent/pkg/audioio"
	"github.com/teslashibe/go-intent/pkg/convlog"
	"github.com/teslashibe/go-intent/pkg/engine"
	"github.com/teslashibe/go-intent/pkg/hub"
	"github.com/teslashibe/go-intent/pkg/ingest"
	"github.com/teslashibe/go-intent/pkg/output"
	"github.com/teslashibe/go-intent/pkg/perception"
	"github.com/teslashibe/go-intent/pkg/perception/detection"
	"github.com/teslashibe/go-intent/pkg/speech"
	"github.com/teslashibe/go-intent/pkg/tts"
	"github.com/teslashibe/go-intent/pkg/web"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)
	logger := log.Component("intentd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open log store: %w", err)
	}
	defer closeStore()
	convLog := openLog(cfg, store, cfg.Patient.ID, log.Component("convlog"))

	statusHub := hub.New("status", log.L())
	speechHub := hub.New("speech", log.L())
	presenter := web.NewPresenter(statusHub, convLog, cfg.Server.PublishInterval, log.L())

	var speakerOpts []speech.Option
	speakerOpts = append(speakerOpts, speech.WithLogger(log.L()))
	if cfg.Speech.Provider == config.SpeechOpenAI {
		provider, err := tts.NewOpenAI(
			tts.WithAPIKey(cfg.Speech.APIKey),
			tts.WithVoice(cfg.Speech.Voice),
			tts.WithLogger(log.L()),
		)
		if err != nil {
			return fmt.Errorf("speech provider: %w", err)
		}
		speakerOpts = append(speakerOpts, speech.WithProvider(provider))
	}
	speaker := speech.New(speechHub, speakerOpts...)
	defer speaker.Close()

	coordinator := output.NewCoordinator(output.Config{
		Display:  presenter,
		Speaker:  speaker,
		Haptics:  presenter,
		Recorder: convLog,
		Policy:   speechPolicy(cfg),
		Logger:   log.L(),
	})

	meter := audioio.NewMeter(audioio.DefaultMeterConfig())
	deps := engine.Deps{
		Output:    coordinator,
		Presenter: presenter,
		Logger:    log.L(),
	}

	var buffer *perception.Buffer
	switch cfg.Perception.Source {
	case config.PerceptionRemote:
		buffer = perception.NewBuffer(cfg.Perception.Staleness)
		deps.Perception = buffer
	case config.PerceptionYuNet:
		src, err := openLocalCamera(cfg)
		if err != nil {
			return err
		}
		defer src.Close()
		deps.Perception = src
	}
	if cfg.Audio.Source != config.AudioNone {
		deps.Audio = meter
	}

	eng := engine.New(engineConfig(cfg), deps)

	ingestCfg := ingest.Config{
		Levels: meter,
		Logger: log.L(),
		OnCamera: func(active bool) {
			if active {
				eng.StartCamera(time.Now())
			} else {
				eng.StopCamera(time.Now())
			}
		},
	}
	if buffer != nil {
		ingestCfg.Samples = buffer
	}
	ingestSrv := ingest.NewServer(ingestCfg)

	var docs *convlog.GoogleDocs
	if cfg.GoogleDocsEnabled() {
		docs, err = convlog.NewGoogleDocs(convlog.GoogleDocsConfig{
			ClientID:     cfg.Export.GoogleClientID,
			ClientSecret: cfg.Export.GoogleClientSecret,
			RedirectURL:  cfg.Export.GoogleRedirectURL,
			TokenPath:    cfg.Export.GoogleTokenPath,
		}, log.L())
		if err != nil {
			return fmt.Errorf("google docs: %w", err)
		}
	}

	webDeps := web.Deps{
		Engine:    eng,
		Log:       convLog,
		Presenter: presenter,
		Status:    statusHub,
		Speech:    speechHub,
		Ingest:    ingestSrv,
		Logger:    log.L(),
	}
	if docs != nil {
		webDeps.Docs = docs
	}
	server := web.NewServer(web.Config{
		Port:      cfg.Server.Port,
		StaticDir: cfg.Server.StaticDir,
		AccessLog: cfg.LogLevel == "debug",
	}, webDeps)

	if cfg.Export.Schedule != "" {
		schedCfg := convlog.SchedulerConfig{Schedule: cfg.Export.Schedule, Dir: cfg.Export.Dir}
		if docs != nil && cfg.Export.GoogleDocsOnSchedule {
			schedCfg.Docs = docs
		}
		sched, err := convlog.NewScheduler(convLog, schedCfg, log.L())
		if err != nil {
			return fmt.Errorf("export schedule: %w", err)
		}
		sched.Start(ctx)
		defer sched.Stop()
		logger.Info("scheduled exports", "schedule", cfg.Export.Schedule, "next", sched.Next())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })
	if cfg.Audio.Source == config.AudioMock {
		src := audioio.NewMockSource(audioio.DefaultConfig(), log.L(),
			audioio.WithSineWave(cfg.Audio.MockFrequency, cfg.Audio.MockAmplitude))
		g.Go(func() error { return audioio.Pump(ctx, src, meter, log.L()) })
	}

	logger.Info("started",
		"patient", convLog.Patient(),
		"perception", cfg.Perception.Source,
		"audio", cfg.Audio.Source,
		"speech", cfg.Speech.Provider,
		"log_backend", cfg.Log.Backend,
	)

	err = g.Wait()
	logger.Info("stopped")
	return err
}

// openLocalCamera runs YuNet on a locally attached camera.
func openLocalCamera(cfg *config.Config) (*perception.DetectorSource, error) {
	yc := detection.DefaultYuNetConfig()
	yc.ModelPath = cfg.Perception.ModelPath
	yc.ConfidenceThresh = cfg.Perception.Confidence
	det, err := detection.NewYuNet(yc)
	if err != nil {
		return nil, fmt.Errorf("yunet: %w", err)
	}
	cam, err := detection.OpenCamera(cfg.Perception.CameraDevice)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("camera: %w", err)
	}
	return &perception.DetectorSource{Frames: cam, Detector: det}, nil
}
