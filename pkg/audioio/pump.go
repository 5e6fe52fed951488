package audioio

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Pump reads chunks from src into m until ctx is done or src ends.
// It starts src and stops it on return.
func Pump(ctx context.Context, src Source, m *Meter, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "audioio.pump", "source", src.Name())

	if err := src.Start(ctx); err != nil {
		return err
	}
	defer src.Stop()

	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Debug("pump finished", "reason", err)
				return nil
			}
			return err
		}
		m.Push(chunk)
	}
}
