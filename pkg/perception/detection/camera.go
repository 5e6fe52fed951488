package detection

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-intent/pkg/perception"
)

// Camera reads frames from a local capture device and encodes them as JPEG.
type Camera struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	img     gocv.Mat
	closed  bool
}

// OpenCamera opens the capture device with the given index.
func OpenCamera(device int) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: open camera %d: %v", perception.ErrUnavailable, device, err)
	}
	return &Camera{capture: capture, img: gocv.NewMat()}, nil
}

// Next reads and encodes one frame.
func (c *Camera) Next(ctx context.Context) (perception.Frame, error) {
	if err := ctx.Err(); err != nil {
		return perception.Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return perception.Frame{}, perception.ErrClosed
	}
	if ok := c.capture.Read(&c.img); !ok || c.img.Empty() {
		return perception.Frame{}, fmt.Errorf("%w: camera read failed", perception.ErrUnavailable)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, c.img)
	if err != nil {
		return perception.Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return perception.Frame{Data: data, Width: c.img.Cols(), Height: c.img.Rows()}, nil
}

// Close releases the capture device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.img.Close()
	return c.capture.Close()
}

var _ perception.FrameSource = (*Camera)(nil)
