package capture

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gocv.io/x/gocv"
)

const (
	fourccMJPEG  = 0x47504A4D
	openTimeout  = 2500 * time.Millisecond
	readTimeout  = 2500 * time.Millisecond
)

// VideoSource reads frames from a local device index (opened via OpenCV's
// V4L2 backend, matching the configuration USB webcams need for MJPEG
// capture) or a network camera URL (opened with OpenCV's default backend).
type VideoSource struct {
	target string
	width  int
	height int
	fps    int

	webcam *gocv.VideoCapture
}

// NewVideoSource creates a source for target, which is either a bare
// integer device index ("0") or a URL OpenCV's backend can open directly.
func NewVideoSource(target string, width, height, fps int) *VideoSource {
	return &VideoSource{target: target, width: width, height: height, fps: fps}
}

func (v *VideoSource) Open(ctx context.Context) error {
	result := make(chan error, 1)
	go func() {
		webcam, err := openCapture(v.target)
		if err != nil {
			result <- err
			return
		}
		if !webcam.IsOpened() {
			webcam.Close()
			result <- fmt.Errorf("capture source %q not found or unavailable", v.target)
			return
		}

		webcam.Set(gocv.VideoCaptureFOURCC, fourccMJPEG)
		if v.width > 0 {
			webcam.Set(gocv.VideoCaptureFrameWidth, float64(v.width))
		}
		if v.height > 0 {
			webcam.Set(gocv.VideoCaptureFrameHeight, float64(v.height))
		}
		if v.fps > 0 {
			webcam.Set(gocv.VideoCaptureFPS, float64(v.fps))
		}

		warmup := gocv.NewMat()
		webcam.Read(&warmup)
		warmup.Close()

		v.webcam = webcam
		result <- nil
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(openTimeout):
		return fmt.Errorf("opening capture source %q timed out after %s", v.target, openTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func openCapture(target string) (*gocv.VideoCapture, error) {
	if id, err := strconv.Atoi(target); err == nil {
		return gocv.OpenVideoCaptureWithAPI(id, gocv.VideoCaptureV4L2)
	}
	return gocv.OpenVideoCapture(target)
}

func (v *VideoSource) Read(ctx context.Context) (gocv.Mat, error) {
	if v.webcam == nil {
		return gocv.NewMat(), fmt.Errorf("video source not open")
	}

	result := make(chan error, 1)
	mat := gocv.NewMat()
	go func() {
		if ok := v.webcam.Read(&mat); !ok {
			result <- fmt.Errorf("failed to read frame from %q", v.target)
			return
		}
		if mat.Empty() {
			result <- fmt.Errorf("captured empty frame from %q", v.target)
			return
		}
		result <- nil
	}()

	select {
	case err := <-result:
		if err != nil {
			mat.Close()
			v.seekToStart()
			return gocv.NewMat(), err
		}
		return mat, nil
	case <-time.After(readTimeout):
		mat.Close()
		v.seekToStart()
		return gocv.NewMat(), fmt.Errorf("reading from %q timed out after %s", v.target, readTimeout)
	case <-ctx.Done():
		mat.Close()
		return gocv.NewMat(), ctx.Err()
	}
}

// seekToStart rewinds a file-backed capture to its first frame after a
// failed read, so a looping video source reconnects from the beginning
// rather than staying stuck past end-of-stream. It is a no-op (and
// harmless) on a live device that doesn't support frame-position seeking.
func (v *VideoSource) seekToStart() {
	if v.webcam == nil {
		return
	}
	v.webcam.Set(gocv.VideoCapturePosFrames, 0)
}

func (v *VideoSource) Close() error {
	if v.webcam == nil {
		return nil
	}
	err := v.webcam.Close()
	v.webcam = nil
	return err
}
