package restapi

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/labstack/echo/v4"
	"gocv.io/x/gocv"

	"github.com/etvr-go/trackingd/internal/frame"
)

const feedBoundary = "trackingdframe"

// feedCamera streams the pre-detection preview for the named tracker as a
// multipart/x-mixed-replace JPEG sequence.
func (s *Server) feedCamera(c echo.Context) error {
	tr, ok := s.orch.Tracker(c.Param("uuid"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "tracker not found")
	}
	cam, _ := tr.Viz()
	return streamFrames(c, cam)
}

// feedAlgorithm streams the post-detection (annotated) preview.
func (s *Server) feedAlgorithm(c echo.Context) error {
	tr, ok := s.orch.Tracker(c.Param("uuid"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "tracker not found")
	}
	_, annotated := tr.Viz()
	return streamFrames(c, annotated)
}

type frameSource interface {
	Pop(done <-chan struct{}) (*frame.Frame, bool)
}

func streamFrames(c echo.Context, q frameSource) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", feedBoundary))
	w.WriteHeader(http.StatusOK)

	mw := multipart.NewWriter(w)
	mw.SetBoundary(feedBoundary)
	defer mw.Close()

	done := c.Request().Context().Done()
	for {
		f, ok := q.Pop(done)
		if !ok {
			return nil
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.Mat)
		f.Close()
		if err != nil {
			continue
		}
		jpeg := append([]byte(nil), buf.GetBytes()...)
		buf.Close()

		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":   []string{"image/jpeg"},
			"Content-Length": []string{fmt.Sprintf("%d", len(jpeg))},
		})
		if err != nil {
			return nil
		}
		if _, err := part.Write(jpeg); err != nil {
			return nil
		}
		w.Flush()
	}
}
