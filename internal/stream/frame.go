package stream

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Boundary separates multipart chunks on the HTTP streaming response.
const Boundary = "frame"

// ContentType is the response content type for the live stream endpoint.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}

	errEmptyFrame   = errors.New("empty frame payload")
	errInvalidImage = errors.New("missing jpeg framing markers")
)

// Frame is one decoded, validated video frame pulled from a camera's
// bounded frame queue.
type Frame struct {
	CameraID   string
	Data       []byte
	ReceivedAt time.Time
}

type framePayload struct {
	Frame     string `json:"frame"`
	Timestamp string `json:"timestamp,omitempty"`
}

// decodeFrame extracts the base64 image payload from a frame message body
// and validates the JPEG start/end-of-image markers.
func decodeFrame(body []byte) ([]byte, error) {
	var payload framePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode frame payload: %w", err)
	}
	if payload.Frame == "" {
		return nil, errEmptyFrame
	}
	data, err := base64.StdEncoding.DecodeString(payload.Frame)
	if err != nil {
		return nil, fmt.Errorf("decode frame image: %w", err)
	}
	if !ValidJPEG(data) {
		return nil, errInvalidImage
	}
	return data, nil
}

// ValidJPEG reports whether b starts with the JPEG start-of-image marker
// and ends with the end-of-image marker.
func ValidJPEG(b []byte) bool {
	return len(b) >= 4 && bytes.HasPrefix(b, jpegSOI) && bytes.HasSuffix(b, jpegEOI)
}

// WriteMultipartPart writes one frame as a multipart chunk with its
// content-type and content-length headers.
func WriteMultipartPart(w io.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// KeepAlivePeriod is how often transport padding is written while no
// frames arrive on an open stream.
const KeepAlivePeriod = 5 * time.Second

type writeFlusher interface {
	io.Writer
	Flush() error
}

// PumpFrames writes frames as multipart chunks until the source closes or
// a write fails. While the source is idle it writes CRLF padding between
// parts on every keepAlive tick, so a client that went away surfaces as a
// write error instead of leaving the pump blocked on an idle camera.
func PumpFrames(w writeFlusher, frames <-chan Frame, keepAlive time.Duration) error {
	tick := time.NewTicker(keepAlive)
	defer tick.Stop()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := WriteMultipartPart(w, frame.Data); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		case <-tick.C:
			if _, err := io.WriteString(w, "\r\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}
