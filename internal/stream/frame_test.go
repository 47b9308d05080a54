package stream

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidJPEG(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		valid bool
	}{
		{"valid", []byte{0xff, 0xd8, 0x00, 0x01, 0xff, 0xd9}, true},
		{"minimal", []byte{0xff, 0xd8, 0xff, 0xd9}, true},
		{"empty", nil, false},
		{"too short", []byte{0xff, 0xd8, 0xd9}, false},
		{"missing start marker", []byte{0x00, 0x00, 0xff, 0xd9}, false},
		{"missing end marker", []byte{0xff, 0xd8, 0x00, 0x00}, false},
		{"plain text", []byte("hello world"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidJPEG(tt.data))
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xab, 0xcd, 0xff, 0xd9}
	body := []byte(`{"frame":"` + base64.StdEncoding.EncodeToString(image) + `"}`)

	data, err := decodeFrame(body)
	require.NoError(t, err)
	assert.Equal(t, image, data)
}

func TestDecodeFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("jpeg bytes straight on the wire")},
		{"missing frame field", []byte(`{"timestamp":"2026-08-29T10:00:00Z"}`)},
		{"empty frame field", []byte(`{"frame":""}`)},
		{"invalid base64", []byte(`{"frame":"%%%not-base64%%%"}`)},
		{"not a jpeg", []byte(`{"frame":"` + base64.StdEncoding.EncodeToString([]byte("plain text")) + `"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeFrame(tt.body)
			require.Error(t, err)
		})
	}
}

func TestWriteMultipartPart(t *testing.T) {
	var buf bytes.Buffer
	data := []byte{0xff, 0xd8, 0xff, 0xd9}

	require.NoError(t, WriteMultipartPart(&buf, data))

	expected := "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 4\r\n\r\n\xff\xd8\xff\xd9\r\n"
	assert.Equal(t, expected, buf.String())
}

type flushBuffer struct {
	bytes.Buffer
}

func (*flushBuffer) Flush() error { return nil }

type deadClientWriter struct{}

func (deadClientWriter) Write(p []byte) (int, error) { return 0, errClientGone }
func (deadClientWriter) Flush() error                { return errClientGone }

var errClientGone = errors.New("connection reset by peer")

func TestPumpFramesWritesPartsUntilSourceCloses(t *testing.T) {
	frames := make(chan Frame, 1)
	frames <- Frame{CameraID: "cam-1", Data: []byte{0xff, 0xd8, 0xff, 0xd9}}
	close(frames)

	var buf flushBuffer
	require.NoError(t, PumpFrames(&buf, frames, time.Minute))
	assert.Contains(t, buf.String(), "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 4\r\n\r\n")
}

func TestPumpFramesUnblocksIdleStreamOnDeadClient(t *testing.T) {
	// no frames ever arrive; only the keep-alive write can notice the
	// client went away
	frames := make(chan Frame)

	done := make(chan error, 1)
	go func() {
		done <- PumpFrames(deadClientWriter{}, frames, 10*time.Millisecond)
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, errClientGone)
	case <-time.After(time.Second):
		t.Fatal("pump still blocked on an idle stream after client disconnect")
	}
}
