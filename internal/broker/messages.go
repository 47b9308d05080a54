package broker

import (
	"errors"
	"time"
)

// Action is a camera lifecycle action broadcast to the control agent.
type Action string

const (
	ActionCreated Action = "created"
	ActionRemoved Action = "removed"
)

var errMissingCameraID = errors.New("missing camera_id")

// CameraEvent is broadcast on the fan-out lifecycle exchange and also
// consumed back from the camera-event telemetry queue.
type CameraEvent struct {
	Action    Action `json:"action"`
	CameraID  string `json:"camera_id"`
	CameraURL string `json:"camera_url"`
}

func (e *CameraEvent) Validate() error {
	if e.CameraID == "" {
		return errMissingCameraID
	}
	return nil
}

// DetectedObject is a single object found in a frame.
type DetectedObject struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Detection is the per-frame object detection telemetry payload.
type Detection struct {
	CameraID  string           `json:"camera_id"`
	Timestamp time.Time        `json:"timestamp"`
	FrameID   string           `json:"frame_id,omitempty"`
	Objects   []DetectedObject `json:"objects"`
	RawData   string           `json:"raw_data,omitempty"`
}

func (d *Detection) Validate() error {
	if d.CameraID == "" {
		return errMissingCameraID
	}
	return nil
}

// Tracking is the object tracking telemetry payload.
type Tracking struct {
	CameraID   string         `json:"camera_id"`
	TrackID    int64          `json:"track_id"`
	ObjectType string         `json:"object_type"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
	Location   map[string]any `json:"location,omitempty"`
}

func (t *Tracking) Validate() error {
	if t.CameraID == "" {
		return errMissingCameraID
	}
	return nil
}

// Face is the face recognition telemetry payload.
type Face struct {
	CameraID   string    `json:"camera_id"`
	PersonID   string    `json:"person_id,omitempty"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Embedding  []byte    `json:"embedding,omitempty"`
	Crop       []byte    `json:"crop,omitempty"`
}

func (f *Face) Validate() error {
	if f.CameraID == "" {
		return errMissingCameraID
	}
	return nil
}

// Alert is published on the alerts exchange for downstream notifiers.
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CameraID  string    `json:"camera_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
