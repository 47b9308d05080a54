package stream

import "context"

// CameraStatus is the combined liveness view of one camera.
type CameraStatus struct {
	CameraID string      `json:"camera_id"`
	Active   bool        `json:"active"`
	Info     *StreamInfo `json:"info"`
}

// Prober answers "is this camera active" from stream queue depth and
// metadata recency. It holds no state of its own.
type Prober struct {
	gw *Gateway
}

func NewProber(gw *Gateway) *Prober {
	return &Prober{gw: gw}
}

func (p *Prober) Status(ctx context.Context, cameraID string) *CameraStatus {
	info := p.gw.GetStreamInfo(ctx, cameraID)
	return &CameraStatus{
		CameraID: cameraID,
		Active:   p.gw.CheckActive(cameraID) || info.Status == StatusActive,
		Info:     info,
	}
}
