package capture

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Websocket events sent to the client that owns the camera and microphone
const (
	EventCaptureStart   = "capture_start"
	EventCaptureStop    = "capture_stop"
	EventRecordingStart = "recording_start"
	EventRecordingStop  = "recording_stop"
)

// Track kinds
const (
	KindAudio = "audio"
	KindVideo = "video"
)

// Publisher sends an event to the capturing client.
type Publisher func(event string, payload map[string]interface{})

// RemoteDevice drives capture on the user's client over websocket events. The
// plugin process holds the stream handle; the client holds the hardware.
type RemoteDevice struct {
	publish Publisher
	enabled func() bool
}

// NewRemoteDevice creates a device that publishes through publish. enabled is
// consulted on every Acquire; nil means always enabled.
func NewRemoteDevice(publish Publisher, enabled func() bool) *RemoteDevice {
	return &RemoteDevice{
		publish: publish,
		enabled: enabled,
	}
}

// Acquire implements Device.
func (d *RemoteDevice) Acquire(ctx context.Context, constraints Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.enabled != nil && !d.enabled() {
		return nil, ErrCaptureUnavailable
	}

	stream := &remoteStream{id: uuid.NewString(), publish: d.publish}
	if constraints.Audio {
		stream.tracks = append(stream.tracks, &remoteTrack{kind: KindAudio, stream: stream, live: true})
	}
	if constraints.Video {
		stream.tracks = append(stream.tracks, &remoteTrack{kind: KindVideo, stream: stream, live: true})
	}
	if len(stream.tracks) == 0 {
		return nil, ErrCaptureUnavailable
	}

	d.publish(EventCaptureStart, map[string]interface{}{
		"streamId":   stream.id,
		"audio":      constraints.Audio,
		"video":      constraints.Video,
		"facingMode": constraints.Facing,
	})
	return stream, nil
}

// Record implements Device.
func (d *RemoteDevice) Record(stream Stream) (Recording, error) {
	d.publish(EventRecordingStart, map[string]interface{}{"streamId": stream.ID()})
	return &remoteRecording{streamID: stream.ID(), publish: d.publish, active: true}, nil
}

type remoteStream struct {
	mu      sync.Mutex
	id      string
	tracks  []Track
	publish Publisher
	closed  bool
}

func (s *remoteStream) ID() string {
	return s.id
}

func (s *remoteStream) Tracks() []Track {
	return append([]Track(nil), s.tracks...)
}

// trackEnded publishes capture_stop once every track has ended.
func (s *remoteStream) trackEnded() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, track := range s.tracks {
		if track.Live() {
			s.mu.Unlock()
			return
		}
	}
	s.closed = true
	s.mu.Unlock()

	s.publish(EventCaptureStop, map[string]interface{}{"streamId": s.id})
}

type remoteTrack struct {
	mu     sync.Mutex
	kind   string
	stream *remoteStream
	live   bool
}

func (t *remoteTrack) Kind() string {
	return t.kind
}

func (t *remoteTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *remoteTrack) Stop() {
	t.mu.Lock()
	wasLive := t.live
	t.live = false
	t.mu.Unlock()

	if wasLive {
		t.stream.trackEnded()
	}
}

type remoteRecording struct {
	mu       sync.Mutex
	streamID string
	publish  Publisher
	active   bool
}

func (r *remoteRecording) Stop() error {
	r.mu.Lock()
	wasActive := r.active
	r.active = false
	r.mu.Unlock()

	if wasActive {
		r.publish(EventRecordingStop, map[string]interface{}{"streamId": r.streamID})
	}
	return nil
}

func (r *remoteRecording) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
