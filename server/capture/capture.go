// Package capture manages the combined audio and video capture used while an
// SOS broadcast is active.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCaptureUnavailable is returned when no capture device can be used.
var ErrCaptureUnavailable = errors.New("media capture unavailable")

// FacingUser selects the front camera.
const FacingUser = "user"

// Constraints describe the requested capture.
type Constraints struct {
	Audio  bool   `json:"audio"`
	Video  bool   `json:"video"`
	Facing string `json:"facingMode,omitempty"`
}

// SOSConstraints is the capture requested on SOS activation.
var SOSConstraints = Constraints{Audio: true, Video: true, Facing: FacingUser}

// Track is one audio or video track of a stream.
type Track interface {
	Kind() string
	Stop()
	Live() bool
}

// Stream is an acquired capture stream.
type Stream interface {
	ID() string
	Tracks() []Track
}

// Recording is an in-progress recording of a stream.
type Recording interface {
	Stop() error
	Active() bool
}

// Device is the media capability.
type Device interface {
	// Acquire requests a stream matching constraints. It may block until the
	// user grants permission.
	Acquire(ctx context.Context, constraints Constraints) (Stream, error)

	// Record starts recording stream.
	Record(stream Stream) (Recording, error)
}

// Logger is the subset of the plugin log service used by this package.
type Logger interface {
	Info(message string, keyValuePairs ...interface{})
	Warn(message string, keyValuePairs ...interface{})
}

// Controller holds at most one stream and its recording.
type Controller struct {
	mu        sync.Mutex
	device    Device
	stream    Stream
	recording Recording

	logger Logger
}

// NewController creates a controller over device. A nil device makes every
// Start fail with ErrCaptureUnavailable.
func NewController(device Device, logger Logger) *Controller {
	return &Controller{
		device: device,
		logger: logger,
	}
}

// Start acquires a front-camera audio+video stream and starts recording it.
// Failures are logged and returned; the controller is left without a stream.
// Starting while a stream is open is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return nil
	}
	device := c.device
	c.mu.Unlock()

	if device == nil {
		c.logger.Warn("Media capture requested but no device is available")
		return ErrCaptureUnavailable
	}

	stream, err := device.Acquire(ctx, SOSConstraints)
	if err != nil {
		c.logger.Warn("Failed to acquire media stream", "error", err.Error())
		return fmt.Errorf("failed to acquire media stream: %w", err)
	}

	recording, err := device.Record(stream)
	if err != nil {
		stopTracks(stream)
		c.logger.Warn("Failed to start recording", "streamId", stream.ID(), "error", err.Error())
		return fmt.Errorf("failed to start recording: %w", err)
	}

	c.mu.Lock()
	if c.stream != nil {
		// Lost a race with another Start; keep the first stream
		c.mu.Unlock()
		_ = recording.Stop()
		stopTracks(stream)
		return nil
	}
	c.stream = stream
	c.recording = recording
	c.mu.Unlock()

	c.logger.Info("Media capture started", "streamId", stream.ID(), "tracks", len(stream.Tracks()))
	return nil
}

// Stop halts the recording, stops every track and clears the stream. It is a
// no-op when no stream is open.
func (c *Controller) Stop() {
	c.mu.Lock()
	stream, recording := c.stream, c.recording
	c.stream = nil
	c.recording = nil
	c.mu.Unlock()

	if stream == nil {
		return
	}

	if recording != nil && recording.Active() {
		if err := recording.Stop(); err != nil {
			c.logger.Warn("Failed to stop recording", "streamId", stream.ID(), "error", err.Error())
		}
	}
	stopTracks(stream)

	c.logger.Info("Media capture stopped", "streamId", stream.ID())
}

// SetDevice replaces the capture device. An open stream is unaffected.
func (c *Controller) SetDevice(device Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.device = device
}

// Active reports whether a stream is open.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stream != nil
}

// Recording reports whether the open stream is being recorded.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.recording != nil && c.recording.Active()
}

// StreamID returns the open stream's ID, or "" if none.
func (c *Controller) StreamID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return ""
	}
	return c.stream.ID()
}

// LiveTracks returns the number of live tracks on the open stream.
func (c *Controller) LiveTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return 0
	}
	live := 0
	for _, track := range c.stream.Tracks() {
		if track.Live() {
			live++
		}
	}
	return live
}

func stopTracks(stream Stream) {
	for _, track := range stream.Tracks() {
		track.Stop()
	}
}
