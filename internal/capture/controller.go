// Package capture composes the microphone, the recording session, the
// frequency sampler and the visualization loop into one state machine:
//
//	Idle -> Requesting -> Recording -> Finalizing -> Idle
//
// with Error reachable from Requesting and Recording. Finished recordings
// are handed to a search dispatcher exactly once.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicecapture/internal/audio"
	"github.com/oszuidwest/zwfm-voicecapture/internal/device"
	"github.com/oszuidwest/zwfm-voicecapture/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicecapture/internal/recording"
	"github.com/oszuidwest/zwfm-voicecapture/internal/search"
	"github.com/oszuidwest/zwfm-voicecapture/internal/types"
	"github.com/oszuidwest/zwfm-voicecapture/internal/util"
	"github.com/oszuidwest/zwfm-voicecapture/internal/visual"
)

// Listener receives controller notifications. Methods are called with the
// controller locked, in transition order, and must not call back into it.
type Listener interface {
	StateChanged(state types.CaptureState)
	ArtifactReady(info types.ArtifactInfo)
	CaptureFailed(kind types.ErrorKind, err error)
}

// EventLog records capture lifecycle events.
type EventLog interface {
	LogCapture(eventType eventlog.EventType, sessionID string, details *eventlog.CaptureDetails) error
}

// Options configures a Controller.
type Options struct {
	Acquirer   device.Acquirer
	NewEncoder func() recording.Encoder
	Spectrum   audio.SpectrumConfig
	Scheduler  visual.FrameScheduler
	Dispatcher search.Dispatcher
	Listener   Listener // optional
	Events     EventLog // optional
}

// Controller mediates start and stop requests and owns the lifecycles of the
// recording session and the visualization loop.
type Controller struct {
	acquirer   device.Acquirer
	newEncoder func() recording.Encoder
	spectrum   audio.SpectrumConfig
	sched      visual.FrameScheduler
	dispatcher search.Dispatcher
	listener   Listener
	events     EventLog

	ctx    context.Context // canceled by Close
	cancel context.CancelFunc

	mu            sync.Mutex
	state         types.CaptureState
	closed        bool
	acquireCancel context.CancelFunc
	stopRequested bool
	session       *recording.Session
	sessionEnd    chan struct{}
	sampler       *audio.Sampler
	loop          *visual.Loop
	snapshot      types.FrequencySnapshot
	finalizeDone  chan struct{}
	lastErr       error
	dispatched    int

	wg sync.WaitGroup
}

// New creates an idle controller.
func New(opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		acquirer:   opts.Acquirer,
		newEncoder: opts.NewEncoder,
		spectrum:   opts.Spectrum,
		sched:      opts.Scheduler,
		dispatcher: opts.Dispatcher,
		listener:   opts.Listener,
		events:     opts.Events,
		ctx:        ctx,
		cancel:     cancel,
		state:      types.StateIdle,
		snapshot:   types.IdleSnapshot(),
	}
	if c.listener == nil {
		c.listener = nopListener{}
	}
	if c.newEncoder == nil {
		c.newEncoder = func() recording.Encoder { return recording.NewPCMEncoder() }
	}
	if c.dispatcher == nil {
		c.dispatcher = search.LogBackend{}
	}
	if c.spectrum.FFTSize == 0 {
		c.spectrum = audio.DefaultSpectrumConfig()
	}
	return c
}

// State returns the current controller state.
func (c *Controller) State() types.CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the bar heights to render. Outside Recording every bar is at its minimum.
func (c *Controller) Snapshot() types.FrequencySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.StateRecording {
		return types.IdleSnapshot()
	}
	return c.snapshot
}

// Status returns a summary of the controller.
func (c *Controller) Status() types.CaptureStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := types.CaptureStatus{
		State:      c.state,
		Dispatched: c.dispatched,
	}
	if c.session != nil {
		status.SessionID = c.session.ID()
		if started := c.session.StartedAt(); !started.IsZero() {
			status.Duration = time.Since(started).Seconds()
		}
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
		status.LastErrorKind = KindOf(c.lastErr)
	}
	return status
}

// StartRecording begins acquiring the microphone. It is ignored unless the
// controller is Idle. Acquisition completes in the background; the state
// moves to Recording or, on failure, through Error back to Idle.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != types.StateIdle {
		slog.Debug("start ignored", "state", c.state)
		return nil
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.acquireCancel = cancel
	c.stopRequested = false
	c.setStateLocked(types.StateRequesting)
	c.logLocked(eventlog.CaptureRequested, "", nil)

	c.wg.Add(1)
	go c.acquire(ctx)
	return nil
}

// StopRecording ends the current recording and dispatches its artifact.
// While Requesting the stop is queued: the device is released as soon as
// acquisition resolves and Recording is never entered. While Finalizing it
// waits for the running finalization. In every other state it does nothing.
// When it returns after a recording, the device has been released.
func (c *Controller) StopRecording() error {
	c.mu.Lock()

	switch c.state {
	case types.StateRequesting:
		c.stopRequested = true
		c.mu.Unlock()
		slog.Info("stop requested while acquiring device")
		return nil

	case types.StateFinalizing:
		done := c.finalizeDone
		c.mu.Unlock()
		<-done
		return nil

	case types.StateRecording:
		sess, sampler, loop := c.detachLocked()
		done := make(chan struct{})
		c.finalizeDone = done
		c.setStateLocked(types.StateFinalizing)
		c.mu.Unlock()

		return c.finalize(sess, sampler, loop, done)

	default:
		c.mu.Unlock()
		return nil
	}
}

// Close tears the controller down: an acquisition in flight is canceled, an
// active recording is discarded without dispatch, and a running finalization
// is allowed to finish. Close waits for all background work.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopRequested = true

	var (
		sess    *recording.Session
		sampler *audio.Sampler
		loop    *visual.Loop
		done    chan struct{}
	)
	switch c.state {
	case types.StateRecording:
		sess, sampler, loop = c.detachLocked()
		c.logLocked(eventlog.CaptureAborted, sess.ID(), nil)
		c.setStateLocked(types.StateIdle)
	case types.StateFinalizing:
		done = c.finalizeDone
	}
	c.mu.Unlock()

	var err error
	if sess != nil {
		loop.Stop()
		err = sess.Discard()
		sampler.Close()
	}
	if done != nil {
		<-done
	}

	c.cancel()
	c.wg.Wait()
	return err
}

// acquire runs the Requesting state to completion.
func (c *Controller) acquire(ctx context.Context) {
	defer c.wg.Done()

	stream, err := c.acquirer.Acquire(ctx)

	c.mu.Lock()
	if c.acquireCancel != nil {
		c.acquireCancel()
		c.acquireCancel = nil
	}
	if err != nil {
		if c.closed && errors.Is(err, context.Canceled) {
			c.logLocked(eventlog.CaptureAborted, "", nil)
			c.setStateLocked(types.StateIdle)
			c.mu.Unlock()
			return
		}
		c.failLocked("", classify("acquire", types.ErrorDevice, err))
		c.mu.Unlock()
		return
	}
	if c.stopRequested {
		c.mu.Unlock()
		c.abandon(stream)
		return
	}
	c.mu.Unlock()

	sess := recording.NewSession(c.newEncoder(), c.acquirer.Release)
	if err := sess.Open(stream); err != nil {
		c.mu.Lock()
		c.failLocked(sess.ID(), classify("open", types.ErrorDevice, err))
		c.mu.Unlock()
		return
	}

	sampler := audio.NewSampler(c.spectrum)
	if err := sess.Observe(sampler.Write); err != nil {
		slog.Warn("frequency sampler not attached", "session_id", sess.ID(), "error", err)
	}

	c.mu.Lock()
	if c.stopRequested {
		c.mu.Unlock()
		sampler.Close()
		if err := sess.Discard(); err != nil {
			slog.Warn("failed to discard session", "session_id", sess.ID(), "error", err)
		}
		c.mu.Lock()
		c.logLocked(eventlog.CaptureAborted, sess.ID(), nil)
		c.setStateLocked(types.StateIdle)
		c.mu.Unlock()
		return
	}

	loop := visual.NewLoop(c.sched, sampler, c.recordingActive, c.publish, c.analysisFailed)
	end := make(chan struct{})
	c.session = sess
	c.sessionEnd = end
	c.sampler = sampler
	c.loop = loop
	c.snapshot = types.IdleSnapshot()
	c.setStateLocked(types.StateRecording)
	c.logLocked(eventlog.CaptureStarted, sess.ID(), nil)

	c.wg.Add(1)
	go c.monitor(sess, end)
	c.mu.Unlock()

	loop.Start()
	slog.Info("recording started", "session_id", sess.ID())
}

// abandon releases a stream whose acquisition resolved after a stop request.
func (c *Controller) abandon(stream device.Stream) {
	if err := c.acquirer.Release(stream); err != nil {
		slog.Warn("failed to release device", "stream_id", stream.ID(), "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.logLocked(eventlog.CaptureAborted, "", &eventlog.CaptureDetails{Error: "stopped before device was granted"})
	c.setStateLocked(types.StateIdle)
	slog.Info("device released after stop during acquisition", "stream_id", stream.ID())
}

// finalize flushes the session and dispatches its artifact. It runs in the
// Finalizing state and always returns the controller to Idle.
func (c *Controller) finalize(sess *recording.Session, sampler *audio.Sampler, loop *visual.Loop, done chan struct{}) error {
	defer close(done)

	// No tick may read the sampler once the stream is released.
	loop.Stop()
	chunks := sess.ChunkCount()
	duration := time.Since(sess.StartedAt())
	artifact, err := sess.Close()
	sampler.Close()

	if err != nil {
		cerr := classify("finalize", types.ErrorEncoding, err)
		c.mu.Lock()
		c.lastErr = cerr
		c.listener.CaptureFailed(cerr.Kind, cerr)
		c.logLocked(eventlog.CaptureError, sess.ID(), &eventlog.CaptureDetails{
			ErrorKind:  string(cerr.Kind),
			Error:      cerr.Error(),
			DurationMs: duration.Milliseconds(),
		})
		c.setStateLocked(types.StateIdle)
		c.mu.Unlock()
		slog.Warn("recording produced no artifact", "session_id", sess.ID(), "error", cerr)
		return cerr
	}

	info := artifact.Info()
	c.mu.Lock()
	c.listener.ArtifactReady(info)
	c.logLocked(eventlog.CaptureFinalized, sess.ID(), &eventlog.CaptureDetails{
		Artifact:   info.Name,
		MediaType:  info.MediaType,
		SizeBytes:  info.Size,
		Chunks:     chunks,
		DurationMs: duration.Milliseconds(),
	})
	c.mu.Unlock()

	// Ownership of the artifact passes to the dispatcher.
	dispatchErr := c.dispatcher.Dispatch(c.ctx, search.AudioQuery(artifact))

	c.mu.Lock()
	if dispatchErr == nil {
		c.dispatched++
	}
	c.setStateLocked(types.StateIdle)
	c.mu.Unlock()

	slog.Info("recording finalized", "session_id", sess.ID(), "artifact", info.Name, "size", info.Size, "duration", util.FormatDuration(duration))
	return dispatchErr
}

// monitor aborts the recording if the stream or the encoder fails.
func (c *Controller) monitor(sess *recording.Session, end <-chan struct{}) {
	defer c.wg.Done()

	select {
	case <-end:
		return
	case <-sess.Failed():
	}

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	_, sampler, loop := c.detachLocked()
	cerr := classify("record", types.ErrorDevice, sess.Err())
	c.lastErr = cerr
	c.setStateLocked(types.StateError)
	c.listener.CaptureFailed(cerr.Kind, cerr)
	c.logLocked(eventlog.CaptureError, sess.ID(), &eventlog.CaptureDetails{
		ErrorKind: string(cerr.Kind),
		Error:     cerr.Error(),
	})
	c.mu.Unlock()

	loop.Stop()
	if err := sess.Discard(); err != nil {
		slog.Warn("failed to discard session", "session_id", sess.ID(), "error", err)
	}
	sampler.Close()

	c.mu.Lock()
	c.setStateLocked(types.StateIdle)
	c.mu.Unlock()
	slog.Warn("recording aborted", "session_id", sess.ID(), "error", cerr)
}

// detachLocked takes the active session out of the controller. Must be called with lock held.
func (c *Controller) detachLocked() (*recording.Session, *audio.Sampler, *visual.Loop) {
	sess, sampler, loop := c.session, c.sampler, c.loop
	if c.sessionEnd != nil {
		close(c.sessionEnd)
	}
	c.session, c.sampler, c.loop, c.sessionEnd = nil, nil, nil, nil
	return sess, sampler, loop
}

// failLocked reports a failed attempt and resets to Idle. Must be called with lock held.
func (c *Controller) failLocked(sessionID string, cerr *Error) {
	c.lastErr = cerr
	c.setStateLocked(types.StateError)
	c.listener.CaptureFailed(cerr.Kind, cerr)
	c.logLocked(eventlog.CaptureError, sessionID, &eventlog.CaptureDetails{
		ErrorKind: string(cerr.Kind),
		Error:     cerr.Error(),
	})
	slog.Warn("capture failed", "kind", cerr.Kind, "error", cerr)
	c.setStateLocked(types.StateIdle)
}

func (c *Controller) setStateLocked(state types.CaptureState) {
	if c.state == state {
		return
	}
	c.state = state
	c.listener.StateChanged(state)
}

func (c *Controller) logLocked(eventType eventlog.EventType, sessionID string, details *eventlog.CaptureDetails) {
	if c.events == nil {
		return
	}
	if err := c.events.LogCapture(eventType, sessionID, details); err != nil {
		slog.Warn("failed to log capture event", "type", eventType, "error", err)
	}
}

// recordingActive is the loop's per-tick check.
func (c *Controller) recordingActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == types.StateRecording
}

func (c *Controller) publish(s types.FrequencySnapshot) {
	c.mu.Lock()
	c.snapshot = s
	c.mu.Unlock()
}

// analysisFailed records a sampler failure. Recording continues; only the
// visualization stops.
func (c *Controller) analysisFailed(err error) {
	cerr := classify("sample", types.ErrorAnalysis, err)

	c.mu.Lock()
	defer c.mu.Unlock()

	sessionID := ""
	if c.session != nil {
		sessionID = c.session.ID()
	}
	c.lastErr = cerr
	c.logLocked(eventlog.AnalysisError, sessionID, &eventlog.CaptureDetails{
		ErrorKind: string(cerr.Kind),
		Error:     cerr.Error(),
	})
	slog.Warn("frequency analysis stopped", "session_id", sessionID, "error", cerr)
}

type nopListener struct{}

func (nopListener) StateChanged(types.CaptureState)      {}
func (nopListener) ArtifactReady(types.ArtifactInfo)     {}
func (nopListener) CaptureFailed(types.ErrorKind, error) {}
