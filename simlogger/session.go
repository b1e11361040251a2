package simlogger

import (
	"time"
)

// minFPSWindow is the wall time that has to pass before the plugin FPS is recomputed.
const minFPSWindow = time.Second

// session is the state between "simulation about to start" and "script state destroyed".
type session struct {
	id        string
	path      string
	out       *rowWriter
	startedAt time.Time

	// frames counts primary ticks since the last FPS update. totalFrames counts them since the
	// session started.
	frames        int
	totalFrames   int
	fps           float64
	lastFPSUpdate time.Time
	rows          int
}

func newSession(id string, now time.Time) *session {
	return &session{id: id, startedAt: now, lastFPSUpdate: now}
}

// tick counts one primary tick and reports whether it is due for a sample.
func (s *session) tick(sampleEvery int) bool {
	s.frames++
	s.totalFrames++
	return s.frames%sampleEvery == 0
}

// updateFPS recomputes the FPS once at least minFPSWindow has passed since the previous update
// and returns the current value.
func (s *session) updateFPS(now time.Time) float64 {
	elapsed := now.Sub(s.lastFPSUpdate)
	if elapsed < minFPSWindow {
		return s.fps
	}
	s.fps = float64(s.frames) / elapsed.Seconds()
	s.frames = 0
	s.lastFPSUpdate = now
	return s.fps
}

func (s *session) elapsedMS(now time.Time) int64 {
	return now.Sub(s.startedAt).Milliseconds()
}

// close closes the output stream, if any, and zeroes the counters.
func (s *session) close() error {
	var err error
	if s.out != nil {
		err = s.out.Close()
		s.out = nil
	}
	s.frames = 0
	s.totalFrames = 0
	s.fps = 0
	return err
}
