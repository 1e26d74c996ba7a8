package session

import (
	"sync"
	"time"
)

// Detector fires onIdle once no Touch has happened for timeout.
type Detector struct {
	timeout time.Duration
	onIdle  func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewDetector(timeout time.Duration, onIdle func()) *Detector {
	return &Detector{timeout: timeout, onIdle: onIdle}
}

// Touch restarts the idle countdown.
func (d *Detector) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.timeout, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		d.onIdle()
	})
}

// Pause cancels a pending countdown; the next Touch starts a new one.
func (d *Detector) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Stop disables the detector permanently.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
