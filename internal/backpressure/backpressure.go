// Package backpressure pauses search intake while the dig backlog is large.
package backpressure

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultMaxPending is the handoff threshold. The pending threshold is its
// square.
const DefaultMaxPending = 10

// Gate is what the controller pauses. workqueue.Pool satisfies it.
type Gate interface {
	Pause()
	Resume()
	Paused() bool
}

// Controller pauses the gate when handoff exceeds maxPending or pending
// exceeds maxPending squared, and resumes it once both are back within
// bounds.
type Controller struct {
	gate       Gate
	maxHandoff int
	maxPending int
	log        logrus.FieldLogger

	mu     sync.Mutex
	pauses int
}

// New creates a Controller for gate.
func New(gate Gate, maxPending int, log logrus.FieldLogger) *Controller {
	if maxPending < 1 {
		maxPending = DefaultMaxPending
	}
	return &Controller{
		gate:       gate,
		maxHandoff: maxPending,
		maxPending: maxPending * maxPending,
		log:        log,
	}
}

// Observe applies the thresholds to the current backlog. It matches
// dig.Observer.
func (c *Controller) Observe(handoff, pending int) {
	over := handoff > c.maxHandoff || pending > c.maxPending

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case over && !c.gate.Paused():
		c.gate.Pause()
		c.pauses++
		c.log.WithFields(logrus.Fields{"handoff": handoff, "pending": pending}).Debug("search paused")
	case !over && c.gate.Paused():
		c.gate.Resume()
		c.log.WithFields(logrus.Fields{"handoff": handoff, "pending": pending}).Debug("search resumed")
	}
}

// Pauses returns how many times the gate was paused.
func (c *Controller) Pauses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauses
}
