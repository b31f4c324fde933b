// Package health aggregates dependency probes into a single tri-state
// service verdict. Composition is worst-wins: one unhealthy dependency makes
// the whole service unhealthy regardless of the others.
package health

import (
	"context"
	"fmt"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnhealthy: 2,
}

func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Check is one dependency's verdict.
type Check struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Report is the aggregate of all checks at one point in time.
type Report struct {
	Status    Status           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
}

// ProbeFunc pings one dependency. A nil return means reachable.
type ProbeFunc func(ctx context.Context) error

type probe struct {
	name string
	ping ProbeFunc
}

// Aggregator owns the probe set. Probes that error are unhealthy; probes
// that answer slower than slowAfter are degraded.
type Aggregator struct {
	timeout   time.Duration
	slowAfter time.Duration

	probes    []probe
	queueLen  func() int
	warnDepth int
}

func New(timeout, slowAfter time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if slowAfter <= 0 {
		slowAfter = 500 * time.Millisecond
	}
	return &Aggregator{timeout: timeout, slowAfter: slowAfter}
}

// AddProbe registers a dependency ping under the given check name.
func (a *Aggregator) AddProbe(name string, ping ProbeFunc) {
	a.probes = append(a.probes, probe{name: name, ping: ping})
}

// AddQueue registers a backlog check: depth above warnDepth reports degraded.
func (a *Aggregator) AddQueue(length func() int, warnDepth int) {
	a.queueLen = length
	a.warnDepth = warnDepth
}

// Check runs every probe and composes the verdicts. Each probe gets its own
// timeout so one hung dependency cannot mask the state of the rest.
func (a *Aggregator) Check(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]Check, len(a.probes)+1),
	}

	for _, p := range a.probes {
		check := a.runProbe(ctx, p)
		report.Checks[p.name] = check
		report.Status = worse(report.Status, check.Status)
	}

	if a.queueLen != nil {
		check := a.checkQueue()
		report.Checks["queue"] = check
		report.Status = worse(report.Status, check.Status)
	}

	return report
}

func (a *Aggregator) runProbe(ctx context.Context, p probe) Check {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	err := p.ping(ctx)
	duration := time.Since(start)

	if err != nil {
		return Check{
			Status:   StatusUnhealthy,
			Message:  err.Error(),
			Duration: duration.String(),
		}
	}
	if duration > a.slowAfter {
		return Check{
			Status:   StatusDegraded,
			Message:  "slow response",
			Duration: duration.String(),
		}
	}
	return Check{
		Status:   StatusHealthy,
		Message:  "connection successful",
		Duration: duration.String(),
	}
}

func (a *Aggregator) checkQueue() Check {
	depth := a.queueLen()

	if depth > a.warnDepth {
		return Check{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("queue backlog detected (pending: %d)", depth),
		}
	}
	return Check{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("queue operational (pending: %d)", depth),
	}
}
