package health

import (
	"context"
	"time"
)

// Check is one named readiness probe, typically a DB or Redis ping.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Result struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ProbeRunner runs every registered check with a shared per-check timeout.
type ProbeRunner struct {
	checks  []Check
	timeout time.Duration
}

func NewProbeRunner(timeout time.Duration, checks ...Check) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{checks: checks, timeout: timeout}
}

// Ready reports overall readiness plus per-check results. Checks run
// sequentially; readiness endpoints are not hot paths.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []Result) {
	ready := true
	results := make([]Result, 0, len(p.checks))
	for _, c := range p.checks {
		checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := c.Probe(checkCtx)
		cancel()
		res := Result{Name: c.Name, Healthy: err == nil}
		if err != nil {
			ready = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return ready, results
}
