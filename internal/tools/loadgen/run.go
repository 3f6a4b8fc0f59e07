package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config drives one traffic run against a live deployment. Seed makes the
// request mix reproducible between runs.
type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
}

type requestSpec struct {
	method string
	path   string
	body   string
}

// Run fires the selected traffic profile until the duration elapses. It only
// exercises endpoints that are safe to hammer: health probes and the
// credential routes, which are expected to answer 4xx for random inputs.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("loadgen: base URL is required")
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	profile := normalizeProfile(cfg.Profile)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	specs := make(chan requestSpec)

	var (
		mu     sync.Mutex
		result = Result{StatusClasses: map[string]int{}}
		wg     sync.WaitGroup
	)
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spec := range specs {
				status, err := perform(runCtx, client, cfg.BaseURL, spec)
				mu.Lock()
				result.TotalRequests++
				if err != nil {
					result.Failures++
				} else {
					result.StatusClasses[classifyStatusClass(status)]++
					if status >= 500 {
						result.Failures++
					}
				}
				mu.Unlock()
			}
		}()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()

feed:
	for {
		select {
		case <-runCtx.Done():
			break feed
		case <-ticker.C:
			select {
			case specs <- nextSpec(rng, profile):
			case <-runCtx.Done():
				break feed
			}
		}
	}
	close(specs)
	wg.Wait()

	return &result, nil
}

func perform(ctx context.Context, client *http.Client, baseURL string, spec requestSpec) (int, error) {
	var body io.Reader
	if spec.body != "" {
		body = bytes.NewReader([]byte(spec.body))
	}
	req, err := http.NewRequestWithContext(ctx, spec.method, strings.TrimRight(baseURL, "/")+spec.path, body)
	if err != nil {
		return 0, err
	}
	if spec.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func nextSpec(rng *rand.Rand, profile string) requestSpec {
	switch profile {
	case "health":
		return healthSpec(rng)
	case "auth":
		return authSpec(rng)
	default:
		if rng.Intn(3) == 0 {
			return healthSpec(rng)
		}
		return authSpec(rng)
	}
}

func healthSpec(rng *rand.Rand) requestSpec {
	if rng.Intn(2) == 0 {
		return requestSpec{method: http.MethodGet, path: "/health/live"}
	}
	return requestSpec{method: http.MethodGet, path: "/health/ready"}
}

func authSpec(rng *rand.Rand) requestSpec {
	email := fmt.Sprintf("loadgen-%d@example.invalid", rng.Intn(1_000_000))
	switch rng.Intn(3) {
	case 0:
		return requestSpec{
			method: http.MethodPost,
			path:   "/api/v1/auth/login",
			body:   fmt.Sprintf(`{"email":%q,"password":"Wr0ng!pass"}`, email),
		}
	case 1:
		return requestSpec{
			method: http.MethodPost,
			path:   "/api/v1/auth/refresh",
			body:   `{"refresh_token":"loadgen-synthetic"}`,
		}
	default:
		return requestSpec{method: http.MethodGet, path: "/api/v1/me"}
	}
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func normalizeProfile(profile string) string {
	profile = strings.ToLower(strings.TrimSpace(profile))
	if profile == "" {
		return "mixed"
	}
	return profile
}
