package surface

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/benthamhq/bentham/pkg/types"
)

// echoAdapter answers every query locally and deterministically. It
// backs dev and demo deployments where no upstream surface is wired.
type echoAdapter struct {
	id string
}

func newEchoAdapter(id string) Adapter {
	return &echoAdapter{id: id}
}

// Query fabricates a stable answer for the prompt. An optional delayMs
// option simulates upstream latency, honoring cancellation.
func (a *echoAdapter) Query(ctx context.Context, req *Request) (*Response, error) {
	if delay := optionalDelay(req); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, classifyTransport(ctx.Err())
		}
	} else if err := ctx.Err(); err != nil {
		return nil, classifyTransport(err)
	}

	text := fmt.Sprintf(
		"Simulated answer from %s. The query %q would be researched across current sources; "+
			"this deterministic response stands in for a real surface during development.",
		a.id, req.Query,
	)

	h := fnv.New32a()
	h.Write([]byte(req.Query))

	return &Response{
		Text: text,
		Citations: []types.Citation{
			{Title: "Example source", URL: fmt.Sprintf("https://example.com/sources/%d", h.Sum32()%100), Position: 1},
		},
		TokensIn:  len(req.Query)/4 + 1,
		TokensOut: len(text)/4 + 1,
		TTFBMs:    1,
	}, nil
}

// HealthCheck always succeeds; there is nothing upstream to probe
func (a *echoAdapter) HealthCheck(_ context.Context) error {
	return nil
}

// Close releases nothing
func (a *echoAdapter) Close() error {
	return nil
}

func optionalDelay(req *Request) time.Duration {
	if req.Options == nil {
		return 0
	}
	// Manifest options arrive as decoded JSON, so numbers are float64
	if ms, ok := req.Options["delayMs"].(float64); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}
