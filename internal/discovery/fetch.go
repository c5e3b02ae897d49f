package discovery

import (
	"context"
	"net/http"
	"time"
)

// FetchRequest is a single remote GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse carries the body and metadata of a fetched page.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher retrieves remote source payloads.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Pacer delays between consecutive source invocations.
type Pacer interface {
	Wait(ctx context.Context) (time.Duration, error)
}
