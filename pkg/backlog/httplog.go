package backlog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"rescanvas/pkg/canvaserrors"
)

const contentTypeJSON = "application/json"

// HTTPLog talks to an external commit/query store over HTTP. Commit posts
// the document as-is to the commit URL; Query fetches queryURL+id. Any
// non-2xx or non-JSON response counts as failure.
type HTTPLog struct {
	commitURL string
	queryURL  string
	client    *http.Client
}

func NewHTTPLog(commitURL, queryURL string) *HTTPLog {
	return &HTTPLog{
		commitURL: commitURL,
		queryURL:  queryURL,
		client:    http.DefaultClient,
	}
}

func (l *HTTPLog) Commit(ctx context.Context, id string, doc []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.commitURL, bytes.NewReader(doc))
	if err != nil {
		return fmt.Errorf("create commit request for %s: %w", id, err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("commit %s: %v: %w", id, err, canvaserrors.ErrCommitFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("commit %s: status %d: %s: %w", id, resp.StatusCode, string(b), canvaserrors.ErrCommitFailed)
	}
	return nil
}

func (l *HTTPLog) Query(ctx context.Context, id string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.queryURL+id, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create query request for %s: %w", id, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %v: %w", id, err, canvaserrors.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, false, fmt.Errorf("query %s: status %d: %w", id, resp.StatusCode, canvaserrors.ErrUpstreamUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("query %s: read body: %w", id, canvaserrors.ErrUpstreamUnavailable)
	}
	// Some stores answer 200 with an empty body for unknown keys.
	if len(body) == 0 {
		return nil, false, nil
	}
	return body, true, nil
}
