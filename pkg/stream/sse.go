package stream

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
)

// sseStream reads Server-Sent Events frames from a push endpoint.
// Each event's data payload is returned as one frame.
type sseStream struct {
	resp    *http.Response
	scanner *bufio.Scanner
}

// sseClient has no global timeout: the response body is a long-lived
// stream, cancelled through the request context instead.
var sseClient = &http.Client{}

func dialSSE(ctx context.Context, url string) (*sseStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := sseClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect push stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("push stream returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("push stream returned content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{resp: resp, scanner: scanner}, nil
}

// ReadFrame blocks until the next event and returns its data payload.
// Multi-line data fields are joined with newlines per the SSE format;
// comment and id/event lines are skipped.
func (s *sseStream) ReadFrame() ([]byte, error) {
	var data []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				return []byte(strings.Join(data, "\n")), nil
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry:, and comment lines are not payload.
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("push stream closed")
}

func (s *sseStream) Close() error {
	return s.resp.Body.Close()
}
