package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// envelope is the wrapper most backend endpoints respond with. Some
// endpoints respond with the bare payload instead, so decoding falls back
// to the plain shape when no data field is present.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"requestId"`
}

func decodeResponse(res *http.Response, out any) error {
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error != nil {
			return env.Error
		}
		if len(env.Data) > 0 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decoding response data: %w", err)
			}
			return nil
		}
	}

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected response status %d", res.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func doJSON(ctx context.Context, client *http.Client, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode/100 != 2 {
		// Error envelopes still carry useful detail; fall through to the
		// decoder so the APIError surfaces when present.
		if err := decodeResponse(res, nil); err != nil {
			return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, req.URL.Path, res.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return decodeResponse(res, out)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
