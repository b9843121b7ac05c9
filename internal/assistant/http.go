package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// postJSON sends body to url and decodes a 2xx answer into out.
// Transport failures, 429 and 5xx answers are transient.
func postJSON(ctx context.Context, client *http.Client, provider, url string, header http.Header, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return upstream(provider, "failed to encode request", err, false)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return upstream(provider, "failed to build request", err, false)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return upstream(provider, "request failed", err, true)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		details, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return upstream(provider, fmt.Sprintf("api error %s", resp.Status), apiError(details), transient)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return upstream(provider, "failed to decode response", err, false)
	}
	return nil
}

// apiError extracts the {"error":{"message":...}} shape shared by the providers.
func apiError(details []byte) error {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(details, &body) == nil && len(body.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			return errors.New(nested.Message)
		}
		var flat string
		if json.Unmarshal(body.Error, &flat) == nil && flat != "" {
			return errors.New(flat)
		}
	}
	if text := strings.TrimSpace(string(details)); text != "" {
		return errors.New(text)
	}
	return nil
}
