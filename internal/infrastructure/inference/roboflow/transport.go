package roboflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// postBase64 performs one hosted-inference call: credential as an api_key
// query parameter, raw base64 text as the form-encoded body.
func (c *Client) postBase64(ctx context.Context, modelURL, imageBase64 string, out *json.RawMessage) error {
	endpoint, err := url.Parse(modelURL)
	if err != nil {
		return fmt.Errorf("parse model url: %w", err)
	}
	query := endpoint.Query()
	query.Set("api_key", c.apiKey)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(imageBase64))
	if err != nil {
		return fmt.Errorf("create inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read inference response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	*out = json.RawMessage(body)
	return nil
}
