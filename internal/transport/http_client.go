package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/types"
)

// HTTPClient talks to the platform SDK bridge over HTTP. The bridge owns the
// actual platform session; this client only moves JSON and bytes. A 429
// response with a Retry-After header maps to the rate-limit condition.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a bridge client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetEntity resolves a channel reference via the bridge.
func (c *HTTPClient) GetEntity(ctx context.Context, ref string) (*Entity, error) {
	var entity Entity
	q := url.Values{"ref": {ref}}
	if err := c.getJSON(ctx, "/entity", q, &entity); err != nil {
		if _, ok := apperrors.IsRateLimited(err); ok {
			return nil, err
		}
		return nil, apperrors.NewEntityResolutionError(ref, err)
	}
	return &entity, nil
}

// GetMessage fetches one message by sequence number.
func (c *HTTPClient) GetMessage(ctx context.Context, channel types.ChannelID, id types.MessageID) (*Message, error) {
	q := url.Values{
		"channel": {string(channel)},
		"id":      {strconv.FormatInt(int64(id), 10)},
	}
	var msg Message
	found, err := c.getJSONMaybe(ctx, "/message", q, &msg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &msg, nil
}

// GetLatestMessage fetches the most recent message of a channel.
func (c *HTTPClient) GetLatestMessage(ctx context.Context, channel types.ChannelID) (*Message, error) {
	q := url.Values{"channel": {string(channel)}}
	var msg Message
	found, err := c.getJSONMaybe(ctx, "/latest", q, &msg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &msg, nil
}

// DownloadMedia streams the message's payload to a local file.
func (c *HTTPClient) DownloadMedia(ctx context.Context, msg *Message, path string) error {
	q := url.Values{
		"channel": {string(msg.ChannelID)},
		"id":      {strconv.FormatInt(int64(msg.ID), 10)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download?"+q.Encode(), nil)
	if err != nil {
		return apperrors.NewTransportError("download", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewTransportError("download", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewTransportError("download", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return apperrors.NewTransportError("download", err)
	}
	return f.Close()
}

// SendFile uploads one artifact to the target channel through the bridge.
func (c *HTTPClient) SendFile(ctx context.Context, target string, input SendInput) error {
	payload := input.Bytes
	if payload == nil {
		data, err := os.ReadFile(input.Path)
		if err != nil {
			return apperrors.NewTransportError("send", err)
		}
		payload = data
	}

	q := url.Values{
		"target":    {target},
		"file_name": {input.FileName},
	}
	if input.ForceDocument {
		q.Set("force_document", "1")
	}
	if input.SupportsStreaming {
		q.Set("streaming", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return apperrors.NewTransportError("send", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewTransportError("send", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	found, err := c.getJSONMaybe(ctx, path, q, out)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.NewTransportError(path, fmt.Errorf("not found"))
	}
	return nil
}

// getJSONMaybe performs a GET and decodes the response. A 404 reports
// found=false without error: absent messages are a normal outcome.
func (c *HTTPClient) getJSONMaybe(ctx context.Context, path string, q url.Values, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return false, apperrors.NewTransportError(path, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, apperrors.NewTransportError(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := checkStatus(resp); err != nil {
		return false, err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, apperrors.NewTransportError(path, err)
	}
	return true, nil
}

// checkStatus maps non-2xx responses to the error taxonomy. 429 carries the
// platform's mandated wait in the Retry-After header.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		seconds, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		if seconds <= 0 {
			seconds = 1
		}
		return apperrors.NewRateLimited(time.Duration(seconds) * time.Second)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return apperrors.NewTransportError(
		resp.Request.URL.Path,
		fmt.Errorf("bridge returned %d: %s", resp.StatusCode, string(body)),
	)
}
