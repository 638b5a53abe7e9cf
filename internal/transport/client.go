package transport

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/infrastructure/logging"
	"github.com/chainwatch/monitor/infrastructure/metrics"
	"github.com/chainwatch/monitor/infrastructure/resilience"
)

// RequestError is returned for a non-success HTTP response that is not
// rotatable (spec §4.2 step 4).
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("transport: request error: status=%d body=%s", e.Status, e.Body)
}

// ConnectionError wraps a transport-level failure (DNS/TCP/TLS/timeout) that
// never produced an HTTP response.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("transport: connection error: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// InvalidURLError is returned when the active endpoint URL cannot be used to
// build a request.
type InvalidURLError struct {
	URL string
}

func (e *InvalidURLError) Error() string { return fmt.Sprintf("transport: invalid url: %s", e.URL) }

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Client owns the HTTP client, the endpoint manager, and a retry policy. It
// exposes SendRaw per spec §4.2.
type Client struct {
	network   string
	endpoints *EndpointManager
	http      *http.Client
	retry     resilience.RetryConfig
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewClient builds a transport client for one network.
func NewClient(network string, endpoints *EndpointManager, httpClient *http.Client, logger *logging.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	retry := resilience.TransportRetryConfig()
	retry.Classify = isTransientTransportError
	return &Client{
		network:   network,
		endpoints: endpoints,
		http:      httpClient,
		retry:     retry,
		logger:    logger,
		metrics:   m,
	}
}

// SendRaw issues a JSON-RPC call, rotating endpoints on rotatable failures
// and retrying with backoff, per the spec §4.2 algorithm.
func (c *Client) SendRaw(ctx context.Context, method string, params any) (json.RawMessage, error) {
	remainingRotations := c.endpoints.EndpointCount() - 1

	for {
		url := c.endpoints.Current()
		result, status, err := c.attempt(ctx, url, method, params)
		if err == nil {
			return result, nil
		}

		if !isRotatable(err, status) {
			return nil, errors.Wrap(errors.KindTransport, "transport.client", "send_raw", err).
				WithMetadata("network", c.network).
				WithMetadata("method", method)
		}

		if remainingRotations <= 0 {
			return nil, errors.Wrap(errors.KindTransport, "transport.client", "send_raw", ErrNoHealthyEndpoint).
				WithMetadata("network", c.network).
				WithMetadata("method", method)
		}
		remainingRotations--

		var probeResult json.RawMessage
		var probeErr error
		rotateErr := c.endpoints.Rotate(ctx, func(rctx context.Context, candidate string) error {
			var pStatus int
			probeResult, pStatus, probeErr = c.attempt(rctx, candidate, method, params)
			if c.metrics != nil {
				c.metrics.RecordRotation(c.network, probeErr)
			}
			_ = pStatus
			return probeErr
		})
		if c.logger != nil {
			c.logger.LogRotation(ctx, c.network, url, c.endpoints.Current(), rotateErr)
		}
		if rotateErr != nil {
			return nil, errors.Wrap(errors.KindTransport, "transport.client", "send_raw", ErrNoHealthyEndpoint).
				WithMetadata("network", c.network)
		}
		return probeResult, nil
	}
}

// attempt issues one request under the retry policy, returning the parsed
// result, the last observed HTTP status (0 if none was ever obtained), and
// the terminal error if every attempt failed.
func (c *Client) attempt(ctx context.Context, url, method string, params any) (json.RawMessage, int, error) {
	if url == "" {
		return nil, 0, &InvalidURLError{URL: url}
	}

	var result json.RawMessage
	var status int

	err := resilience.Retry(ctx, c.retry, func() error {
		res, st, doErr := c.doOnce(ctx, url, method, params)
		status = st
		if doErr != nil {
			return doErr
		}
		result = res
		return nil
	})
	return result, status, err
}

func (c *Client) doOnce(ctx context.Context, url, method string, params any) (json.RawMessage, int, error) {
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		return c.doOnceWS(ctx, url, method, params)
	}

	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, 0, fmt.Errorf("transport: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &InvalidURLError{URL: url}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &ConnectionError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &RequestError{Status: resp.StatusCode, Body: string(respBody)}
	}

	result, err := decodeEnvelope(respBody)
	if err != nil {
		return nil, resp.StatusCode, &RequestError{Status: resp.StatusCode, Body: err.Error()}
	}
	return result, resp.StatusCode, nil
}

// doOnceWS issues one JSON-RPC call over a freshly dialed WebSocket
// connection, per spec §4.2's WS transport variant. Each call dials, sends,
// reads one response, and closes — no persistent connection or subscription
// state is kept, matching the request/response shape the HTTP path uses.
func (c *Client) doOnceWS(ctx context.Context, url, method string, params any) (json.RawMessage, int, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, 0, &ConnectionError{Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, 0, fmt.Errorf("transport: marshal request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return nil, 0, &ConnectionError{Err: err}
	}

	_, respBody, err := conn.ReadMessage()
	if err != nil {
		return nil, 0, &ConnectionError{Err: err}
	}

	result, err := decodeEnvelope(respBody)
	if err != nil {
		return nil, 0, &RequestError{Status: 0, Body: err.Error()}
	}
	return result, 0, nil
}

// decodeEnvelope unwraps a JSON-RPC 2.0 response envelope, surfacing any
// RPC-level error as a Go error regardless of which transport delivered it.
func decodeEnvelope(raw []byte) (json.RawMessage, error) {
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("transport: decode response: %s", string(raw))
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("%s", envelope.Error.Message)
	}
	return envelope.Result, nil
}

// isTransientTransportError classifies a single attempt's failure for the
// retry loop: connection-level failures and server errors are worth another
// attempt, but a malformed URL or a client-side HTTP error (4xx, excluding
// 429) will not change on retry and is treated as fatal.
func isTransientTransportError(err error) bool {
	var invalidURL *InvalidURLError
	if stderrors.As(err, &invalidURL) {
		return false
	}
	var reqErr *RequestError
	if stderrors.As(err, &reqErr) {
		return reqErr.Status == http.StatusTooManyRequests || reqErr.Status >= 500
	}
	return true
}

// isRotatable classifies a failure per spec §4.1: HTTP 429 or any
// transport-level connection error is rotatable; other HTTP errors are not.
func isRotatable(err error, status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	var connErr *ConnectionError
	if stderrors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}
