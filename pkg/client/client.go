// Package client is the Go client for the document analysis API. It
// owns submission retry, the progress stream subscription and the
// session state machine a UI drives.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"syscall"

	"github.com/nebulosa/api/pkg/apperr"
)

// Client is a thin HTTP client for the analysis service. Requests carry
// no client-side timeout: failures surface only via transport errors or
// HTTP status, and the caller's context bounds each call.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
	}
}

// CheckHealth probes the service. Any non-200 response or transport
// failure means the service is offline.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.New(apperr.CodeServerUnreachable, "Server unreachable",
			fmt.Sprintf("Could not connect to the server at %s.", c.baseURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.HTTPStatus(resp.StatusCode)
	}
	return nil
}

// Query asks a follow-up question about a previously analyzed document.
func (c *Client) Query(ctx context.Context, query, geminiFileName string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"query":          query,
		"geminiFileName": geminiFileName,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.New(apperr.CodeNetworkError, "Connection to the server was lost", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", errorFromBody(resp.StatusCode, respBody)
	}

	var result struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result.Answer, nil
}

// submitOnce performs a single submission attempt. The transport error,
// status and body are returned raw; retry classification belongs to the
// Submitter.
func (c *Client) submitOnce(ctx context.Context, fileName, mimeType string, data []byte) (int, []byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="pdfFile"; filename=%q`, fileName))
	partHeader.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return 0, nil, err
	}
	if _, err := part.Write(data); err != nil {
		return 0, nil, err
	}
	if err := writer.Close(); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/process", &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, respBody, nil
}

// isCancellation reports whether the request failed because the
// caller's context ended, not because of the server or the network.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// isTransportError reports whether the request never reached the
// server (connection refused, DNS failure, broken socket). Every error
// out of http.Client.Do arrives wrapped in *url.Error, so the wrapper
// alone proves nothing; only connection-level failures count. Anything
// else (a redirect loop, a truncated response) stays retryable.
func isTransportError(err error) bool {
	if isCancellation(err) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// errorFromBody decodes the service's flat error envelope, falling back
// to a generic HTTP error when the body is not usable.
func errorFromBody(status int, body []byte) *apperr.AppError {
	var envelope struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == "" {
		return apperr.HTTPStatus(status)
	}

	code := envelope.Code
	if code == "" {
		code = fmt.Sprintf("HTTP_%d", status)
	}
	details := envelope.Details
	if details == "" {
		details = "The server rejected the request."
	}
	return apperr.New(code, envelope.Error, details)
}
