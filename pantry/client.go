// Package pantry pushes file contents to a remote key-value basket over
// HTTP and computes the basket endpoint URLs.
package pantry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/alexjbarnes/scout-sync/internal/errors"
	"github.com/tidwall/gjson"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// DefaultTimeout bounds a single push when no custom client is given.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads. Basket responses are
	// short confirmation strings.
	maxResponseBytes = 64 * 1024
)

// Client pushes baskets to the remote service.
type Client struct {
	httpClient *http.Client
}

// SameHostRedirectPolicy follows redirects only when the target host
// matches the original request host so file contents never leak to a
// third-party domain.
func SameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates a Client with the given http.Client. If httpClient
// is nil, a client with DefaultTimeout and a same-host redirect policy
// is created.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       DefaultTimeout,
			CheckRedirect: SameHostRedirectPolicy,
		}
	}

	return &Client{httpClient: httpClient}
}

// Push POSTs the basket as JSON to endpoint and classifies the response.
// The returned error is nil only for Success. 5xx responses and network
// failures are wrapped in TransientError.
func (c *Client) Push(ctx context.Context, endpoint string, basket Basket) (Outcome, error) {
	if endpoint == "" {
		return OtherFailure, fmt.Errorf("pushing %s: %w", basket.Filename, apperrors.ErrNotConfigured)
	}

	payload, err := json.Marshal(basket)
	if err != nil {
		return OtherFailure, fmt.Errorf("marshalling basket: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return OtherFailure, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return OtherFailure, &TransientError{
			Err: fmt.Errorf("sending %s: %w: %w", basket.Filename, apperrors.ErrTransport, err),
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	outcome := classify(resp.StatusCode)
	switch outcome {
	case Success:
		return Success, nil
	case ServerFailure:
		return ServerFailure, &TransientError{
			Err: fmt.Errorf("basket %s: %w: status %d: %s", basket.Filename, apperrors.ErrServer, resp.StatusCode, responseMessage(respBody)),
		}
	default:
		err := fmt.Errorf("basket %s: %w: status %d: %s", basket.Filename, apperrors.ErrTransport, resp.StatusCode, responseMessage(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			return OtherFailure, &TransientError{Err: err}
		}

		return OtherFailure, err
	}
}

// responseMessage extracts a human-readable message from an error body.
// JSON bodies with a message or error field use that field; anything
// else is sanitized and truncated.
func responseMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, field := range []string{"message", "error", "msg"} {
			if v := gjson.GetBytes(body, field); v.Type == gjson.String && v.Str != "" {
				return sanitizeResponseBody([]byte(v.Str))
			}
		}
	}

	return sanitizeResponseBody(bytes.TrimSpace(body))
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean strings.Builder

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean.WriteByte('?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\t' {
			clean.WriteByte('?')
		} else {
			clean.Write(body[:size])
		}

		body = body[size:]
	}

	return clean.String()
}
