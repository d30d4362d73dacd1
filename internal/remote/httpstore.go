package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Envelope is the wire shape of a document returned by the HTTP API.
type Envelope struct {
	Revision int64          `json:"revision"`
	Document map[string]any `json:"document"`
}

// HTTPStore talks to the document API served by internal/server.
//
// Subscriptions are long-poll loops against /users/:id/watch. A failed poll
// is reported through the ErrorFunc and retried with capped backoff; the
// last delivered document stays authoritative locally in the meantime.
type HTTPStore struct {
	baseURL     string
	client      *http.Client
	watchWindow time.Duration
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

// HTTPOption configures an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPStore) {
		s.client = c
	}
}

// WithWatchWindow sets how long the server may hold a watch request open.
func WithWatchWindow(d time.Duration) HTTPOption {
	return func(s *HTTPStore) {
		s.watchWindow = d
	}
}

// WithBackoff sets the retry backoff bounds for failed watch polls.
func WithBackoff(min, max time.Duration) HTTPOption {
	return func(s *HTTPStore) {
		s.minBackoff = min
		s.maxBackoff = max
	}
}

// NewHTTPStore creates a client for the API rooted at baseURL.
func NewHTTPStore(baseURL string, opts ...HTTPOption) *HTTPStore {
	s := &HTTPStore{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 60 * time.Second},
		watchWindow: 25 * time.Second,
		minBackoff:  250 * time.Millisecond,
		maxBackoff:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get fetches the user's document.
func (s *HTTPStore) Get(ctx context.Context, userID string) (Document, error) {
	env, err := s.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NormalizeDocument(env.Document), nil
}

// Set writes fields with PUT. merge=false replaces the document.
func (s *HTTPStore) Set(ctx context.Context, userID string, fields Document, merge bool) error {
	q := url.Values{"merge": {strconv.FormatBool(merge)}}
	resp, err := s.send(ctx, http.MethodPut, s.userURL(userID)+"?"+q.Encode(), fields)
	if err != nil {
		return fmt.Errorf("set %s: %w", userID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("set %s: %w", userID, statusError(resp))
	}
	return nil
}

// Update writes fields with PATCH; the server answers 404 when the document
// does not exist.
func (s *HTTPStore) Update(ctx context.Context, userID string, fields Document) error {
	resp, err := s.send(ctx, http.MethodPatch, s.userURL(userID), fields)
	if err != nil {
		return fmt.Errorf("update %s: %w", userID, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("update %s: %w", userID, ErrNotFound)
	default:
		return fmt.Errorf("update %s: %w", userID, statusError(resp))
	}
}

// Subscribe starts a long-poll loop. The first successful fetch delivers the
// current document; each later revision is delivered once.
func (s *HTTPStore) Subscribe(ctx context.Context, userID string, onChange ChangeFunc, onError ErrorFunc) (func(), error) {
	if onChange == nil {
		return nil, fmt.Errorf("subscribe %s: change callback is required", userID)
	}
	if onError == nil {
		onError = func(error) {}
	}

	subCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchLoop(subCtx, userID, onChange, onError)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func (s *HTTPStore) watchLoop(ctx context.Context, userID string, onChange ChangeFunc, onError ErrorFunc) {
	var after int64
	backoff := s.minBackoff

	for {
		env, changed, err := s.watch(ctx, userID, after)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("remote watch failed", "user", userID, "error", err, "retry_in", backoff)
			onError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			continue
		}
		backoff = s.minBackoff
		if changed && env.Revision > after {
			after = env.Revision
			onChange(NormalizeDocument(env.Document))
		}
	}
}

// watch performs one long-poll. changed is false when the server timed out
// without a newer revision.
func (s *HTTPStore) watch(ctx context.Context, userID string, after int64) (Envelope, bool, error) {
	q := url.Values{
		"after":   {strconv.FormatInt(after, 10)},
		"timeout": {s.watchWindow.String()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userURL(userID)+"/watch?"+q.Encode(), nil)
	if err != nil {
		return Envelope{}, false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Envelope{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		env, err := decodeEnvelope(resp.Body)
		return env, err == nil, err
	case http.StatusNotModified:
		return Envelope{}, false, nil
	default:
		return Envelope{}, false, statusError(resp)
	}
}

func (s *HTTPStore) fetch(ctx context.Context, userID string) (Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userURL(userID), nil)
	if err != nil {
		return Envelope{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("get %s: %w", userID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return decodeEnvelope(resp.Body)
	case http.StatusNotFound:
		return Envelope{}, ErrNotFound
	default:
		return Envelope{}, fmt.Errorf("get %s: %w", userID, statusError(resp))
	}
}

func (s *HTTPStore) send(ctx context.Context, method, target string, fields Document) (*http.Response, error) {
	body, err := json.Marshal(map[string]any(fields))
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.client.Do(req)
}

func (s *HTTPStore) userURL(userID string) string {
	return s.baseURL + "/users/" + url.PathEscape(userID)
}

func decodeEnvelope(r io.Reader) (Envelope, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("decode document: %w", err)
	}
	return env, nil
}

// StatusError reports an unexpected HTTP status from the document API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("document api: %d %s", e.Code, e.Message)
	}
	return fmt.Sprintf("document api: %d", e.Code)
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			payload.Error = strings.TrimSpace(string(data))
		}
	}
	return &StatusError{Code: resp.StatusCode, Message: payload.Error}
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
