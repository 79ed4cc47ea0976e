package exchangeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RequestTimeout is the fixed deadline of every exchange request. Requests are never retried.
const RequestTimeout = 30 * time.Second

// NewHTTPClient returns a traced client with the request deadline applied.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Execute runs req under RequestTimeout and reads the whole body.
func Execute(ctx context.Context, client *http.Client, req *http.Request) (*Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Lookup evaluates a JSONPath expression against a JSON document.
func Lookup(body []byte, path string) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return jsonpath.Get(path, doc)
}

// UnwrapData returns the JSON encoding of the array under the "data" member
// of an envelope such as {"data": [...]}.
func UnwrapData(body []byte) ([]byte, error) {
	v, err := Lookup(body, "$.data")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: data is %T, not an array", ErrNoData, v)
	}
	return json.Marshal(items)
}

// DecodeEach decodes every element of the JSON array data into a T.
// Elements that fail to decode are passed to skip and left out, so one bad
// record never empties a page. An error is returned only when data is not an array.
func DecodeEach[T any](data []byte, skip func(index int, err error)) ([]T, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(items))
	for i, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			if skip != nil {
				skip(i, err)
			}
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
