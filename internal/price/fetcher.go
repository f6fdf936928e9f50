package price

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
)

// ErrUpstreamStatus marks a non-2xx answer from the price authority.
var ErrUpstreamStatus = errors.New("upstream returned non-success status")

// Fetcher abstracts retrieval of an upstream document as a byte stream.
// The returned stream must be closed on every exit path.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (io.ReadCloser, error)
}

// HTTPFetcher performs plain GETs with a per-document deadline. It does not
// retry; the caller owns retry policy.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	// Setting Accept-Encoding by hand disables the transport's transparent
	// decompression, so the Content-Encoding switch below is on us.
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %s from %s", ErrUpstreamStatus, resp.Status, url)
	}

	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			cancel()
			return nil, err
		}
		reader = gz
	case "deflate":
		reader = flate.NewReader(resp.Body)
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	return &fetchBody{Reader: reader, body: resp.Body, cancel: cancel}, nil
}

// fetchBody ties the response body and the deadline cancellation to a
// single Close.
type fetchBody struct {
	io.Reader
	body   io.ReadCloser
	cancel context.CancelFunc
}

func (b *fetchBody) Close() error {
	err := b.body.Close()
	b.cancel()
	return err
}
