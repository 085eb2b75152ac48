package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

// maxSourceBytes caps a single in-memory source.
const maxSourceBytes = 256 << 20

// Source is an undecoded audio payload fetched from a resolved URL.
type Source struct {
	Data   []byte
	Format string // lower-case extension without the dot, e.g. "mp3"
}

// Fetch reads the whole payload behind rawURL into memory so the decoder can
// seek. file:// and http(s):// URLs are supported; query strings are ignored
// when detecting the format. Payloads over maxSourceBytes fail with
// ErrLoadFailed rather than being decoded truncated.
func Fetch(ctx context.Context, client *http.Client, rawURL string) (Source, error) {
	return fetch(ctx, client, rawURL, maxSourceBytes)
}

func fetch(ctx context.Context, client *http.Client, rawURL string, limit int64) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Source{}, fmt.Errorf("%w: parse url: %w", ErrLoadFailed, err)
	}
	format := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")

	switch u.Scheme {
	case "file", "":
		f, err := os.Open(u.Path)
		if err != nil {
			return Source{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		defer f.Close()
		data, err := readLimited(f, limit)
		if err != nil {
			return Source{}, err
		}
		return Source{Data: data, Format: format}, nil
	case "http", "https":
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return Source{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return Source{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return Source{}, fmt.Errorf("%w: http status %d", ErrLoadFailed, resp.StatusCode)
		}
		if resp.ContentLength > limit {
			return Source{}, fmt.Errorf("%w: source is %d bytes, limit %d", ErrLoadFailed, resp.ContentLength, limit)
		}
		data, err := readLimited(resp.Body, limit)
		if err != nil {
			return Source{}, err
		}
		if format == "" {
			format = formatFromContentType(resp.Header.Get("Content-Type"))
		}
		return Source{Data: data, Format: format}, nil
	default:
		return Source{}, fmt.Errorf("%w: unsupported scheme %q", ErrLoadFailed, u.Scheme)
	}
}

// readLimited reads r to the end, failing once it yields more than limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read source: %w", ErrLoadFailed, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: source exceeds %d bytes", ErrLoadFailed, limit)
	}
	return data, nil
}

func formatFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return "wav"
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return "mp3"
	}
	return ""
}
