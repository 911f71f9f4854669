package httptransport

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Status mapping for request body failures:
//   - invalid gzip → 400
//   - compressed or decompressed limit exceeded → 413
//   - non-JSON content type or unknown encoding → 415
var (
	errDecompressedTooLarge = errors.New("decompressed data exceeds maximum size limit")
	errBodyTooLarge         = errors.New("request body too large")
	errUnsupportedMedia     = errors.New("unsupported media type")
	errUnsupportedEncoding  = errors.New("unsupported content encoding")
	errInvalidGzip          = errors.New("invalid gzip data")
)

// maxDecompressedReader wraps an io.Reader to enforce decompressed size limits
type maxDecompressedReader struct {
	reader   io.Reader
	limit    int64
	consumed int64
	tooLarge error
}

func (r *maxDecompressedReader) Read(p []byte) (int, error) {
	if r.consumed >= r.limit {
		var probe [1]byte
		if n, _ := r.reader.Read(probe[:]); n > 0 {
			return 0, r.tooLarge
		}
		return 0, io.EOF
	}

	maxRead := r.limit - r.consumed
	if int64(len(p)) > maxRead {
		p = p[:maxRead]
	}

	n, err := r.reader.Read(p)
	r.consumed += int64(n)
	return n, err
}

// safeRequestReader returns a reader over the request body that enforces both
// the compressed and decompressed size limits.
func safeRequestReader(w http.ResponseWriter, r *http.Request, options *ServerOptions) (io.Reader, func(), error) {
	noop := func() {}

	maxRequestSize := options.MaxRequestSize
	if maxRequestSize == 0 {
		maxRequestSize = 10 * 1024 * 1024
	}
	maxDecompressedSize := options.MaxDecompressedSize
	if maxDecompressedSize == 0 {
		maxDecompressedSize = 20 * 1024 * 1024
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return nil, noop, fmt.Errorf("%w: %s", errUnsupportedMedia, contentType)
	}

	if r.ContentLength > maxRequestSize {
		return nil, noop, fmt.Errorf("%w: %d bytes (max %d)", errBodyTooLarge, r.ContentLength, maxRequestSize)
	}

	contentEncoding := strings.TrimSpace(strings.ToLower(r.Header.Get("Content-Encoding")))
	if contentEncoding != "" && contentEncoding != "gzip" {
		return nil, noop, fmt.Errorf("%w: %s (only gzip is supported)", errUnsupportedEncoding, contentEncoding)
	}

	if contentEncoding == "" {
		// Uncompressed bodies get the stricter of the two limits.
		return http.MaxBytesReader(w, r.Body, min(maxRequestSize, maxDecompressedSize)), noop, nil
	}

	gz, err := gzip.NewReader(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err != nil {
		return nil, noop, fmt.Errorf("%w: %v", errInvalidGzip, err)
	}

	return &maxDecompressedReader{
		reader:   gz,
		limit:    maxDecompressedSize,
		tooLarge: errDecompressedTooLarge,
	}, func() { gz.Close() }, nil
}

// statusForBodyError maps a request body failure to an HTTP status.
func statusForBodyError(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errDecompressedTooLarge), errors.Is(err, errBodyTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedMedia), errors.Is(err, errUnsupportedEncoding):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

var errResponseDecompressedTooLarge = errors.New("response decompressed size exceeds limit")

// safeResponseReader limits the compressed response body and, when the
// server answered with gzip, the decompressed stream too.
func safeResponseReader(resp *http.Response, options *ClientOptions) (io.Reader, func(), error) {
	noop := func() {}
	limited := io.LimitReader(resp.Body, options.MaxResponseSize+1)

	if !strings.EqualFold(strings.TrimSpace(resp.Header.Get("Content-Encoding")), "gzip") {
		return &maxDecompressedReader{
			reader:   limited,
			limit:    options.MaxResponseSize,
			tooLarge: errResponseDecompressedTooLarge,
		}, noop, nil
	}

	gz, err := gzip.NewReader(limited)
	if err != nil {
		return nil, noop, fmt.Errorf("invalid gzip response: %w", err)
	}
	return &maxDecompressedReader{
		reader:   gz,
		limit:    options.MaxDecompressedResponseSize,
		tooLarge: errResponseDecompressedTooLarge,
	}, func() { gz.Close() }, nil
}

func gzipBytes(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(payload); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
