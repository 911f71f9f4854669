package httptransport

import (
	"fmt"
	"time"
)

// ServerOptions configures the HTTP sync server.
type ServerOptions struct {
	// MaxRequestSize is the maximum allowed size of incoming request bodies in bytes (compressed)
	// If 0, defaults to 10MB
	MaxRequestSize int64

	// MaxDecompressedSize is the maximum allowed size of decompressed request bodies in bytes.
	// If 0, defaults to 20MB
	MaxDecompressedSize int64

	// CompressionEnabled enables gzip compression for responses larger than
	// CompressionThreshold when the client accepts it.
	CompressionEnabled bool

	// CompressionThreshold is the minimum size in bytes before responses are compressed
	CompressionThreshold int64

	// RequestTimeout bounds the handling of a single request.
	RequestTimeout time.Duration

	// ShutdownTimeout is the maximum duration to wait for in-flight requests during shutdown
	ShutdownTimeout time.Duration
}

// DefaultServerOptions returns the default server options
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{
		MaxRequestSize:       10 * 1024 * 1024, // 10MB
		MaxDecompressedSize:  20 * 1024 * 1024, // 20MB
		CompressionEnabled:   true,
		CompressionThreshold: 1024,             // 1KB
		RequestTimeout:       30 * time.Second, // 30s
		ShutdownTimeout:      10 * time.Second, // 10s
	}
}

// ClientOptions configures the HTTP sync client.
type ClientOptions struct {
	// CompressionEnabled gzips request bodies above GzipMinBytes and
	// advertises gzip support for responses.
	CompressionEnabled bool

	// GzipMinBytes is the request size at which compression starts.
	// If 0, defaults to 1KB
	GzipMinBytes int

	// MaxResponseSize is the maximum allowed size of response bodies in bytes (compressed)
	// If 0, defaults to 10MB
	MaxResponseSize int64

	// MaxDecompressedResponseSize is the maximum allowed size of decompressed response bodies in bytes
	// If 0, defaults to 20MB
	MaxDecompressedResponseSize int64

	// RequestTimeout is the maximum duration for a single round trip.
	// If 0, defaults to 30 seconds
	RequestTimeout time.Duration
}

// DefaultClientOptions returns the default client options
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		CompressionEnabled:          true,
		GzipMinBytes:                1024,
		MaxResponseSize:             10 * 1024 * 1024, // 10MB
		MaxDecompressedResponseSize: 20 * 1024 * 1024, // 20MB
		RequestTimeout:              30 * time.Second,
	}
}

// ValidateClientOptions rejects negative limits.
func ValidateClientOptions(opts *ClientOptions) error {
	if opts == nil {
		return nil
	}
	if opts.GzipMinBytes < 0 {
		return fmt.Errorf("GzipMinBytes must be non-negative, got %d", opts.GzipMinBytes)
	}
	if opts.MaxResponseSize < 0 {
		return fmt.Errorf("MaxResponseSize must be non-negative, got %d", opts.MaxResponseSize)
	}
	if opts.MaxDecompressedResponseSize < 0 {
		return fmt.Errorf("MaxDecompressedResponseSize must be non-negative, got %d", opts.MaxDecompressedResponseSize)
	}
	if opts.RequestTimeout < 0 {
		return fmt.Errorf("RequestTimeout must be non-negative, got %s", opts.RequestTimeout)
	}
	return nil
}

// ValidateServerOptions rejects negative limits.
func ValidateServerOptions(opts *ServerOptions) error {
	if opts == nil {
		return nil
	}
	if opts.MaxRequestSize < 0 {
		return fmt.Errorf("MaxRequestSize must be non-negative, got %d", opts.MaxRequestSize)
	}
	if opts.MaxDecompressedSize < 0 {
		return fmt.Errorf("MaxDecompressedSize must be non-negative, got %d", opts.MaxDecompressedSize)
	}
	if opts.CompressionThreshold < 0 {
		return fmt.Errorf("CompressionThreshold must be non-negative, got %d", opts.CompressionThreshold)
	}
	return nil
}
