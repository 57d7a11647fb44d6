// Package client talks to the OCR, TTS and object storage providers.
package client

import (
	"context"
	"io"
	"time"
)

// TextDetector extracts the full text of an image
type TextDetector interface {
	DetectText(ctx context.Context, image []byte) (string, error)
}

// SpeechSynthesizer turns text into encoded audio
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// Audio is a synthesized clip
type Audio struct {
	Data        []byte
	ContentType string
}

// URLSigner issues time-limited download URLs
type URLSigner interface {
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// StorageClient defines the interface for object storage operations
type StorageClient interface {
	URLSigner
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
}
