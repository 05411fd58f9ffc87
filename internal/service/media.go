package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/postpilot/postpilot/internal/models"
)

// Generator produces image bytes from a text prompt.
type Generator interface {
	GenerateImage(ctx context.Context, prompt, sizeHint string) ([]byte, error)
}

// Uploader stores media bytes and returns a publicly reachable URL.
type Uploader interface {
	IsConfigured() bool
	Upload(ctx context.Context, data []byte, contentType string, t Transform) (string, error)
}

// PlatformAdapter publishes a finished row to the target platform and
// returns the platform's post ID.
type PlatformAdapter interface {
	Publish(ctx context.Context, account *models.SocialAccount, postType, caption string, media []models.MediaRef) (string, error)
}

// Transform is the platform-optimized upload spec applied to every
// generated image.
type Transform struct {
	Width   int
	Height  int
	Crop    string
	Gravity string
	Quality string
	Folder  string
}

// InstagramImageTransform is the fixed square feed transform.
func InstagramImageTransform() Transform {
	return Transform{Width: 1080, Height: 1080, Crop: "fill", Gravity: "auto", Quality: "auto", Folder: "instagram"}
}

// ConfigurationError marks failures caused by missing or invalid setup
// (absent credentials, reel without a video). Never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// GenerationError wraps an image-generation failure. Transient failures
// (timeouts, rate limits, 5xx) are safe to retry.
type GenerationError struct {
	Err       error
	Transient bool
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("image generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// UploadError wraps a storage upload failure.
type UploadError struct {
	Err       error
	Transient bool
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("media upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PublishError is an adapter failure, tagged recoverable by the platform's
// own transient flag or status code.
type PublishError struct {
	Code        int
	Message     string
	Recoverable bool
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed (code %d): %s", e.Code, e.Message)
}

// IsRecoverable classifies an execution error for the retry policy.
// Configuration errors are never recoverable; timeouts always are.
func IsRecoverable(err error) bool {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Transient
	}
	var upErr *UploadError
	if errors.As(err, &upErr) {
		return upErr.Transient
	}
	var pubErr *PublishError
	if errors.As(err, &pubErr) {
		return pubErr.Recoverable
	}
	return false
}
