package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	cfg "github.com/postpilot/postpilot/configs"
)

// ImageGenService calls the image-generation API over HTTP. The engine
// treats it as an opaque Generator.
type ImageGenService struct {
	cfg    cfg.Config
	client *http.Client
}

func NewImageGenService(cfg cfg.Config) *ImageGenService {
	return &ImageGenService{cfg: cfg, client: http.DefaultClient}
}

func (s *ImageGenService) GenerateImage(ctx context.Context, prompt, sizeHint string) ([]byte, error) {
	if s.cfg.ImageGen.APIKey == "" {
		return nil, &ConfigurationError{Reason: "image generation API key is not set"}
	}

	aspectRatio := "1:1"
	if sizeHint == "story" || sizeHint == "reel" {
		aspectRatio = "9:16"
	}

	payload := map[string]interface{}{
		"prompt":        prompt,
		"aspect_ratio":  aspectRatio,
		"output_format": "jpeg",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.ImageGen.Endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/*")
	req.Header.Set("Authorization", "Bearer "+s.cfg.ImageGen.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, &GenerationError{Err: err, Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		slog.Info(err.Error())
		// 429 and 5xx are worth retrying; 4xx means the request itself is bad.
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, &GenerationError{Err: err, Transient: transient}
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GenerationError{Err: err, Transient: true}
	}
	if len(image) == 0 {
		return nil, &GenerationError{Err: fmt.Errorf("generator returned an empty image")}
	}

	return image, nil
}
