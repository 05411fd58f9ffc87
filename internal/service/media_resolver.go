package service

import (
	"context"
	"fmt"
	"log/slog"

	cfg "github.com/postpilot/postpilot/configs"
	"github.com/postpilot/postpilot/internal/models"
	"github.com/postpilot/postpilot/internal/repository"
)

// MediaResolver guarantees a row has publishable media before the adapter
// call, generating and uploading what is missing.
type MediaResolver interface {
	Resolve(ctx context.Context, row *models.ContentRow) error
}

type mediaResolver struct {
	cfg       cfg.Config
	generator Generator
	uploader  Uploader
	rm        repository.RowMediaRepository
}

func NewMediaResolver(cfg cfg.Config, generator Generator, uploader Uploader, rm repository.RowMediaRepository) MediaResolver {
	return &mediaResolver{
		cfg:       cfg,
		generator: generator,
		uploader:  uploader,
		rm:        rm,
	}
}

// Resolve populates row.Media according to the post type policy and
// persists generated refs. A row is never left half-resolved: either all
// required media exists afterwards or an error is returned.
func (r *mediaResolver) Resolve(ctx context.Context, row *models.ContentRow) error {
	switch row.PostType {
	case models.PostTypePhoto:
		return r.resolvePhoto(ctx, row)
	case models.PostTypeCarousel:
		return r.resolveCarousel(ctx, row)
	case models.PostTypeReel:
		// Video generation is not supported; the video must be supplied.
		if len(row.Media) == 0 {
			return &ConfigurationError{Reason: "reel posts require a provided video URL; video generation is not supported"}
		}
		return nil
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown post type %q", row.PostType)}
	}
}

func (r *mediaResolver) resolvePhoto(ctx context.Context, row *models.ContentRow) error {
	if len(row.Media) > 0 {
		return nil
	}

	ref, err := r.generateAndUpload(ctx, r.truncatePrompt(row.Prompt()), 0)
	if err != nil {
		return err
	}

	row.Media = []models.MediaRef{ref}
	return r.rm.ReplaceForRow(ctx, row.ID, row.Media)
}

func (r *mediaResolver) resolveCarousel(ctx context.Context, row *models.ContentRow) error {
	if len(row.Media) > 0 {
		return nil
	}

	n := carouselImageCount(row)
	prompt := r.truncatePrompt(row.Prompt())

	refs := make([]models.MediaRef, 0, n)
	for i := 0; i < n; i++ {
		// Vary the prompt per slide so the carousel is not n identical images.
		ref, err := r.generateAndUpload(ctx, fmt.Sprintf("%s - variation %d", prompt, i+1), i)
		if err != nil {
			return fmt.Errorf("carousel image %d of %d: %w", i+1, n, err)
		}
		refs = append(refs, ref)
	}

	row.Media = refs
	return r.rm.ReplaceForRow(ctx, row.ID, refs)
}

func (r *mediaResolver) generateAndUpload(ctx context.Context, prompt string, order int) (models.MediaRef, error) {
	if !r.uploader.IsConfigured() {
		return models.MediaRef{}, &ConfigurationError{Reason: "media storage is not configured"}
	}

	image, err := r.generator.GenerateImage(ctx, prompt, "feed")
	if err != nil {
		return models.MediaRef{}, err
	}

	url, err := r.uploader.Upload(ctx, image, "image/jpeg", InstagramImageTransform())
	if err != nil {
		return models.MediaRef{}, err
	}

	slog.Info("generated and uploaded image", "url", url)
	return models.MediaRef{URL: url, MediaType: "image", DisplayOrder: order}, nil
}

func (r *mediaResolver) truncatePrompt(prompt string) string {
	limit := r.cfg.ImageGen.PromptLimit
	if limit > 0 && len(prompt) > limit {
		return prompt[:limit]
	}
	return prompt
}

// carouselImageCount picks how many slides to generate. The caller's
// explicit count wins; otherwise a heuristic scales the count with caption
// length, clamped to the platform's 3-7 range.
func carouselImageCount(row *models.ContentRow) int {
	if row.CarouselCount >= models.CarouselMinImages && row.CarouselCount <= models.CarouselMaxImages {
		return row.CarouselCount
	}
	n := len(row.Prompt())/100 + models.CarouselMinImages
	if n < models.CarouselMinImages {
		n = models.CarouselMinImages
	}
	if n > models.CarouselMaxImages {
		n = models.CarouselMaxImages
	}
	return n
}
