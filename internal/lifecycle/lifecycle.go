// Package lifecycle owns the content-row status machine:
//
//	draft -> ready -> scheduled -> published | failed
//
// plus cancel (scheduled -> draft) and caption edit (scheduled -> scheduled),
// both allowed only before the row's due instant. Every other transition is
// rejected with ErrInvalidTransition, never silently ignored.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/postpilot/postpilot/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyCaption      = errors.New("caption cannot be empty")
	ErrBadCardinality    = errors.New("media does not satisfy post type")
	ErrPastDue           = errors.New("row is already due")
)

// Transition validates and applies a status change in place.
func Transition(row *models.ContentRow, to string, now time.Time) error {
	from := row.Status
	switch {
	case from == models.RowStatusDraft && to == models.RowStatusReady:
		if err := CanReady(row); err != nil {
			return err
		}
	case from == models.RowStatusReady && to == models.RowStatusScheduled:
		row.ErrorMessage = ""
	case from == models.RowStatusScheduled && to == models.RowStatusPublished:
	case from == models.RowStatusScheduled && to == models.RowStatusFailed:
	case from == models.RowStatusScheduled && to == models.RowStatusDraft:
		if !now.Before(row.DueAt) {
			return fmt.Errorf("%w: cannot cancel row %s", ErrPastDue, row.ID)
		}
	case from == models.RowStatusScheduled && to == models.RowStatusScheduled:
		if !now.Before(row.DueAt) {
			return fmt.Errorf("%w: cannot edit row %s", ErrPastDue, row.ID)
		}
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	row.Status = to
	return nil
}

// CanReady checks the draft -> ready guard: a caption must be present and
// the attached media must satisfy the post type's cardinality rule.
func CanReady(row *models.ContentRow) error {
	if row.Caption == "" {
		return ErrEmptyCaption
	}
	return CheckCardinality(row.PostType, len(row.Media))
}

// CheckCardinality enforces the per-post-type media count. Empty media is
// always legal: the resolver fills it in at execution time (except reels,
// whose video must be supplied up front and is checked there).
func CheckCardinality(postType string, count int) error {
	if count == 0 {
		return nil
	}
	switch postType {
	case models.PostTypePhoto, models.PostTypeReel:
		if count != 1 {
			return fmt.Errorf("%w: %s post has %d media refs", ErrBadCardinality, postType, count)
		}
	case models.PostTypeCarousel:
		if count < models.CarouselMinImages || count > models.CarouselMaxImages {
			return fmt.Errorf("%w: carousel has %d images, want %d-%d",
				ErrBadCardinality, count, models.CarouselMinImages, models.CarouselMaxImages)
		}
	default:
		return fmt.Errorf("%w: unknown post type %q", ErrBadCardinality, postType)
	}
	return nil
}
