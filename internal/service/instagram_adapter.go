package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	cfg "github.com/postpilot/postpilot/configs"
	"github.com/postpilot/postpilot/internal/models"
	"github.com/postpilot/postpilot/internal/transfer"
	"github.com/postpilot/postpilot/pkg/utils"
)

const graphBaseURL = "https://graph.instagram.com/v21.0"

// InstagramAdapter publishes rows through the Graph API container flow:
// create one container per media item, then publish the container.
type InstagramAdapter struct {
	cfg    cfg.Config
	client *http.Client
}

func NewInstagramAdapter(cfg cfg.Config) *InstagramAdapter {
	return &InstagramAdapter{cfg: cfg, client: http.DefaultClient}
}

func (a *InstagramAdapter) Publish(ctx context.Context, account *models.SocialAccount, postType, caption string, media []models.MediaRef) (string, error) {
	if account == nil || account.AccountID == "" {
		return "", &ConfigurationError{Reason: "social account is not linked"}
	}
	if len(media) == 0 {
		return "", &ConfigurationError{Reason: "row has no media attached"}
	}

	accessToken, err := utils.Decrypt(account.AccessToken, []byte(a.cfg.SecretKey))
	if err != nil {
		return "", &ConfigurationError{Reason: "unable to decrypt account access token"}
	}

	var creationID string
	switch postType {
	case models.PostTypePhoto:
		creationID, err = a.createContainer(ctx, account.AccountID, map[string]interface{}{
			"image_url":    media[0].URL,
			"caption":      caption,
			"access_token": accessToken,
		})
	case models.PostTypeCarousel:
		creationID, err = a.createCarousel(ctx, account.AccountID, caption, accessToken, media)
	case models.PostTypeReel:
		creationID, err = a.createContainer(ctx, account.AccountID, map[string]interface{}{
			"media_type":   "REELS",
			"video_url":    media[0].URL,
			"caption":      caption,
			"access_token": accessToken,
		})
	default:
		return "", &PublishError{Message: fmt.Sprintf("unknown post type %q", postType)}
	}
	if err != nil {
		return "", err
	}

	return a.publishContainer(ctx, account.AccountID, creationID, accessToken)
}

func (a *InstagramAdapter) createCarousel(ctx context.Context, accountID, caption, accessToken string, media []models.MediaRef) (string, error) {
	children := make([]string, 0, len(media))
	for _, ref := range media {
		childID, err := a.createContainer(ctx, accountID, map[string]interface{}{
			"image_url":        ref.URL,
			"is_carousel_item": true,
			"access_token":     accessToken,
		})
		if err != nil {
			return "", fmt.Errorf("carousel item %d: %w", ref.DisplayOrder, err)
		}
		children = append(children, childID)
	}

	return a.createContainer(ctx, accountID, map[string]interface{}{
		"media_type":   "CAROUSEL",
		"children":     strings.Join(children, ","),
		"caption":      caption,
		"access_token": accessToken,
	})
}

func (a *InstagramAdapter) createContainer(ctx context.Context, accountID string, payload map[string]interface{}) (string, error) {
	return a.postGraph(ctx, fmt.Sprintf("%s/%s/media", graphBaseURL, accountID), payload)
}

func (a *InstagramAdapter) publishContainer(ctx context.Context, accountID, creationID, accessToken string) (string, error) {
	return a.postGraph(ctx, fmt.Sprintf("%s/%s/media_publish", graphBaseURL, accountID), map[string]interface{}{
		"creation_id":  creationID,
		"access_token": accessToken,
	})
}

func (a *InstagramAdapter) postGraph(ctx context.Context, url string, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", &PublishError{Message: err.Error(), Recoverable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &PublishError{Message: err.Error(), Recoverable: true}
	}

	if resp.StatusCode != http.StatusOK {
		var graphErr transfer.GraphErrorResponse
		if err := json.Unmarshal(respBody, &graphErr); err == nil && graphErr.Error.Message != "" {
			return "", &PublishError{
				Code:        graphErr.Error.Code,
				Message:     graphErr.Error.Message,
				Recoverable: graphErr.Error.IsTransient || resp.StatusCode == http.StatusTooManyRequests,
			}
		}
		return "", &PublishError{
			Code:        resp.StatusCode,
			Message:     fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Recoverable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var result transfer.GraphMediaResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &PublishError{Message: fmt.Sprintf("error parsing response: %v", err)}
	}
	if result.ID == "" {
		return "", &PublishError{Message: "no media ID returned from Instagram"}
	}

	return result.ID, nil
}
