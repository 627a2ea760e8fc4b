package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cdwc233/WeChat-official-account-management/internal/config"
	"github.com/cdwc233/WeChat-official-account-management/internal/models"
)

const apiBaseURL = "https://api.weixin.qq.com"

// DraftClient pushes publish records into the official-account draft box
// through the app-credential API (separate from the admin-session cookie
// used for crawling).
type DraftClient struct {
	logger    *zap.Logger
	client    *http.Client
	appID     string
	appSecret string
	staticDir string
}

func NewDraftClient(cfg *config.WeChatConfig, staticDir string, logger *zap.Logger) *DraftClient {
	return &DraftClient{
		logger:    logger,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		staticDir: staticDir,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

type draftArticle struct {
	Title            string `json:"title"`
	Digest           string `json:"digest"`
	Content          string `json:"content"`
	ContentSourceURL string `json:"content_source_url"`
	ThumbMediaID     string `json:"thumb_media_id,omitempty"`
	ShowCoverPic     int    `json:"show_cover_pic"`
}

type draftAddRequest struct {
	Articles []draftArticle `json:"articles"`
}

type draftAddResponse struct {
	MediaID string `json:"media_id"`
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type materialAddResponse struct {
	MediaID string `json:"media_id"`
	URL     string `json:"url"`
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// PushDraft uploads the cover (when one is set and readable) and creates the
// draft. Returns the platform-assigned media id.
func (d *DraftClient) PushDraft(ctx context.Context, rec *models.PublishArticle) (string, error) {
	if d.appID == "" || d.appSecret == "" {
		return "", fmt.Errorf("wechat app credentials are not configured")
	}

	token, err := d.getAccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}

	article := draftArticle{
		Title:            rec.Title,
		Content:          rec.ContentHTML,
		ContentSourceURL: rec.SourceURL,
		ShowCoverPic:     1,
	}

	if rec.CoverURL != "" {
		thumbID, err := d.uploadThumb(ctx, token, rec.CoverURL)
		if err != nil {
			d.logger.Warn("Cover upload failed, creating draft without thumbnail",
				zap.Uint("pid", rec.PID), zap.Error(err))
		} else {
			article.ThumbMediaID = thumbID
		}
	}

	return d.addDraft(ctx, token, draftAddRequest{Articles: []draftArticle{article}})
}

func (d *DraftClient) getAccessToken(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/cgi-bin/token?grant_type=client_credential&appid=%s&secret=%s",
		apiBaseURL, d.appID, d.appSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var tokenResp accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	if tokenResp.ErrCode != 0 {
		return "", fmt.Errorf("wechat api error %d: %s", tokenResp.ErrCode, tokenResp.ErrMsg)
	}
	return tokenResp.AccessToken, nil
}

// uploadThumb sends a local cover file to the permanent material store and
// returns the media id usable as a draft thumbnail. Covers stored under the
// "/static/" URL prefix are resolved against the configured static directory.
func (d *DraftClient) uploadThumb(ctx context.Context, token, coverPath string) (string, error) {
	if rest, ok := strings.CutPrefix(coverPath, "/static/"); ok {
		coverPath = filepath.Join(d.staticDir, rest)
	}
	data, err := os.ReadFile(coverPath)
	if err != nil {
		return "", fmt.Errorf("failed to read cover %s: %w", coverPath, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("media", filepath.Base(coverPath))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/cgi-bin/material/add_material?access_token=%s&type=image",
		apiBaseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var materialResp materialAddResponse
	if err := json.NewDecoder(resp.Body).Decode(&materialResp); err != nil {
		return "", err
	}
	if materialResp.ErrCode != 0 {
		return "", fmt.Errorf("wechat material api error %d: %s", materialResp.ErrCode, materialResp.ErrMsg)
	}
	return materialResp.MediaID, nil
}

func (d *DraftClient) addDraft(ctx context.Context, token string, draft draftAddRequest) (string, error) {
	payload, err := json.Marshal(draft)
	if err != nil {
		return "", fmt.Errorf("failed to marshal draft request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/cgi-bin/draft/add?access_token=%s", apiBaseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send draft request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read draft response: %w", err)
	}

	var draftResp draftAddResponse
	if err := json.Unmarshal(body, &draftResp); err != nil {
		return "", fmt.Errorf("failed to parse draft response: %w", err)
	}
	if draftResp.ErrCode != 0 {
		return "", fmt.Errorf("wechat draft api error %d: %s", draftResp.ErrCode, draftResp.ErrMsg)
	}
	return draftResp.MediaID, nil
}
