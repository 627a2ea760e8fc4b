package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cdwc233/WeChat-official-account-management/internal/config"
)

const summaryPrompt = "You write concise editorial summaries. Summarize the " +
	"following article in at most three sentences, keeping the language of the original."

// EnrichmentService generates AI assets (summary, cover image) for an
// article through an OpenAI-compatible API. Failures never mutate any store:
// the caller decides what to do with the generated asset.
type EnrichmentService struct {
	cfg    *config.AIConfig
	logger *zap.Logger
	client *http.Client
}

func NewEnrichmentService(cfg *config.AIConfig, logger *zap.Logger) *EnrichmentService {
	return &EnrichmentService{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateSummary asks the model for a short summary of the content.
func (s *EnrichmentService) GenerateSummary(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if s.cfg.APIKey == "" {
		return "", &ValidationError{Field: "ai.api_key", Reason: "not configured"}
	}

	body, err := json.Marshal(map[string]any{
		"model": s.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": summaryPrompt},
			{"role": "user", "content": content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create summary request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &UpstreamError{Op: "generate summary", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &UpstreamError{
			Op:  "generate summary",
			Err: fmt.Errorf("api returned %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", &UpstreamError{Op: "generate summary", Err: fmt.Errorf("decode response: %w", err)}
	}
	if completion.Error != nil {
		return "", &UpstreamError{Op: "generate summary", Err: fmt.Errorf("%s", completion.Error.Message)}
	}
	if len(completion.Choices) == 0 {
		return "", &UpstreamError{Op: "generate summary", Err: fmt.Errorf("empty completion")}
	}

	summary := strings.TrimSpace(completion.Choices[0].Message.Content)
	s.logger.Info("Summary generated", zap.Int("length", len(summary)))
	return summary, nil
}

type imageGenerationResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateCover renders a cover image for the title and writes it to
// destPath, overwriting a previous cover. Returns the written path.
func (s *EnrichmentService) GenerateCover(ctx context.Context, title, destPath string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if s.cfg.APIKey == "" {
		return "", &ValidationError{Field: "ai.api_key", Reason: "not configured"}
	}

	body, err := json.Marshal(map[string]any{
		"model":  s.cfg.ImageModel,
		"prompt": fmt.Sprintf("A clean magazine-style cover illustration for an article titled %q, no text", title),
		"n":      1,
		"size":   "1024x576",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cover request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ImageEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create cover request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &UpstreamError{Op: "generate cover", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &UpstreamError{
			Op:  "generate cover",
			Err: fmt.Errorf("api returned %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}

	var generation imageGenerationResponse
	if err := json.NewDecoder(resp.Body).Decode(&generation); err != nil {
		return "", &UpstreamError{Op: "generate cover", Err: fmt.Errorf("decode response: %w", err)}
	}
	if generation.Error != nil {
		return "", &UpstreamError{Op: "generate cover", Err: fmt.Errorf("%s", generation.Error.Message)}
	}
	if len(generation.Data) == 0 {
		return "", &UpstreamError{Op: "generate cover", Err: fmt.Errorf("empty image response")}
	}

	image, err := s.fetchImageBytes(ctx, generation.Data[0].URL, generation.Data[0].B64JSON)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cover dir: %w", err)
	}
	if err := os.WriteFile(destPath, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cover: %w", err)
	}

	s.logger.Info("Cover generated", zap.String("path", destPath))
	return destPath, nil
}

func (s *EnrichmentService) fetchImageBytes(ctx context.Context, url, b64 string) ([]byte, error) {
	if b64 != "" {
		image, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, &UpstreamError{Op: "decode cover", Err: err}
		}
		return image, nil
	}
	if url == "" {
		return nil, &UpstreamError{Op: "download cover", Err: fmt.Errorf("no image url in response")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: "download cover", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Op: "download cover", Err: fmt.Errorf("image host returned %s", resp.Status)}
	}
	return io.ReadAll(resp.Body)
}
