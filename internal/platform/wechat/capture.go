package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cdwc233/WeChat-official-account-management/internal/config"
	"github.com/cdwc233/WeChat-official-account-management/internal/service"
)

const (
	captureTimeout  = 3 * time.Minute
	askPollInterval = 2 * time.Second
)

// QRLoginCapturer drives the scan-to-login flow of the admin platform: it
// starts a login session, downloads the QR image into the static dir, fires
// the artifact callback, then polls until the code is scanned and confirmed
// and harvests the session cookie and csrf token.
type QRLoginCapturer struct {
	logger    *zap.Logger
	baseURL   string
	staticDir string
}

func NewQRLoginCapturer(cfg *config.WeChatConfig, staticDir string, logger *zap.Logger) *QRLoginCapturer {
	return &QRLoginCapturer{
		logger:    logger,
		baseURL:   cfg.BaseURL,
		staticDir: staticDir,
	}
}

type loginResponse struct {
	BaseResp    baseResp `json:"base_resp"`
	RedirectURL string   `json:"redirect_url"`
}

type askResponse struct {
	BaseResp baseResp `json:"base_resp"`
	Status   int      `json:"status"`
}

// Capture runs the whole interactive login. It blocks until the login
// completes, fails, or the capture deadline passes; it does not honor
// poller-side cancellation by design.
func (q *QRLoginCapturer) Capture(ctx context.Context, onArtifact func(qrPath string)) (*service.Credential, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: 30 * time.Second}

	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	if err := q.startLogin(ctx, client); err != nil {
		return nil, err
	}

	qrPath, err := q.downloadQRCode(ctx, client)
	if err != nil {
		return nil, err
	}
	if onArtifact != nil {
		onArtifact(qrPath)
	}

	if err := q.waitForScan(ctx, client); err != nil {
		return nil, err
	}

	token, err := q.finishLogin(ctx, client)
	if err != nil {
		return nil, err
	}

	cookie := q.cookieHeader(jar)
	if cookie == "" {
		return nil, fmt.Errorf("login finished but no session cookie was set")
	}

	q.logger.Info("Login capture completed")
	return &service.Credential{Cookie: cookie, Token: token}, nil
}

func (q *QRLoginCapturer) startLogin(ctx context.Context, client *http.Client) error {
	form := url.Values{}
	form.Set("action", "startlogin")
	form.Set("userlang", "zh_CN")
	form.Set("login_type", "3")

	endpoint := q.baseURL + "/cgi-bin/bizlogin?action=startlogin"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create startlogin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", q.baseURL)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("startlogin returned status %d", resp.StatusCode)
	}
	return nil
}

func (q *QRLoginCapturer) downloadQRCode(ctx context.Context, client *http.Client) (string, error) {
	endpoint := fmt.Sprintf("%s/cgi-bin/scanloginqrcode?action=getqrcode&random=%d",
		q.baseURL, time.Now().UnixMilli())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create qrcode request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch qr code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("qrcode endpoint returned status %d", resp.StatusCode)
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read qr code: %w", err)
	}

	dir := filepath.Join(q.staticDir, "qr")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create qr dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("login_%s.png", uuid.NewString()))
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write qr code: %w", err)
	}
	return path, nil
}

// waitForScan polls the scan status until the operator confirms on their
// phone. Status 1 is confirmed, 4 is scanned-but-unconfirmed, anything past
// the deadline or an expired code is an error.
func (q *QRLoginCapturer) waitForScan(ctx context.Context, client *http.Client) error {
	endpoint := q.baseURL + "/cgi-bin/scanloginqrcode?action=ask&token=&lang=zh_CN&f=json&ajax=1"

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("login not confirmed before deadline: %w", ctx.Err())
		case <-time.After(askPollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create ask request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to poll scan status: %w", err)
		}

		var ask askResponse
		err = json.NewDecoder(resp.Body).Decode(&ask)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode scan status: %w", err)
		}

		switch ask.Status {
		case 1:
			return nil
		case 2, 3:
			return fmt.Errorf("qr code expired or login rejected (status=%d)", ask.Status)
		case 4:
			q.logger.Info("QR code scanned, waiting for confirmation")
		}
	}
}

func (q *QRLoginCapturer) finishLogin(ctx context.Context, client *http.Client) (string, error) {
	form := url.Values{}
	form.Set("userlang", "zh_CN")
	form.Set("token", "")
	form.Set("lang", "zh_CN")
	form.Set("f", "json")
	form.Set("ajax", "1")

	endpoint := q.baseURL + "/cgi-bin/bizlogin?action=login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", q.baseURL)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to finish login: %w", err)
	}
	defer resp.Body.Close()

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if login.BaseResp.Ret != 0 {
		return "", fmt.Errorf("login returned ret=%d: %s", login.BaseResp.Ret, login.BaseResp.ErrMsg)
	}

	redirect, err := url.Parse(login.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect url: %w", err)
	}
	token := redirect.Query().Get("token")
	if token == "" {
		return "", fmt.Errorf("redirect url %q carries no token", login.RedirectURL)
	}
	return token, nil
}

func (q *QRLoginCapturer) cookieHeader(jar http.CookieJar) string {
	base, err := url.Parse(q.baseURL)
	if err != nil {
		return ""
	}

	var parts []string
	for _, c := range jar.Cookies(base) {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
