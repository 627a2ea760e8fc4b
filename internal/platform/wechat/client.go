package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cdwc233/WeChat-official-account-management/internal/config"
	"github.com/cdwc233/WeChat-official-account-management/internal/models"
	"github.com/cdwc233/WeChat-official-account-management/internal/platform/extract"
	"github.com/cdwc233/WeChat-official-account-management/internal/service"
	"github.com/cdwc233/WeChat-official-account-management/pkg/util"
)

// Client talks to the WeChat admin platform with a captured session
// credential. It is the official-feed crawler and the session probe; the
// credential service swaps a refreshed credential in through SetCredential.
type Client struct {
	logger   *zap.Logger
	client   *http.Client
	baseURL  string
	pageSize int

	mu   sync.RWMutex
	cred service.Credential
}

func NewClient(cfg *config.WeChatConfig, logger *zap.Logger, pageSize int) *Client {
	return &Client{
		logger:   logger,
		baseURL:  cfg.BaseURL,
		pageSize: pageSize,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) SetCredential(cred service.Credential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}

func (c *Client) credential() service.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

func (c *Client) Origin() models.SourceType { return models.SourceOfficial }

type baseResp struct {
	Ret    int    `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

type appMsgItem struct {
	Title      string `json:"title"`
	Link       string `json:"link"`
	Cover      string `json:"cover"`
	Digest     string `json:"digest"`
	UpdateTime int64  `json:"update_time"`
}

type appMsgListResponse struct {
	BaseResp   baseResp     `json:"base_resp"`
	AppMsgList []appMsgItem `json:"app_msg_list"`
	AppMsgCnt  int          `json:"app_msg_cnt"`
}

// FetchAll lists the newest published posts of the account and pulls each
// article body. Per-item fetch failures are reported in the result slice;
// only a failed listing aborts the run.
func (c *Client) FetchAll(ctx context.Context, delay time.Duration) ([]service.FetchResult, error) {
	cred := c.credential()
	if cred.Cookie == "" || cred.Token == "" {
		return nil, fmt.Errorf("no credential available, refresh the session first")
	}

	items, err := c.listPublished(ctx, cred)
	if err != nil {
		return nil, err
	}

	results := make([]service.FetchResult, 0, len(items))
	for i, item := range items {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(delay):
			}
		}

		doc, err := c.fetchArticle(ctx, cred, item)
		results = append(results, service.FetchResult{Doc: doc, Err: err})
	}

	return results, nil
}

func (c *Client) listPublished(ctx context.Context, cred service.Credential) ([]appMsgItem, error) {
	resp, err := c.queryAppMsgList(ctx, cred, c.pageSize)
	if err != nil {
		return nil, err
	}
	if resp.BaseResp.Ret != 0 {
		return nil, fmt.Errorf("appmsg list returned ret=%d: %s", resp.BaseResp.Ret, resp.BaseResp.ErrMsg)
	}
	return resp.AppMsgList, nil
}

func (c *Client) queryAppMsgList(ctx context.Context, cred service.Credential, count int) (*appMsgListResponse, error) {
	q := url.Values{}
	q.Set("action", "list_ex")
	q.Set("begin", "0")
	q.Set("count", fmt.Sprintf("%d", count))
	q.Set("type", "9")
	q.Set("token", cred.Token)
	q.Set("lang", "zh_CN")
	q.Set("f", "json")
	q.Set("ajax", "1")

	endpoint := fmt.Sprintf("%s/cgi-bin/appmsg?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	req.Header.Set("Cookie", cred.Cookie)
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query appmsg list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("appmsg list returned status %d: %s", resp.StatusCode, string(body))
	}

	var listResp appMsgListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("failed to decode appmsg list: %w", err)
	}
	return &listResp, nil
}

func (c *Client) fetchArticle(ctx context.Context, cred service.Credential, item appMsgItem) (*service.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.Link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create article request: %w", err)
	}
	req.Header.Set("Cookie", cred.Cookie)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article %s: %w", item.Link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article %s returned status %d", item.Link, resp.StatusCode)
	}

	rawHTML, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read article %s: %w", item.Link, err)
	}

	markdown, err := c.extractContent(string(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to extract article %s: %w", item.Link, err)
	}

	return &service.Document{
		SourceKey: util.SourceKeyFromURL(item.Link),
		URL:       item.Link,
		Title:     item.Title,
		Content:   markdown,
		CoverURL:  item.Cover,
		RawHTML:   string(rawHTML),
	}, nil
}

// extractContent pulls the js_content body out of a rendered article page
// and reduces it to markdown.
func (c *Client) extractContent(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	content := doc.Find("#js_content")
	if content.Length() == 0 {
		return "", fmt.Errorf("page has no js_content node")
	}

	fragment, err := content.Html()
	if err != nil {
		return "", err
	}
	return extract.MarkdownFromHTML(fragment)
}

// CheckSession probes the admin platform with a one-item listing. A non-zero
// ret means the cookie or token is stale.
func (c *Client) CheckSession(ctx context.Context, cred service.Credential) (bool, string) {
	if cred.Cookie == "" || cred.Token == "" {
		return false, "no credential configured"
	}

	resp, err := c.queryAppMsgList(ctx, cred, 1)
	if err != nil {
		return false, fmt.Sprintf("probe failed: %v", err)
	}
	if resp.BaseResp.Ret != 0 {
		return false, fmt.Sprintf("session rejected: ret=%d %s", resp.BaseResp.Ret, resp.BaseResp.ErrMsg)
	}
	return true, "session valid"
}
