package dmzj

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	apiBaseURL    = "https://api.dmzj.com"
	mobileBaseURL = "https://m.dmzj.com"

	imageReferer   = "http://images.muwai.com/"
	imageUserAgent = "%E5%8A%A8%E6%BC%AB%E4%B9%8B%E5%AE%B6%E7%A4%BE%E5%8C%BA/27 CFNetwork/1329 Darwin/21.3.0"

	rateLimit = 10
	rateBurst = 20
)

// Client talks to the dmzj comic and chapter endpoints.
type Client struct {
	apiBaseURL    string
	mobileBaseURL string
	httpClient    *http.Client
	rateLimiter   *rate.Limiter
}

// NewClient creates a client against the public dmzj hosts.
func NewClient() *Client {
	return NewClientWithBase(apiBaseURL, mobileBaseURL)
}

// NewClientWithBase creates a client against custom hosts.
func NewClientWithBase(apiBase, mobileBase string) *Client {
	return &Client{
		apiBaseURL:    apiBase,
		mobileBaseURL: mobileBase,
		rateLimiter:   rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SearchComic fetches the title and chapter list of one comic.
func (c *Client) SearchComic(ctx context.Context, comicID string) (*ComicInfo, error) {
	var resp comicResponse
	endpoint := fmt.Sprintf("%s/dynamic/comicinfo/%s.json", c.apiBaseURL, comicID)
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch comic %s: %w", comicID, err)
	}
	return resp.toComicInfo(), nil
}

// SearchChapter fetches the page URLs of one chapter.
func (c *Client) SearchChapter(ctx context.Context, comicID, chapterID string) (*ChapterInfo, error) {
	var resp chapterResponse
	endpoint := fmt.Sprintf("%s/chapinfo/%s/%s.html", c.mobileBaseURL, comicID, chapterID)
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch chapter %s:%s: %w", comicID, chapterID, err)
	}
	return &ChapterInfo{Pages: resp.PageURL}, nil
}

// DownloadImage streams one page image into w. The image host rejects
// requests without the app's referer and user agent.
func (c *Client) DownloadImage(ctx context.Context, imageURL string, w io.Writer) error {
	resp, err := c.do(ctx, imageURL, func(req *http.Request) {
		req.Header.Set("Referer", imageReferer)
		req.Header.Set("User-Agent", imageUserAgent)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	resp, err := c.do(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// do performs a rate-limited GET and rejects non-200 answers.
func (c *Client) do(ctx context.Context, endpoint string, decorate func(*http.Request)) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if decorate != nil {
		decorate(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
	return resp, nil
}
