package mangadex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	baseURL = "https://api.mangadex.org"

	// Rate limiting: MangaDex allows 5 requests per second
	rateLimit = 5
	rateBurst = 10

	feedPageSize = 100
	userAgent    = "Comik/1.0"
)

// MangaDexClient handles API requests with rate limiting
type MangaDexClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a new MangaDex API client
func NewClient() *MangaDexClient {
	return NewClientWithBase(baseURL)
}

// NewClientWithBase creates a client against a custom API host
func NewClientWithBase(base string) *MangaDexClient {
	return &MangaDexClient{
		baseURL:     base,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// GetManga fetches a single manga by ID
func (c *MangaDexClient) GetManga(ctx context.Context, mangaID string) (*MangaResponse, error) {
	var response MangaResponse
	if err := c.doRequest(ctx, c.baseURL+"/manga/"+mangaID, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch manga: %w", err)
	}
	return &response, nil
}

// GetMangaFeed fetches every chapter of a manga in one language, walking
// the feed's pagination in ascending chapter order
func (c *MangaDexClient) GetMangaFeed(ctx context.Context, mangaID, language string) ([]ChapterData, error) {
	endpoint := fmt.Sprintf("%s/manga/%s/feed", c.baseURL, mangaID)

	var chapters []ChapterData
	offset := 0
	for {
		params := BuildChapterQueryParams(feedPageSize, offset, language)

		var response ChapterListResponse
		if err := c.doRequest(ctx, endpoint, params, &response); err != nil {
			return nil, fmt.Errorf("failed to fetch manga feed: %w", err)
		}
		chapters = append(chapters, response.Data...)
		offset += len(response.Data)

		if len(response.Data) == 0 || offset >= response.Total {
			return chapters, nil
		}
	}
}

// GetAtHomeServer resolves the image server and file names of a chapter
func (c *MangaDexClient) GetAtHomeServer(ctx context.Context, chapterID string) (*AtHomeResponse, error) {
	var response AtHomeResponse
	if err := c.doRequest(ctx, c.baseURL+"/at-home/server/"+chapterID, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch chapter server: %w", err)
	}
	return &response, nil
}

// DownloadImage streams one page image into w
func (c *MangaDexClient) DownloadImage(ctx context.Context, imageURL string, w io.Writer) error {
	resp, err := c.get(ctx, imageURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	return nil
}

// doRequest performs a rate-limited GET and decodes the JSON answer
func (c *MangaDexClient) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	fullURL := endpoint
	if params != nil {
		fullURL += "?" + params.Encode()
	}

	resp, err := c.get(ctx, fullURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *MangaDexClient) get(ctx context.Context, fullURL string) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bodyBytes)
	}
	return resp, nil
}

// BuildChapterQueryParams creates query parameters for one page of a chapter feed
func BuildChapterQueryParams(limit, offset int, language string) url.Values {
	params := url.Values{}
	params.Add("limit", strconv.Itoa(limit))
	params.Add("offset", strconv.Itoa(offset))
	params.Add("translatedLanguage[]", language)
	params.Add("order[chapter]", "asc")
	return params
}
