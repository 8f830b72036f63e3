package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/unitedwerise/backend/internal/metrics"
)

// Article is a provider-neutral headline
type Article struct {
	Title       string
	Description string
	URL         string
	ImageURL    string
	Source      string
	Author      string
	PublishedAt time.Time
}

// Provider fetches headlines from one external news API
type Provider interface {
	Name() string
	Headlines(ctx context.Context, keyword string, limit int) ([]Article, error)
}

// NewsAPIClient talks to newsapi.org
type NewsAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewNewsAPIClient creates a newsapi.org provider. baseURL is overridable
// for tests; empty means production.
func NewNewsAPIClient(apiKey, baseURL string) *NewsAPIClient {
	if baseURL == "" {
		baseURL = "https://newsapi.org"
	}
	return &NewsAPIClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *NewsAPIClient) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string    `json:"author"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		URLToImage  string    `json:"urlToImage"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (c *NewsAPIClient) Headlines(ctx context.Context, keyword string, limit int) ([]Article, error) {
	params := url.Values{}
	params.Set("q", keyword)
	params.Set("pageSize", strconv.Itoa(limit))
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v2/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	var reply newsAPIResponse
	if err := doJSON(c.httpClient, req, c.Name(), &reply); err != nil {
		return nil, err
	}
	if reply.Status != "ok" {
		return nil, fmt.Errorf("newsapi error: %s", reply.Message)
	}

	articles := make([]Article, 0, len(reply.Articles))
	for _, a := range reply.Articles {
		articles = append(articles, Article{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			ImageURL:    a.URLToImage,
			Source:      a.Source.Name,
			Author:      a.Author,
			PublishedAt: a.PublishedAt,
		})
	}
	return articles, nil
}

// TheNewsAPIClient talks to thenewsapi.com
type TheNewsAPIClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewTheNewsAPIClient creates a thenewsapi.com provider
func NewTheNewsAPIClient(apiToken, baseURL string) *TheNewsAPIClient {
	if baseURL == "" {
		baseURL = "https://api.thenewsapi.com"
	}
	return &TheNewsAPIClient{
		baseURL:    baseURL,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *TheNewsAPIClient) Name() string { return "thenewsapi" }

type theNewsAPIResponse struct {
	Data []struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		ImageURL    string    `json:"image_url"`
		Source      string    `json:"source"`
		PublishedAt time.Time `json:"published_at"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *TheNewsAPIClient) Headlines(ctx context.Context, keyword string, limit int) ([]Article, error) {
	params := url.Values{}
	params.Set("api_token", c.apiToken)
	params.Set("search", keyword)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/news/all?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var reply theNewsAPIResponse
	if err := doJSON(c.httpClient, req, c.Name(), &reply); err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("thenewsapi error: %s", reply.Error.Message)
	}

	articles := make([]Article, 0, len(reply.Data))
	for _, a := range reply.Data {
		articles = append(articles, Article{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			ImageURL:    a.ImageURL,
			Source:      a.Source,
			PublishedAt: a.PublishedAt,
		})
	}
	return articles, nil
}

// doJSON executes a request, records external API metrics, and decodes the
// body into dest
func doJSON(client *http.Client, req *http.Request, service string, dest interface{}) error {
	start := time.Now()
	resp, err := client.Do(req)
	m := metrics.Get()
	m.ExternalRequestDuration.WithLabelValues(service, "headlines").Observe(time.Since(start).Seconds())
	if err != nil {
		m.ExternalRequestsTotal.WithLabelValues(service, "headlines", "error").Inc()
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	defer resp.Body.Close()

	m.ExternalRequestsTotal.WithLabelValues(service, "headlines", strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned status %d", service, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%s response decode failed: %w", service, err)
	}
	return nil
}
