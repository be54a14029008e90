// Package catalog is a client for the 2GIS Catalog API.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://catalog.api.2gis.com"

	// DefaultFields requests coordinates, address and rubrics for every item.
	DefaultFields = "items.point,items.address,items.rubrics"

	// MaxPage and MaxPageSize are the paging limits of the items endpoint.
	MaxPage     = 5
	MaxPageSize = 10
)

// Client performs 2GIS Catalog API operations.
type Client interface {
	SearchItems(ctx context.Context, params SearchParams) (*Page, error)
	ListRubrics(ctx context.Context, regionID string) ([]RubricEntry, error)
}

// SearchParams selects one page of the items endpoint. Exactly one of Query
// and RubricID is expected. Point1/Point2 bound the search to a rectangle;
// RegionID restricts it to a catalog region.
type SearchParams struct {
	Query    string
	RubricID string
	RegionID string
	Point1   string
	Point2   string
	Page     int
	PageSize int
}

// Page is one page of search results.
type Page struct {
	Total int    `json:"total"`
	Items []Item `json:"items"`
}

// Item is a catalog branch.
type Item struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AddressName string   `json:"address_name"`
	Address     *Address `json:"address,omitempty"`
	Point       *Point   `json:"point,omitempty"`
	Rubrics     []Rubric `json:"rubrics"`
	RegionID    string   `json:"region_id,omitempty"`
	Type        string   `json:"type,omitempty"`
}

// DisplayAddress returns the short address, falling back to the address object.
func (it Item) DisplayAddress() string {
	if it.AddressName != "" {
		return it.AddressName
	}
	if it.Address != nil {
		return it.Address.Name
	}
	return ""
}

// Address is the structured address of an item.
type Address struct {
	Name         string `json:"name"`
	BuildingName string `json:"building_name,omitempty"`
	Postcode     string `json:"postcode,omitempty"`
}

// Point is a WGS84 coordinate.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Rubric is a taxonomy entry attached to an item.
type Rubric struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Alias    string `json:"alias,omitempty"`
	Kind     string `json:"kind,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// RubricEntry is a row of the regional rubric catalog.
type RubricEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Alias    string `json:"alias"`
	ParentID string `json:"parent_id"`
	Type     string `json:"type"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithFields overrides the requested item fields.
func WithFields(fields string) Option {
	return func(c *httpClient) {
		c.fields = fields
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	fields  string
	http    *http.Client
}

// NewClient creates a 2GIS Catalog API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		fields:  DefaultFields,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type envelope struct {
	Meta struct {
		Code  int `json:"code"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"meta"`
	Result json.RawMessage `json:"result"`
}

// Validate checks the paging limits.
func (p SearchParams) Validate() error {
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return eris.Errorf("catalog: page_size must be 1..%d, got %d", MaxPageSize, p.PageSize)
	}
	if p.Page < 1 || p.Page > MaxPage {
		return eris.Errorf("catalog: page must be 1..%d, got %d", MaxPage, p.Page)
	}
	if p.Query == "" && p.RubricID == "" {
		return eris.New("catalog: query or rubric id is required")
	}
	return nil
}

func (c *httpClient) SearchItems(ctx context.Context, params SearchParams) (*Page, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	if params.Query != "" {
		q.Set("q", params.Query)
	}
	if params.RubricID != "" {
		q.Set("rubric_id", params.RubricID)
	}
	if params.RegionID != "" {
		q.Set("region_id", params.RegionID)
	}
	if params.Point1 != "" && params.Point2 != "" {
		q.Set("point1", params.Point1)
		q.Set("point2", params.Point2)
	}
	q.Set("type", "branch")
	q.Set("fields", c.fields)
	q.Set("page", strconv.Itoa(params.Page))
	q.Set("page_size", strconv.Itoa(params.PageSize))

	var page Page
	found, err := c.get(ctx, "/3.0/items", q, &page)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Page{}, nil
	}
	return &page, nil
}

func (c *httpClient) ListRubrics(ctx context.Context, regionID string) ([]RubricEntry, error) {
	if regionID == "" {
		return nil, eris.New("catalog: region id is required")
	}
	q := url.Values{}
	q.Set("region_id", regionID)

	var result struct {
		Total int           `json:"total"`
		Items []RubricEntry `json:"items"`
	}
	if _, err := c.get(ctx, "/3.0/rubricate/list", q, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

// get performs a request and decodes the result section into out. It reports
// false when the API answers "not found", which the catalog uses for an
// empty result.
func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) (bool, error) {
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return false, eris.Wrap(err, "catalog: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, newError(KindTransport, 0, "", eris.Wrap(err, "catalog: send request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, newError(KindTransport, resp.StatusCode, "", eris.Wrap(err, "catalog: read response"))
	}

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, newError(KindHTTPStatus, resp.StatusCode, truncate(body),
			eris.Errorf("catalog: unexpected status %d: %s", resp.StatusCode, truncate(body)))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false, newError(KindMalformed, resp.StatusCode, truncate(body), eris.Wrap(err, "catalog: unmarshal response"))
	}

	switch env.Meta.Code {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		msg := "unknown error"
		if env.Meta.Error != nil && env.Meta.Error.Message != "" {
			msg = env.Meta.Error.Message
		}
		return false, newError(KindAPI, env.Meta.Code, truncate(body),
			eris.Errorf("catalog: api error %d: %s", env.Meta.Code, msg))
	}

	if len(env.Result) == 0 || string(env.Result) == "null" {
		return true, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return false, newError(KindMalformed, resp.StatusCode, truncate(body), eris.Wrap(err, "catalog: unmarshal result"))
	}
	return true, nil
}

const maxBodyExcerpt = 512

func truncate(body []byte) string {
	if len(body) <= maxBodyExcerpt {
		return string(body)
	}
	return string(body[:maxBodyExcerpt]) + "..."
}
