// Package search discovers granules through the image-pair search API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/icefield/velocube/internal/errors"
	"github.com/icefield/velocube/internal/logging"
)

var log = logging.Component("search")

// Params are the query parameters of a granule search. The polygon is the
// lon/lat ring of the region of interest, flattened as lon1,lat1,lon2,lat2,...
type Params struct {
	Polygon      []float64
	Start        string
	End          string
	PercentValid int
}

// Client queries the search API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the API endpoint at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// granuleInfo is the subset of the API response consumed here. The API
// returns one object per matching image pair.
type granuleInfo struct {
	URL string `json:"url"`
}

// Find returns the URLs of every granule intersecting the polygon within
// the search window, in API order.
func (c *Client) Find(ctx context.Context, p Params) ([]string, error) {
	q := url.Values{}
	q.Set("polygon", joinFloats(p.Polygon))
	q.Set("start", p.Start)
	q.Set("end", p.End)
	q.Set("percent_valid_pixels", fmt.Sprintf("%d", p.PercentValid))

	endpoint := c.baseURL + "?" + q.Encode()
	log.Info("searching granules",
		"start", p.Start, "end", p.End, "percent_valid", p.PercentValid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build search request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "query search API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrInternal,
			"search API returned %s", resp.Status)
	}

	var granules []granuleInfo
	if err := json.NewDecoder(resp.Body).Decode(&granules); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}

	urls := make([]string, 0, len(granules))
	for _, g := range granules {
		urls = append(urls, g.URL)
	}

	log.Info("search complete", "granules", len(urls))
	return urls, nil
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, ",")
}
