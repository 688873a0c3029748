// Package cratesio looks up crate metadata from the crates.io API.
package cratesio

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-json-experiment/json"
)

// Crate is the metadata of a published crate.
type Crate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxVersion  string `json:"max_version"`
}

// ErrNotFound is returned when crates.io has no crate with a given name.
var ErrNotFound = errors.New("crate not found")

// DefaultAPI is the crates.io API root.
const DefaultAPI = "https://crates.io/api/v1/"

// Client holds the context for requests to crates.io.
type Client struct {
	// HTTP is the HTTP client for performing requests.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
	// API is the API root. If empty, DefaultAPI is used.
	API string
	// Agent is the User-Agent for requests.
	// crates.io refuses requests without one.
	Agent string
	// Cache holds recently fetched crates. It may be nil.
	Cache *Cache
}

// Crate fetches the metadata for the named crate.
func (c *Client) Crate(ctx context.Context, name string) (Crate, error) {
	if c.Cache != nil {
		cr, ok, err := c.Cache.Get(name)
		if err != nil {
			return Crate{}, fmt.Errorf("couldn't check cache for %s: %w", name, err)
		}
		if ok {
			return cr, nil
		}
	}
	u, err := url.JoinPath(cmp.Or(c.API, DefaultAPI), "crates", url.PathEscape(name))
	if err != nil {
		return Crate{}, fmt.Errorf("couldn't make url for crate %s: %w", name, err)
	}
	var r struct {
		Crate *Crate `json:"crate"`
	}
	if err := reqjson(ctx, c, u, &r); err != nil {
		return Crate{}, fmt.Errorf("couldn't get crate %s: %w", name, err)
	}
	if r.Crate == nil {
		return Crate{}, fmt.Errorf("couldn't get crate %s: %w", name, ErrNotFound)
	}
	if c.Cache != nil {
		if err := c.Cache.Put(name, *r.Crate); err != nil {
			slog.WarnContext(ctx, "couldn't cache crate", slog.String("crate", name), slog.Any("err", err))
		}
	}
	return *r.Crate, nil
}

// reqjson performs a GET request and decodes the response as JSON.
// The response body is truncated to 2 MB.
func reqjson[Resp any](ctx context.Context, client *Client, url string, u *Resp) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("couldn't make request: %w", err)
	}
	req.Header.Set("User-Agent", client.Agent)
	req.Header.Set("Accept", "application/json")
	hc := client.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("couldn't GET: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return fmt.Errorf("couldn't read response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK: // do nothing
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("request failed: %s (%s)", b, resp.Status)
	}
	if err := json.Unmarshal(b, u); err != nil {
		return fmt.Errorf("couldn't decode JSON response: %w", err)
	}
	return nil
}
