// Package playground runs Rust code on the Rust playground.
package playground

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-json-experiment/json"
)

// Channel is a Rust release channel.
type Channel string

const (
	Stable  Channel = "stable"
	Beta    Channel = "beta"
	Nightly Channel = "nightly"
)

// Mode is a compilation profile.
type Mode string

const (
	Debug   Mode = "debug"
	Release Mode = "release"
)

// CrateType selects whether code is built as a binary or a library.
type CrateType string

const (
	Bin CrateType = "bin"
	Lib CrateType = "lib"
)

// Request is a request to execute code.
type Request struct {
	Channel   Channel   `json:"channel"`
	Mode      Mode      `json:"mode"`
	Edition   string    `json:"edition,omitempty"`
	CrateType CrateType `json:"crateType"`
	Tests     bool      `json:"tests"`
	Backtrace bool      `json:"backtrace"`
	Code      string    `json:"code"`
}

// NewRequest creates a request with the default settings: a stable debug
// build of a 2018 edition binary.
func NewRequest(code string) Request {
	return Request{
		Channel:   Stable,
		Mode:      Debug,
		Edition:   "2018",
		CrateType: Bin,
		Code:      code,
	}
}

// Response is the result of executing code.
type Response struct {
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Success bool   `json:"success"`
}

// Version describes the compiler on a channel.
type Version struct {
	Version string `json:"version"`
	Hash    string `json:"hash"`
	Date    string `json:"date"`
}

const (
	// DefaultAPI is the playground's root.
	DefaultAPI = "https://play.rust-lang.org/"
	// DefaultGistAPI is the GitHub API root used to fetch gists.
	DefaultGistAPI = "https://api.github.com/"
)

// Client holds the context for requests to the playground.
type Client struct {
	// HTTP is the HTTP client for performing requests.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
	// API is the playground root. If empty, DefaultAPI is used.
	API string
	// GistAPI is the GitHub API root. If empty, DefaultGistAPI is used.
	GistAPI string
	// Agent is the User-Agent for requests.
	Agent string
}

// Execute compiles and runs code.
func (c *Client) Execute(ctx context.Context, req Request) (Response, error) {
	var r Response
	if err := c.reqjson(ctx, "POST", c.endpoint("execute"), &req, &r); err != nil {
		return Response{}, fmt.Errorf("couldn't execute code: %w", err)
	}
	return r, nil
}

// Paste saves text as a playground gist and returns a link to open it.
func (c *Client) Paste(ctx context.Context, text string, channel Channel, mode Mode) (string, error) {
	req := struct {
		Code string `json:"code"`
	}{text}
	var r struct {
		ID string `json:"id"`
	}
	if err := c.reqjson(ctx, "POST", c.endpoint("meta/gist/"), &req, &r); err != nil {
		return "", fmt.Errorf("couldn't paste: %w", err)
	}
	u := fmt.Sprintf("%s?gist=%s&version=%s&mode=%s", c.endpoint(""), url.QueryEscape(r.ID), channel, mode)
	return u, nil
}

// Version gets the compiler version on a channel.
func (c *Client) Version(ctx context.Context, channel Channel) (Version, error) {
	var r Version
	if err := c.reqjson(ctx, "GET", c.endpoint("meta/version/"+string(channel)), nil, &r); err != nil {
		return Version{}, fmt.Errorf("couldn't get version: %w", err)
	}
	return r, nil
}

func (c *Client) endpoint(ep string) string {
	u, err := url.JoinPath(cmp.Or(c.API, DefaultAPI), ep)
	if err != nil {
		panic("playground: bad url join with " + ep)
	}
	return u
}

// reqjson performs an HTTP request with an optional JSON body and decodes
// the response as JSON.
func (c *Client) reqjson(ctx context.Context, method, url string, body, u any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			// should never happen
			panic(err)
		}
		rd = bytes.NewReader(b)
	}
	b, err := c.fetch(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, u); err != nil {
		return fmt.Errorf("couldn't decode JSON response: %w", err)
	}
	return nil
}

// fetch performs an HTTP request and returns the response body.
// The response body is truncated to 2 MB.
func (c *Client) fetch(ctx context.Context, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("couldn't make request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Agent != "" {
		req.Header.Set("User-Agent", c.Agent)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't %s: %w", method, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("couldn't read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed: %s (%s)", b, resp.Status)
	}
	return b, nil
}
