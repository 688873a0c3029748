package playground

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/go-json-experiment/json"
)

var (
	gistURL    = regexp.MustCompile(`^(https?://)?gist\.github\.com/([^/ ]+/)?(?P<id>[0-9a-f]+)/?$`)
	rawGistURL = regexp.MustCompile(`^(https?://)?gist\.githubusercontent\.com/[^/ ]+/[0-9a-f]+/raw(/.*)?`)
)

// ErrNoRustFile is returned when a gist has no Rust source file.
var ErrNoRustFile = errors.New("no .rs file found in the gist")

// IsGistURL reports whether s is a link to a gist or to a raw gist file.
func IsGistURL(s string) bool {
	return rawGistURL.MatchString(s) || gistURL.MatchString(s)
}

// FetchGist downloads the code linked by a gist URL.
// Raw file links are fetched directly. Links to whole gists use the first
// file, in name order, whose name ends in .rs.
func (c *Client) FetchGist(ctx context.Context, link string) (string, error) {
	link = strings.TrimSpace(link)
	if rawGistURL.MatchString(link) {
		if !strings.Contains(link, "://") {
			link = "https://" + link
		}
		b, err := c.fetch(ctx, "GET", link, nil)
		if err != nil {
			return "", fmt.Errorf("couldn't fetch raw gist: %w", err)
		}
		return string(b), nil
	}
	m := gistURL.FindStringSubmatch(link)
	if m == nil {
		return "", fmt.Errorf("not a gist url: %q", link)
	}
	id := m[gistURL.SubexpIndex("id")]
	u, err := url.JoinPath(cmp.Or(c.GistAPI, DefaultGistAPI), "gists", id)
	if err != nil {
		return "", fmt.Errorf("couldn't make gist url: %w", err)
	}
	b, err := c.fetch(ctx, "GET", u, nil)
	if err != nil {
		return "", fmt.Errorf("couldn't fetch gist %s: %w", id, err)
	}
	var g struct {
		Files map[string]struct {
			Filename string `json:"filename"`
			Content  string `json:"content"`
		} `json:"files"`
	}
	if err := json.Unmarshal(b, &g); err != nil {
		return "", fmt.Errorf("couldn't decode gist %s: %w", id, err)
	}
	for _, k := range slices.Sorted(maps.Keys(g.Files)) {
		if f := g.Files[k]; strings.HasSuffix(f.Filename, ".rs") {
			return f.Content, nil
		}
	}
	return "", fmt.Errorf("couldn't use gist %s: %w", id, ErrNoRustFile)
}
