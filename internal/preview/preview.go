// Package preview inspects the page a project serves, both from the file
// tree before it is mounted and from the running dev server.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"sitesmith/internal/filetree"
)

// ErrNoIndex is returned when the tree has no index.html to inspect.
var ErrNoIndex = errors.New("preview: no index.html in tree")

// indexCandidates are checked in order.
var indexCandidates = []string{"index.html", "public/index.html"}

// Page summarises an HTML document.
type Page struct {
	Source      string   `json:"source"`
	Status      int      `json:"status,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Headings    []string `json:"headings,omitempty"`
	// Assets are local script and stylesheet references, normalised to tree paths.
	Assets    []string `json:"assets,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
}

// FromTree parses the project's index.html straight out of the tree.
func FromTree(tree *filetree.Tree) (Page, error) {
	for _, p := range indexCandidates {
		n := tree.Find(p)
		if n == nil || n.Kind != filetree.KindFile {
			continue
		}
		page, err := parse(strings.NewReader(n.Content))
		if err != nil {
			return Page{}, err
		}
		page.Source = p
		return page, nil
	}
	return Page{}, ErrNoIndex
}

// MissingAssets returns the local assets the page references that the tree
// does not contain.
func MissingAssets(tree *filetree.Tree, page Page) []string {
	var missing []string
	for _, a := range page.Assets {
		if n := tree.Find(a); n == nil && tree.Find(path.Join("public", a)) == nil {
			missing = append(missing, a)
		}
	}
	return missing
}

// Fetcher loads pages from a running dev server.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher returns a Fetcher with the given request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: 2 << 20, // 2MB
	}
}

// Fetch downloads rawURL and summarises it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Page{}, fmt.Errorf("preview: invalid url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", "sitesmith-preview/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	limited := &io.LimitedReader{R: resp.Body, N: f.maxBytes}
	body, err := io.ReadAll(limited)
	if err != nil {
		return Page{}, err
	}

	page, err := parse(bytes.NewReader(body))
	if err != nil {
		return Page{}, err
	}
	page.Source = resp.Request.URL.String()
	page.Status = resp.StatusCode
	page.Truncated = limited.N == 0
	return page, nil
}

func parse(r io.Reader) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	page := Page{
		Title:       normalizeWhitespace(doc.Find("title").First().Text()),
		Description: strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", "")),
	}
	doc.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		if text := normalizeWhitespace(sel.Text()); text != "" {
			page.Headings = append(page.Headings, text)
		}
	})

	seen := map[string]bool{}
	add := func(ref string) {
		if p, ok := localAsset(ref); ok && !seen[p] {
			seen[p] = true
			page.Assets = append(page.Assets, p)
		}
	}
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("src", ""))
	})
	doc.Find(`link[rel="stylesheet"][href], link[rel="icon"][href]`).Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("href", ""))
	})
	sort.Strings(page.Assets)
	return page, nil
}

// localAsset maps a same-origin reference to a tree path.
func localAsset(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "//") || strings.HasPrefix(ref, "data:") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	p, err := filetree.Clean(u.Path)
	if err != nil || p == "" {
		return "", false
	}
	return p, true
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
