package devserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/five82/crawldeck/internal/crawlapi"
)

const (
	maxLinksToCheck   = 50
	linkCheckWorkers  = 8
	perRequestTimeout = 8 * time.Second
	maxBodyBytes      = 4 << 20
	crawlerUserAgent  = "crawlsim/0.1"
)

var reDoctype = regexp.MustCompile(`(?is)<!DOCTYPE\s+html(?:\s+PUBLIC\s+"([^"]*)"(?:\s+"([^"]*)")?)?[^>]*>`)

// Analyzer fetches a page and summarizes its structure.
type Analyzer struct {
	Client   *http.Client
	MaxLinks int // links checked for reachability; zero uses maxLinksToCheck
	Workers  int
}

// NewAnalyzer returns an Analyzer with bounded timeouts.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		Client:   &http.Client{Timeout: perRequestTimeout},
		MaxLinks: maxLinksToCheck,
		Workers:  linkCheckWorkers,
	}
}

// Analyze fetches target and reports its HTML version, title, heading counts,
// link counts, login form presence and broken links. Non-2xx pages fail.
func (a *Analyzer) Analyze(ctx context.Context, target string) (crawlapi.CrawlResult, error) {
	base, err := url.Parse(target)
	if err != nil {
		return crawlapi.CrawlResult{}, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return crawlapi.CrawlResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", crawlerUserAgent)
	resp, err := a.client().Do(req)
	if err != nil {
		return crawlapi.CrawlResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return crawlapi.CrawlResult{}, fmt.Errorf("non-OK status: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return crawlapi.CrawlResult{}, fmt.Errorf("read body: %w", err)
	}
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawlapi.CrawlResult{}, fmt.Errorf("parse error: %w", err)
	}

	result := crawlapi.CrawlResult{
		Title:        strings.TrimSpace(doc.Find("title").First().Text()),
		HTMLVersion:  detectHTMLVersion(body),
		HasLoginForm: hasLoginForm(doc),
	}
	counts := [6]*int{&result.H1Count, &result.H2Count, &result.H3Count, &result.H4Count, &result.H5Count, &result.H6Count}
	for level, dst := range counts {
		*dst = doc.Find(fmt.Sprintf("h%d", level+1)).Length()
	}

	links := collectLinks(doc, base)
	for _, l := range links {
		if sameHost(base, l) {
			result.InternalLinks++
		} else {
			result.ExternalLinks++
		}
	}
	result.BrokenLinks = a.checkLinks(ctx, links)
	result.InaccessibleLinks = len(result.BrokenLinks)
	return result, nil
}

func (a *Analyzer) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func collectLinks(doc *goquery.Document, base *url.URL) []*url.URL {
	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") {
			return
		}
		u, err := base.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		links = append(links, u)
	})
	return links
}

// hasLoginForm reports a form with a password input.
func hasLoginForm(doc *goquery.Document) bool {
	found := false
	doc.Find("form").EachWithBreak(func(_ int, f *goquery.Selection) bool {
		if f.Find(`input[type="password"]`).Length() > 0 {
			found = true
			return false
		}
		f.Find("input[name]").EachWithBreak(func(_ int, in *goquery.Selection) bool {
			name, _ := in.Attr("name")
			if strings.Contains(strings.ToLower(name), "password") {
				found = true
			}
			return !found
		})
		return !found
	})
	return found
}

func sameHost(a, b *url.URL) bool {
	trim := func(u *url.URL) string {
		return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}
	return trim(a) == trim(b)
}

// checkLinks probes up to MaxLinks unique links concurrently and returns the
// unreachable ones in input order.
func (a *Analyzer) checkLinks(ctx context.Context, links []*url.URL) []crawlapi.BrokenLink {
	limit := a.MaxLinks
	if limit <= 0 {
		limit = maxLinksToCheck
	}
	seen := make(map[string]struct{}, len(links))
	var unique []string
	for _, l := range links {
		key := l.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
		if len(unique) == limit {
			break
		}
	}
	if len(unique) == 0 {
		return []crawlapi.BrokenLink{}
	}

	workers := min(max(a.Workers, 1), len(unique))
	results := make([]*crawlapi.BrokenLink, len(unique))
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = a.checkLink(ctx, unique[i])
			}
		}()
	}
	for i := range unique {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	broken := []crawlapi.BrokenLink{}
	for _, r := range results {
		if r != nil {
			broken = append(broken, *r)
		}
	}
	return broken
}

// checkLink returns nil when link answers with a status below 400. HEAD is
// tried first and GET is used when HEAD is rejected.
func (a *Analyzer) checkLink(ctx context.Context, link string) *crawlapi.BrokenLink {
	status, err := a.probe(ctx, http.MethodHead, link)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = a.probe(ctx, http.MethodGet, link)
	}
	switch {
	case err != nil:
		return &crawlapi.BrokenLink{URL: link, ErrorMessage: err.Error()}
	case status >= 400:
		return &crawlapi.BrokenLink{URL: link, StatusCode: status, ErrorMessage: http.StatusText(status)}
	}
	return nil
}

func (a *Analyzer) probe(ctx context.Context, method, link string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, perRequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", crawlerUserAgent)
	resp, err := a.client().Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// detectHTMLVersion inspects the doctype.
func detectHTMLVersion(body []byte) string {
	m := reDoctype.FindSubmatch(body)
	if m == nil {
		return "Unknown"
	}
	publicID := strings.ToLower(string(m[1]))
	systemID := strings.ToLower(string(m[2]))
	switch {
	case publicID == "" && systemID == "":
		return "HTML5"
	case strings.Contains(publicID, "xhtml 1.1"):
		return "XHTML 1.1"
	case strings.Contains(publicID, "xhtml"):
		return "XHTML 1.0"
	case strings.Contains(publicID, "4.01") || strings.Contains(systemID, "4.01"):
		return "HTML 4.01"
	}
	return "Unknown"
}
