package clients

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"converse/pkg/httpx"
)

// PageSummary is one entry of a page listing.
type PageSummary struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// Page is the full content of one repository page. Long bodies are paginated
// server-side; request a body page with the message parameter.
type Page struct {
	ID               int      `json:"id"`
	Title            string   `json:"title"`
	Subtitle         string   `json:"subtitle"`
	Body             string   `json:"body"`
	HasChildren      bool     `json:"has_children"`
	NextPrompt       string   `json:"next_prompt"`
	Image            string   `json:"image"`
	Parent           int      `json:"parent"`
	RelatedPages     []int    `json:"related_pages"`
	QuizTag          string   `json:"quiz_tag"`
	QuickReplies     []string `json:"quick_replies"`
	FeatureRedirects []string `json:"feature_redirects"`
}

// ContentRepo browses the authored content repository.
type ContentRepo struct {
	c *httpx.Client
}

// NewContentRepo builds a content-repository client.
func NewContentRepo(baseURL, token string) *ContentRepo {
	return &ContentRepo{c: httpx.New(baseURL, token, "converse/contentrepo")}
}

type pageListing struct {
	Results []PageSummary `json:"results"`
}

// PagesByTag lists pages carrying a tag.
func (s *ContentRepo) PagesByTag(ctx context.Context, tag string) ([]PageSummary, error) {
	var listing pageListing
	if err := s.c.Get(ctx, "/pages", url.Values{"tag": {tag}}, &listing); err != nil {
		return nil, fmt.Errorf("pages by tag %s: %w", tag, err)
	}
	return listing.Results, nil
}

// ChildrenOf lists the direct children of a page.
func (s *ContentRepo) ChildrenOf(ctx context.Context, id int) ([]PageSummary, error) {
	query := url.Values{"child_of": {strconv.Itoa(id)}}

	var listing pageListing
	if err := s.c.Get(ctx, "/pages", query, &listing); err != nil {
		return nil, fmt.Errorf("children of page %d: %w", id, err)
	}
	return listing.Results, nil
}

// Page fetches one page. message selects the body page for paginated bodies;
// pass 1 for the first.
func (s *ContentRepo) Page(ctx context.Context, id, message int) (*Page, error) {
	query := url.Values{}
	if message > 1 {
		query.Set("message", strconv.Itoa(message))
	}

	var page Page
	if err := s.c.Get(ctx, fmt.Sprintf("/pages/%d", id), query, &page); err != nil {
		return nil, fmt.Errorf("page %d: %w", id, err)
	}
	return &page, nil
}
