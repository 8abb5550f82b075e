package clients

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"converse/pkg/httpx"
)

// Category is one service category offered by the finder.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Location is one facility near the requested point.
type Location struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ServiceFinder searches facilities by category around a point.
type ServiceFinder struct {
	c *httpx.Client
}

// NewServiceFinder builds a service-finder client.
func NewServiceFinder(baseURL, token string) *ServiceFinder {
	return &ServiceFinder{c: httpx.New(baseURL, token, "converse/servicefinder")}
}

// Categories lists the searchable service categories.
func (s *ServiceFinder) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := s.c.Get(ctx, "/categories", nil, &categories); err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	return categories, nil
}

// Locations searches facilities of a category within radius kilometres.
func (s *ServiceFinder) Locations(ctx context.Context, category string, lat, lng float64, radius int) ([]Location, error) {
	query := url.Values{
		"category":  {category},
		"latitude":  {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(lng, 'f', -1, 64)},
		"radius":    {strconv.Itoa(radius)},
	}

	var locations []Location
	if err := s.c.Get(ctx, "/locations", query, &locations); err != nil {
		return nil, fmt.Errorf("locations: %w", err)
	}
	return locations, nil
}
