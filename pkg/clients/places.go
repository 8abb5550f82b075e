package clients

import (
	"context"
	"fmt"
	"net/url"

	"converse/pkg/httpx"
)

// Prediction is one autocomplete suggestion.
type Prediction struct {
	PlaceID     string `json:"place_id"`
	Description string `json:"description"`
}

// PlaceDetails is the resolved geometry of one place.
type PlaceDetails struct {
	PlaceID   string  `json:"place_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Places wraps the geocoding/autocomplete collaborator. The session token
// groups the autocomplete keystrokes and the final details call for billing.
type Places struct {
	c *httpx.Client
}

// NewPlaces builds a places client.
func NewPlaces(baseURL, token string) *Places {
	return &Places{c: httpx.New(baseURL, token, "converse/places")}
}

// Autocomplete suggests places for partial input.
func (s *Places) Autocomplete(ctx context.Context, input, sessionToken string) ([]Prediction, error) {
	query := url.Values{
		"input":        {input},
		"sessiontoken": {sessionToken},
	}

	var out struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := s.c.Get(ctx, "/autocomplete", query, &out); err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}
	return out.Predictions, nil
}

// Details resolves a place id to its geometry.
func (s *Places) Details(ctx context.Context, placeID, sessionToken string) (*PlaceDetails, error) {
	query := url.Values{
		"place_id":     {placeID},
		"sessiontoken": {sessionToken},
	}

	var details PlaceDetails
	if err := s.c.Get(ctx, "/details", query, &details); err != nil {
		return nil, fmt.Errorf("place details: %w", err)
	}
	return &details, nil
}
