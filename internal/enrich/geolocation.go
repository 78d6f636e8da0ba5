package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/zdex/zdex-go/internal/errors"
)

// Location is a coarse device position resolved from the public IP.
type Location struct {
	City      string  `json:"city"`
	Region    string  `json:"region"`
	Country   string  `json:"country_name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String renders "City, Country" with whichever parts are known.
func (l *Location) String() string {
	switch {
	case l.City != "" && l.Country != "":
		return l.City + ", " + l.Country
	case l.City != "":
		return l.City
	case l.Country != "":
		return l.Country
	default:
		return ""
	}
}

// Locate resolves the device's approximate location, caching the first
// successful answer for the life of the client. On failure the fallback
// string is returned.
func (c *Client) Locate(ctx context.Context, fallback string) string {
	c.locationMu.Lock()
	if c.location != nil {
		defer c.locationMu.Unlock()
		return c.location.String()
	}
	c.locationMu.Unlock()

	loc, err := c.fetchLocation(ctx)
	if err != nil {
		c.log.Warn("geolocation lookup failed, using fallback",
			"fallback", fallback, "error", err)
		return fallback
	}

	c.locationMu.Lock()
	c.location = loc
	c.locationMu.Unlock()
	return loc.String()
}

func (c *Client) fetchLocation(ctx context.Context) (*Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.settings.GeolocationURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.New(fmt.Errorf("fetching geolocation: %w", err)).
			Component("enrich").
			Category(errors.CategoryNetwork).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(fmt.Errorf("geolocation request returned %d", resp.StatusCode)).
			Component("enrich").
			Category(errors.CategoryNetwork).
			Build()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, err
	}
	var loc Location
	if err := json.Unmarshal(body, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}
