package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// HTTPLocator queries an ip-api compatible JSON endpoint:
// GET {BaseURL}/{ip}?fields=status,message,lat,lon,countryCode,city,timezone
type HTTPLocator struct {
	BaseURL string
	Client  *http.Client
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	CountryCode string  `json:"countryCode"`
	City        string  `json:"city"`
	Timezone    string  `json:"timezone"`
}

// NewHTTPLocator returns a locator for baseURL using http.DefaultClient.
func NewHTTPLocator(baseURL string) *HTTPLocator {
	return &HTTPLocator{BaseURL: strings.TrimRight(baseURL, "/"), Client: http.DefaultClient}
}

// Locate performs one upstream request. Private and loopback addresses are
// rejected without a network call.
func (l *HTTPLocator) Locate(ctx context.Context, ip string) (Location, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Location{}, fmt.Errorf("invalid ip %q", ip)
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		return Location{}, errors.New("address is not publicly routable")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.BaseURL+"/"+addr.String()+"?fields=status,message,lat,lon,countryCode,city,timezone", nil)
	if err != nil {
		return Location{}, err
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo upstream status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("decode geo response: %w", err)
	}
	if body.Status != "success" {
		return Location{}, fmt.Errorf("geo upstream: %s", body.Message)
	}

	return Location{
		Latitude:  body.Lat,
		Longitude: body.Lon,
		Country:   body.CountryCode,
		City:      body.City,
		Timezone:  body.Timezone,
	}, nil
}
