package civic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/unitedwerise/backend/internal/metrics"
)

// Official is one elected representative for a district
type Official struct {
	Name   string `json:"name"`
	Office string `json:"office"`
	Party  string `json:"party,omitempty"`
}

// DistrictInfo is the result of geocoding a street address
type DistrictInfo struct {
	DistrictID string     `json:"district_id"`
	State      string     `json:"state"`
	City       string     `json:"city"`
	Officials  []Official `json:"officials"`
}

// Client talks to the geocoding API that resolves addresses to legislative
// districts
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a geocoder client. baseURL is overridable for tests;
// empty means production.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.geocod.io"
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type geocodeResponse struct {
	Error   string `json:"error"`
	Results []struct {
		AddressComponents struct {
			City  string `json:"city"`
			State string `json:"state"`
		} `json:"address_components"`
		Fields struct {
			CongressionalDistricts []struct {
				DistrictNumber     int `json:"district_number"`
				CurrentLegislators []struct {
					Type string `json:"type"`
					Bio  struct {
						FirstName string `json:"first_name"`
						LastName  string `json:"last_name"`
						Party     string `json:"party"`
					} `json:"bio"`
				} `json:"current_legislators"`
			} `json:"congressional_districts"`
		} `json:"fields"`
	} `json:"results"`
}

// Lookup geocodes a street address into its district and officials
func (c *Client) Lookup(ctx context.Context, address string) (*DistrictInfo, error) {
	params := url.Values{}
	params.Set("q", address)
	params.Set("fields", "cd")
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1.7/geocode?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	m := metrics.Get()
	m.ExternalRequestDuration.WithLabelValues("geocoder", "lookup").Observe(time.Since(start).Seconds())
	if err != nil {
		m.ExternalRequestsTotal.WithLabelValues("geocoder", "lookup", "error").Inc()
		return nil, fmt.Errorf("geocoder request failed: %w", err)
	}
	defer resp.Body.Close()

	m.ExternalRequestsTotal.WithLabelValues("geocoder", "lookup", strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var reply geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("geocoder response decode failed: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("geocoder error: %s", reply.Error)
	}
	if len(reply.Results) == 0 {
		return nil, ErrAddressNotFound
	}

	result := reply.Results[0]
	info := &DistrictInfo{
		City:  result.AddressComponents.City,
		State: result.AddressComponents.State,
	}

	if len(result.Fields.CongressionalDistricts) > 0 {
		district := result.Fields.CongressionalDistricts[0]
		info.DistrictID = fmt.Sprintf("%s-%02d", info.State, district.DistrictNumber)
		for _, legislator := range district.CurrentLegislators {
			info.Officials = append(info.Officials, Official{
				Name:   legislator.Bio.FirstName + " " + legislator.Bio.LastName,
				Office: officeName(legislator.Type),
				Party:  legislator.Bio.Party,
			})
		}
	}

	return info, nil
}

func officeName(legislatorType string) string {
	switch legislatorType {
	case "representative":
		return "U.S. Representative"
	case "senator":
		return "U.S. Senator"
	default:
		return legislatorType
	}
}
