package geonames

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
)

const pageLimit = 1000

// Client queries the geonames microservice over REST.
type Client struct {
	logger  *slog.Logger
	baseURL string
	client  *http.Client
}

var _ ports.GeonameQuery = (*Client)(nil)

func NewClient(logger *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type placeRecord struct {
	GeonameID   int64   `json:"geoname_id"`
	Name        string  `json:"name"`
	ASCIIName   string  `json:"asciiname"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CountryCode string  `json:"country_code"`
	Population  int64   `json:"population"`
	FeatureCode string  `json:"feature_code"`
	Admin1Code  string  `json:"admin1_code"`
	Admin2Code  string  `json:"admin2_code"`
	CountryName string  `json:"country_name"`
	Admin1Name  string  `json:"admin1_name"`
}

func (r placeRecord) geoname(countryCode string) domain.Geoname {
	name := r.Name
	if name == "" {
		name = r.ASCIIName
	}
	if r.CountryCode != "" {
		countryCode = r.CountryCode
	}
	return domain.Geoname{
		ID:          r.GeonameID,
		Name:        name,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		CountryCode: countryCode,
		Population:  r.Population,
		FeatureCode: r.FeatureCode,
		Admin1Code:  r.Admin1Code,
		Admin2Code:  r.Admin2Code,
		CountryName: r.CountryName,
		Admin1Name:  r.Admin1Name,
	}
}

// FindCityGeonames lists cities. With a country code the per-country
// endpoint is used, otherwise the global one.
func (c *Client) FindCityGeonames(ctx context.Context, f ports.GeonameFilter) ([]domain.Geoname, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(pageLimit))
	if f.MinPopulation != nil && *f.MinPopulation > 0 {
		q.Set("min_population", strconv.FormatInt(*f.MinPopulation, 10))
	}
	if f.Admin1GeonameID != nil {
		q.Set("admin1_geoname_id", strconv.FormatInt(*f.Admin1GeonameID, 10))
	}
	if f.Admin2GeonameID != nil {
		q.Set("admin2_geoname_id", strconv.FormatInt(*f.Admin2GeonameID, 10))
	}
	if f.Admin1Code != "" {
		q.Set("admin1_code", f.Admin1Code)
	}
	if f.ISOLanguage != "" {
		q.Set("language", f.ISOLanguage)
	}

	path := "/cities"
	if f.CountryCode != "" {
		path = "/countries/" + url.PathEscape(f.CountryCode) + "/cities"
	}
	return c.places(ctx, path, q, f.CountryCode)
}

// FindAdminGeonames lists administrative divisions of one country.
func (c *Client) FindAdminGeonames(ctx context.Context, f ports.GeonameFilter) ([]domain.Geoname, error) {
	if f.CountryCode == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(pageLimit))
	if f.FeatureCode != "" {
		q.Set("feature_code", f.FeatureCode)
	}
	if f.Admin1Code != "" {
		q.Set("admin1_code", f.Admin1Code)
	}
	if f.ISOLanguage != "" {
		q.Set("expand", "alternateName")
		q.Set("language", f.ISOLanguage)
	}
	return c.places(ctx, "/countries/"+url.PathEscape(f.CountryCode)+"/admin-divisions", q, f.CountryCode)
}

// FindByGeonameID returns the geoname, or nothing when the service does not
// know the id.
func (c *Client) FindByGeonameID(ctx context.Context, id int64) ([]domain.Geoname, error) {
	var rec placeRecord
	found, err := c.get(ctx, "/geonames/"+strconv.FormatInt(id, 10), nil, &rec)
	if err != nil || !found {
		return nil, err
	}
	return []domain.Geoname{rec.geoname("")}, nil
}

func (c *Client) Countries(ctx context.Context) ([]domain.Country, error) {
	var countries []domain.Country
	if _, err := c.get(ctx, "/countries", nil, &countries); err != nil {
		return nil, err
	}
	return countries, nil
}

func (c *Client) places(ctx context.Context, path string, q url.Values, countryCode string) ([]domain.Geoname, error) {
	var records []placeRecord
	if _, err := c.get(ctx, path, q, &records); err != nil {
		return nil, err
	}
	out := make([]domain.Geoname, 0, len(records))
	for _, r := range records {
		out = append(out, r.geoname(countryCode))
	}
	c.logger.Debug("geonames fetched", "path", path, "count", len(out))
	return out, nil
}

// get decodes a JSON response into dst. found is false on 404.
func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) (found bool, err error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("geonames request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("geonames returned %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return false, fmt.Errorf("failed to decode geonames response: %w", err)
	}
	return true, nil
}
