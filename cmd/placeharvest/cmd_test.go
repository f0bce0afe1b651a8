package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/placeharvest/internal/core/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCreateFlags_CampaignConfig(t *testing.T) {
	cmd := newCreateCmd(&cli{})
	require.NoError(t, cmd.ParseFlags([]string{
		"--seed", "cafes", "--seed", "bakeries",
		"--scope", "CITY", "--geoname-id", "123",
		"--min-population", "5000", "--no-website-enrichment",
	}))

	f := createFlags{
		seeds: []string{"cafes", "bakeries"}, scope: "CITY", geonameID: 123,
		minPopulation: 5000, noWebsite: true, locale: "pt-BR", maxBots: 3, maxAttempts: 2,
	}
	cfg, err := f.campaignConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, domain.ScopeCity, cfg.Selection.Scope)
	require.NotNil(t, cfg.Selection.ScopeGeonameID)
	assert.Equal(t, int64(123), *cfg.Selection.ScopeGeonameID)
	require.NotNil(t, cfg.Selection.MinPopulation)
	assert.Equal(t, int64(5000), *cfg.Selection.MinPopulation)
	assert.Empty(t, cfg.EnrichmentPools)
	assert.Equal(t, 3, cfg.MaxBots)
	assert.Equal(t, 2, cfg.MaxAttempts)
}

func TestCreateFlags_UnsetOptionalsStayNil(t *testing.T) {
	cmd := newCreateCmd(&cli{})
	require.NoError(t, cmd.ParseFlags([]string{"--seed", "cafes", "--country", "PT"}))

	f := createFlags{seeds: []string{"cafes"}, scope: "country", country: "PT", minPopulation: -1}
	cfg, err := f.campaignConfig(cmd)
	require.NoError(t, err)
	assert.Nil(t, cfg.Selection.ScopeGeonameID)
	assert.Nil(t, cfg.Selection.MinPopulation)
	assert.NotEmpty(t, cfg.EnrichmentPools)
}

func TestCreateFlags_UnknownScope(t *testing.T) {
	f := createFlags{seeds: []string{"cafes"}, scope: "galaxy"}
	_, err := f.campaignConfig(&cobra.Command{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRootCmd_RejectsMalformedCampaignID(t *testing.T) {
	_, err := execute(t, "resume", "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestStatusAndEnrichment_OnEmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ph.duckdb")

	out, err := execute(t, "--db", db, "--log-level", "error", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")

	out, err = execute(t, "--db", db, "--log-level", "error", "enrich", "add", "--place-id", "ChIJ123", "--url", "https://example.com")
	require.NoError(t, err)
	_, err = domain.ParseEnrichmentTaskID(out[:len(out)-1])
	require.NoError(t, err)

	out, err = execute(t, "--db", db, "--log-level", "error", "enrich", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "1 enrichment tasks claimable")
	assert.Contains(t, out, "https://example.com")
}

func TestEnrichAdd_RejectsRelativeURL(t *testing.T) {
	_, err := execute(t, "--db", filepath.Join(t.TempDir(), "ph.duckdb"), "enrich", "add", "--place-id", "p", "--url", "example.com")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGeonamesAdmin_ListsDivisions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/countries/PT/admin-divisions", r.URL.Path)
		assert.Equal(t, "ADM1", r.URL.Query().Get("feature_code"))
		_, _ = w.Write([]byte(`[{"geoname_id": 2267056, "name": "Lisboa", "feature_code": "ADM1", "admin1_code": "14"}]`))
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "--geonames-url", srv.URL, "--log-level", "error", "geonames", "admin", "--country", "PT")
	require.NoError(t, err)
	assert.Contains(t, out, "2267056")
	assert.Contains(t, out, "Lisboa")
}

func TestPrintCampaign_ShowsEnabledEnrichments(t *testing.T) {
	cfg := domain.DefaultCampaignConfig([]string{"cafes"}, domain.GeonameSelectionParams{Scope: domain.ScopeCountry, CountryCode: "PT"})
	campaign := domain.NewCampaign("lisbon cafes", cfg)

	var out bytes.Buffer
	printCampaign(&out, campaign)
	assert.Contains(t, out.String(), "enrich    website\n")

	campaign.Config.EnrichmentPools = nil
	out.Reset()
	printCampaign(&out, campaign)
	assert.Contains(t, out.String(), "enrich    none\n")
}
