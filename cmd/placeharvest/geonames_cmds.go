package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/manthysbr/placeharvest/internal/adapters/geonames"
	"github.com/manthysbr/placeharvest/internal/config"
	"github.com/manthysbr/placeharvest/internal/core/ports"
	"github.com/manthysbr/placeharvest/internal/logging"
)

// newGeonamesCmd browses the lookup service, mostly to find scope ids for
// create. It never touches the database.
func newGeonamesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geonames",
		Short: "Browse countries and administrative divisions",
	}
	cmd.AddCommand(newCountriesCmd(c), newAdminDivisionsCmd(c))
	return cmd
}

func (c *cli) geonamesClient() (*geonames.Client, error) {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return nil, err
	}
	logger, _ := logging.New(logging.Options{Level: cfg.Log.Level})
	return geonames.NewClient(logger, cfg.Geonames.URL, cfg.Geonames.Timeout), nil
}

func newCountriesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List the countries known to the lookup service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.geonamesClient()
			if err != nil {
				return err
			}
			countries, err := client.Countries(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tGEONAME ID\tNAME\tPOPULATION")
			for _, country := range countries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\n", country.ISOAlpha2, country.GeonameID, country.Name, country.Population)
			}
			return tw.Flush()
		},
	}
}

func newAdminDivisionsCmd(c *cli) *cobra.Command {
	var f ports.GeonameFilter
	cmd := &cobra.Command{
		Use:     "admin",
		Short:   "List administrative divisions of a country",
		Example: "  placeharvest geonames admin --country PT --feature ADM1",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.geonamesClient()
			if err != nil {
				return err
			}
			divisions, err := client.FindAdminGeonames(cmd.Context(), f)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GEONAME ID\tFEATURE\tADMIN1\tNAME\tPOPULATION")
			for _, g := range divisions {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", g.ID, g.FeatureCode, g.Admin1Code, g.Name, g.Population)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&f.CountryCode, "country", "", "ISO 3166 alpha-2 country code")
	cmd.Flags().StringVar(&f.FeatureCode, "feature", "ADM1", "ADM1, ADM2 or ADM3")
	cmd.Flags().StringVar(&f.Admin1Code, "admin1", "", "only divisions inside this admin1 code")
	cmd.Flags().StringVar(&f.ISOLanguage, "language", "", "ISO language for names")
	_ = cmd.MarkFlagRequired("country")
	return cmd
}
