package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manthysbr/placeharvest/internal/config"
)

type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:   "placeharvest",
		Short: "Plan and run place extraction campaigns",
		Long: `placeharvest turns search seeds and a geographic scope into extraction
campaigns, then drives a pool of browser bots through their tasks.

Settings come from --config (YAML), PLACEHARVEST_* environment variables
and flags, in increasing priority.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (YAML)")
	flags.String("db", "", "DuckDB database file")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-file", "", "also write logs to this rotated file")
	flags.String("geonames-url", "", "geonames service base URL")
	flags.String("browser-endpoint", "", "use a running browser instead of local containers")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	bind := map[string]string{
		"database_path":    "db",
		"log.level":        "log-level",
		"log.file":         "log-file",
		"geonames.url":     "geonames-url",
		"browser.endpoint": "browser-endpoint",
		"metrics_addr":     "metrics-addr",
	}
	for key, flag := range bind {
		cobra.CheckErr(c.v.BindPFlag(key, flags.Lookup(flag)))
	}

	root.AddCommand(
		newCreateCmd(c),
		newRunCmd(c),
		newWorkCmd(c),
		newResumeCmd(c),
		newArchiveCmd(c),
		newStatusCmd(c),
		newEnrichCmd(c),
		newGeonamesCmd(c),
	)
	return root
}

// withApp loads the config, builds the app for one command and tears it
// down afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
