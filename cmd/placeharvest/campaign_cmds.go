package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/services"
)

type createFlags struct {
	title         string
	seeds         []string
	scope         string
	country       string
	geonameID     int64
	geonameName   string
	minPopulation int64
	language      string
	locale        string
	maxBots       int
	maxAttempts   int
	maxResults    int
	minRating     float64
	minReviews    int
	maxReviews    int
	noWebsite     bool
}

func newCreateCmd(c *cli) *cobra.Command {
	var f createFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending campaign with one task per seed and city",
		Example: `  placeharvest create --seed cafes --seed bakeries --scope country --country PT --min-population 50000
  placeharvest create --seed cafes --scope city --geoname-id 2267057 --geoname-name Lisbon`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.campaignConfig(cmd)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(a *app) error {
				campaign, err := a.campaigns.CreateCampaign(cmd.Context(), f.title, cfg)
				if err != nil {
					return err
				}
				printCampaign(cmd.OutOrStdout(), campaign)
				return nil
			})
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.title, "title", "", "campaign title (derived when empty)")
	fl.StringSliceVar(&f.seeds, "seed", nil, "search seed, repeatable")
	fl.StringVar(&f.scope, "scope", string(domain.ScopeCountry), "world, country, admin1, admin2 or city")
	fl.StringVar(&f.country, "country", "", "ISO 3166 alpha-2 country code")
	fl.Int64Var(&f.geonameID, "geoname-id", 0, "scope geoname id for admin1, admin2 and city scopes")
	fl.StringVar(&f.geonameName, "geoname-name", "", "display name of the scope geoname")
	fl.Int64Var(&f.minPopulation, "min-population", -1, "only cities at least this large")
	fl.StringVar(&f.language, "language", "", "ISO language for geoname names")
	fl.StringVar(&f.locale, "locale", domain.DefaultLocale, "browser locale")
	fl.IntVar(&f.maxBots, "max-bots", domain.DefaultMaxBots, "bots per run")
	fl.IntVar(&f.maxAttempts, "max-attempts", domain.DefaultMaxAttempts, "attempts per task")
	fl.IntVar(&f.maxResults, "max-results", domain.DefaultMaxResults, "places per search")
	fl.Float64Var(&f.minRating, "min-rating", 0, "skip places rated below this")
	fl.IntVar(&f.minReviews, "min-reviews", 0, "skip places with fewer reviews")
	fl.IntVar(&f.maxReviews, "max-reviews", 0, "reviews to keep per place")
	fl.BoolVar(&f.noWebsite, "no-website-enrichment", false, "disable the website enrichment pool")
	_ = cmd.MarkFlagRequired("seed")
	return cmd
}

func (f createFlags) campaignConfig(cmd *cobra.Command) (domain.CampaignConfig, error) {
	scope, err := domain.ParseCampaignScope(f.scope)
	if err != nil {
		return domain.CampaignConfig{}, err
	}
	sel := domain.GeonameSelectionParams{
		Scope:            scope,
		CountryCode:      f.country,
		ScopeGeonameName: f.geonameName,
		ISOLanguage:      f.language,
	}
	if cmd.Flags().Changed("geoname-id") {
		id := f.geonameID
		sel.ScopeGeonameID = &id
	}
	if f.minPopulation >= 0 {
		pop := f.minPopulation
		sel.MinPopulation = &pop
	}

	cfg := domain.DefaultCampaignConfig(f.seeds, sel)
	cfg.Locale = f.locale
	cfg.MaxBots = f.maxBots
	cfg.MaxAttempts = f.maxAttempts
	cfg.MaxResults = f.maxResults
	cfg.MinRating = f.minRating
	cfg.MinNumReviews = f.minReviews
	cfg.MaxReviews = f.maxReviews
	if f.noWebsite {
		cfg.EnrichmentPools = nil
	}
	return cfg, nil
}

func newRunCmd(c *cli) *cobra.Command {
	var bots int
	cmd := &cobra.Command{
		Use:   "run CAMPAIGN_ID",
		Short: "Run a campaign's claimable tasks once, spread round-robin over a bot pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseCampaignID(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(a *app) error {
				campaign, err := a.runOrchestrated(cmd.Context(), id, bots)
				if err != nil {
					return err
				}
				printCampaign(cmd.OutOrStdout(), campaign)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&bots, "bots", 0, "pool size (defaults to the campaign's max bots)")
	return cmd
}

func (a *app) runOrchestrated(ctx context.Context, id domain.CampaignID, bots int) (*domain.Campaign, error) {
	campaign, err := a.campaigns.StartCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := a.campaigns.ClaimableTasks(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(tasks) > 0 {
		n := campaign.Config.MaxBots
		if bots > 0 && bots < n {
			n = bots
		}
		n = min(n, len(tasks))

		pool, err := a.botPool(ctx, campaign)
		if err != nil {
			return nil, err
		}
		if err := pool.InitializePool(ctx, n, a.stagger()); err != nil {
			pool.CloseAll(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("failed to initialize bot pool: %w", err)
		}

		orchestrator := services.NewBotOrchestrator(a.logger, pool, services.NewTaskQueue(a.logger), a.taskRunner(pool))
		if err := orchestrator.StartExtraction(ctx, tasks); err != nil {
			return nil, err
		}
	}

	return a.campaigns.FinalizeCampaign(context.WithoutCancel(ctx), id)
}

func newWorkCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work CAMPAIGN_ID",
		Short: "Process a campaign with pull-based workers, retrying failed tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseCampaignID(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(a *app) error {
				campaign, err := a.campaigns.GetCampaign(cmd.Context(), id)
				if err != nil {
					return err
				}
				pool, err := a.botPool(cmd.Context(), campaign)
				if err != nil {
					return err
				}
				workers := services.NewExtractionWorkerPool(
					a.logger,
					pool,
					services.NewExtractionTaskDispatcher(a.logger, a.repo, a.metrics),
					a.repo,
					a.taskRunner(pool),
					a.campaigns,
					services.WorkerPoolConfig{
						Workers:       a.cfg.Pool.Workers,
						MaxConcurrent: a.cfg.Pool.MaxConcurrent,
						Stagger:       a.stagger(),
						MaxPasses:     a.cfg.Pool.MaxPasses,
					},
				)
				campaign, err = workers.Run(cmd.Context(), id)
				if err != nil {
					return err
				}
				printCampaign(cmd.OutOrStdout(), campaign)
				return nil
			})
		},
	}
	cmd.Flags().Int("workers", 0, "workers and bots (defaults to the campaign's max bots)")
	cmd.Flags().Int64("max-concurrent", 0, "running tasks across all workers")
	cobra.CheckErr(c.v.BindPFlag("pool.workers", cmd.Flags().Lookup("workers")))
	cobra.CheckErr(c.v.BindPFlag("pool.max_concurrent", cmd.Flags().Lookup("max-concurrent")))
	return cmd
}

func newResumeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "resume CAMPAIGN_ID",
		Short: "Move a failed campaign back to pending",
		Args:  cobra.ExactArgs(1),
		RunE:  c.campaignTransition((*services.CampaignService).ResumeCampaign),
	}
}

func newArchiveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "archive CAMPAIGN_ID",
		Short: "Archive a finished campaign",
		Args:  cobra.ExactArgs(1),
		RunE:  c.campaignTransition((*services.CampaignService).ArchiveCampaign),
	}
}

type transition func(*services.CampaignService, context.Context, domain.CampaignID) (*domain.Campaign, error)

func (c *cli) campaignTransition(fn transition) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := domain.ParseCampaignID(args[0])
		if err != nil {
			return err
		}
		return c.withApp(cmd, func(a *app) error {
			campaign, err := fn(a.campaigns, cmd.Context(), id)
			if err != nil {
				return err
			}
			printCampaign(cmd.OutOrStdout(), campaign)
			return nil
		})
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status [CAMPAIGN_ID]",
		Short: "List campaigns, or show one campaign with its tasks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					campaigns, err := a.campaigns.ListCampaigns(cmd.Context())
					if err != nil {
						return err
					}
					printCampaignList(out, campaigns)
					return nil
				}

				id, err := domain.ParseCampaignID(args[0])
				if err != nil {
					return err
				}
				campaign, err := a.campaigns.GetCampaign(cmd.Context(), id)
				if err != nil {
					return err
				}
				printCampaign(out, campaign)
				printTasks(out, campaign.Tasks)
				return nil
			})
		},
	}
}

func printCampaign(w io.Writer, c *domain.Campaign) {
	fmt.Fprintf(w, "campaign  %s\n", c.ID)
	fmt.Fprintf(w, "title     %s\n", c.Title)
	fmt.Fprintf(w, "status    %s\n", c.Status)
	fmt.Fprintf(w, "enrich    %s\n", c.Config.EnabledEnrichments())
	fmt.Fprintf(w, "tasks     %d total, %d completed, %d failed (%.1f%%)\n",
		c.TotalTasks, c.CompletedTasks, c.FailedTasks, c.CompletionPercentage())
}

func printCampaignList(w io.Writer, campaigns []*domain.Campaign) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTOTAL\tDONE\tFAILED\tTITLE")
	for _, c := range campaigns {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", c.ID, c.Status, c.TotalTasks, c.CompletedTasks, c.FailedTasks, c.Title)
	}
	_ = tw.Flush()
}

func printTasks(w io.Writer, tasks []*domain.ExtractionTask) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nTASK\tSTATUS\tATTEMPTS\tQUERY\tLAST ERROR")
	for _, t := range tasks {
		lastErr := ""
		if t.LastError != nil {
			lastErr = *t.LastError
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.ID, t.Status, t.Attempts, t.SearchQuery(), lastErr)
	}
	_ = tw.Flush()
}
