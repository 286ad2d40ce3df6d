package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/urgency-engine/internal/api"
	"github.com/atmx/urgency-engine/internal/engine"
	"github.com/atmx/urgency-engine/internal/store"
)

// quoteCmd prices one night offline against an in-memory store using the
// built-in configuration.
func quoteCmd() *cobra.Command {
	var (
		basePrice   string
		steepness   float64
		market      float64
		profile     string
		city        string
		projections bool
	)
	cmd := &cobra.Command{
		Use:   "quote <YYYY-MM-DD>",
		Short: "Compute a single quote offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			price, err := decimal.NewFromString(basePrice)
			if err != nil {
				return fmt.Errorf("invalid --base-price %q: %w", basePrice, err)
			}

			req := engine.QuoteRequest{
				TargetDate:         args[0],
				BasePrice:          price,
				IncludeProjections: &projections,
				Profile:            profile,
				City:               city,
			}
			if cmd.Flags().Changed("steepness") {
				req.UrgencySteepness = &steepness
			}
			if cmd.Flags().Changed("market") {
				req.MarketDemandMultiplier = &market
			}

			eng := engine.New(store.NewMemoryStore(), engine.Options{})
			q, err := eng.Calculate(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(q)
		},
	}
	cmd.Flags().StringVar(&basePrice, "base-price", "", "nightly base price (required)")
	cmd.Flags().Float64Var(&steepness, "steepness", engine.DefaultSteepness, "urgency steepness")
	cmd.Flags().Float64Var(&market, "market", 1.0, "market demand multiplier (computed from the profile when unset)")
	cmd.Flags().StringVar(&profile, "profile", engine.DefaultProfile, "demand profile")
	cmd.Flags().StringVar(&city, "city", "", "city for event matching")
	cmd.Flags().BoolVar(&projections, "projections", true, "include price projections")
	cmd.MarkFlagRequired("base-price")
	return cmd
}

// migrateCmd applies the schema to the configured durable store and seeds
// the built-in configuration rows.
func migrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, cleanup, err := openPrimary(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			defer cleanup()
			if st == nil {
				return errors.New("nothing to migrate: set DATABASE_URL or SQLITE_PATH")
			}

			if err := st.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("Schema applied.")
			if !seed {
				return nil
			}
			if err := seedDefaults(ctx, st, cfg.Pricing.ConfigKey); err != nil {
				return err
			}
			fmt.Println("Default configuration seeded.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "seed built-in pricing and demand configuration")
	return cmd
}

// hashTokenCmd prints a bcrypt hash for auth.admin_token_hashes.
func hashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the bcrypt hash of an admin token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := api.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
