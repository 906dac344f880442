package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/api/v1/router"
	"github.com/EisukeHirata/profile-nanobanana/internal/config"
	"github.com/EisukeHirata/profile-nanobanana/internal/logger"
	"github.com/EisukeHirata/profile-nanobanana/internal/model"
	"github.com/EisukeHirata/profile-nanobanana/internal/repository"
	"github.com/EisukeHirata/profile-nanobanana/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "", "Mode: list|show|grant|events")
	email := flag.String("email", "", "Profile email for show and grant")
	amount := flag.Int("amount", 0, "Credits to grant")
	limit := flag.Int("limit", 50, "Maximum rows for list and events")
	offset := flag.Int("offset", 0, "Rows to skip for list")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		l := logger.New()
		l.Warn().Msg("Warning: no .env file found")
	}
	logger := logger.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := service.LoadSecrets(ctx, cfg); err != nil {
		logger.Fatal().Msgf("Error resolving secrets: %v", err)
	}

	pool, err := router.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Msgf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	profiles := repository.NewProfileRepo(pool)
	events := repository.NewBillingEventRepo(pool)
	ledger := service.NewLedgerService(profiles, cfg.BootstrapCredits, logger)

	// Dispatch to the selected mode
	var runErr error
	switch *mode {
	case "list":
		var rows []model.Profile
		rows, runErr = profiles.List(ctx, *limit, *offset)
		if runErr == nil {
			runErr = printProfiles(os.Stdout, rows)
		}
	case "show":
		var p *model.Profile
		p, runErr = ledger.GetProfile(ctx, *email)
		if runErr == nil {
			runErr = printProfiles(os.Stdout, []model.Profile{*p})
		}
	case "grant":
		if *email == "" || *amount <= 0 {
			logger.Fatal().Msg("grant requires -email and a positive -amount")
		}
		var credits int
		credits, runErr = ledger.AddCredits(ctx, *email, *amount)
		if runErr == nil {
			logger.Info().Str("email", *email).Int("granted", *amount).Int("credits", credits).Msg("Credits granted")
		}
	case "events":
		var rows []model.BillingEvent
		rows, runErr = events.ListRecent(ctx, *limit)
		if runErr == nil {
			runErr = printEvents(os.Stdout, rows)
		}
	default:
		logger.Fatal().Msgf("Invalid mode: %s", *mode)
	}

	if runErr != nil {
		logger.Fatal().Msgf("%s failed: %v", *mode, runErr)
	}
}

func printProfiles(out io.Writer, rows []model.Profile) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tCREDITS\tTIER\tSTATUS\tCUSTOMER\tCREATED")
	for _, p := range rows {
		customer := "-"
		if p.StripeCustomerID != nil {
			customer = *p.StripeCustomerID
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			p.Email, p.Credits, p.SubscriptionTier, p.SubscriptionStatus, customer, p.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printEvents(out io.Writer, rows []model.BillingEvent) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tTYPE\tSTATUS\tATTEMPTS\tUPDATED\tERROR")
	for _, e := range rows {
		errText := ""
		if e.ProcessingError != nil {
			errText = *e.ProcessingError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.EventID, e.EventType, e.Status, e.Attempts, e.UpdatedAt.Format(time.RFC3339), errText)
	}
	return tw.Flush()
}
