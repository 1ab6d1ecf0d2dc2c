package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/willmadison/givehub-tools/givehub"
	givehubhttp "github.com/willmadison/givehub-tools/givehub/http"
	"github.com/willmadison/givehub-tools/givehub/sqlite"
)

// Environment provides an abstraction around the execution environment
type Environment struct {
	Stderr io.Writer
	Stdout io.Writer
	Stdin  io.Reader
}

type ServeCmd struct {
	CertificateBaseURL string `default:"https://donations.example.org" help:"the base URL embedded in certificate download links."`
}

func (cmd *ServeCmd) Run(env *Environment, store givehub.Store, logger *zap.Logger) error {
	service := givehub.NewService(store)

	if raw := os.Getenv("MAX_DONATION_CENTS"); raw != "" {
		var maxInCents int64
		if _, err := fmt.Sscanf(raw, "%d", &maxInCents); err != nil || maxInCents <= 0 {
			return fmt.Errorf("invalid MAX_DONATION_CENTS: %q", raw)
		}
		service.WithMaxDonation(maxInCents)
	}

	refunds := givehub.NewRefundProcessor(store, service.Aggregator())
	issuer := givehub.NewTaxCertificateIssuer(store, cmd.CertificateBaseURL)

	r := gin.Default()

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		api.POST("/donations", givehubhttp.InitiateDonationHandler(service, logger))
		api.POST("/donations/settlement", givehubhttp.SettlementHandler(service, logger))
		api.POST("/donations/:orderId/refund", givehubhttp.RefundHandler(refunds, logger))
		api.POST("/donations/:orderId/certificate", givehubhttp.IssueCertificateHandler(issuer, logger))
		api.GET("/campaigns/:id/overview", givehubhttp.CampaignOverviewHandler(store, store))
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()
	logger.Info("server running", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")

	return nil
}

type ReconcileCmd struct {
	CampaignID string `help:"reconcile a single campaign rather than all of them."`
}

// Run recomputes each campaign's raised amount and donor count from its
// donation rows and reports any drift against the stored aggregates.
func (cmd *ReconcileCmd) Run(env *Environment, store givehub.Store, logger *zap.Logger) error {
	ctx := context.Background()

	var campaigns []givehub.Campaign

	if cmd.CampaignID != "" {
		campaign, err := store.FindCampaign(ctx, cmd.CampaignID)
		if err != nil {
			return err
		}

		campaigns = []givehub.Campaign{campaign}
	} else {
		var err error

		campaigns, err = store.ListCampaigns(ctx)
		if err != nil {
			return err
		}
	}

	var drifted int

	for _, campaign := range campaigns {
		report, err := givehub.ReconcileCampaign(ctx, store, store, campaign.ID)
		if err != nil {
			return err
		}

		if report.Consistent() {
			fmt.Fprintf(env.Stdout, "campaign %v: consistent (raised=%v donors=%v)\n",
				report.CampaignID, report.StoredRaisedInCents, report.StoredDonorsCount)
			continue
		}

		drifted++

		fmt.Fprintf(env.Stdout, "campaign %v: DRIFT raised stored=%v computed=%v, donors stored=%v computed=%v\n",
			report.CampaignID, report.StoredRaisedInCents, report.ComputedRaisedInCents,
			report.StoredDonorsCount, report.ComputedDonorsCount)
	}

	if drifted > 0 {
		return fmt.Errorf("%d campaign(s) have drifting aggregates", drifted)
	}

	return nil
}

type SweepCmd struct{}

// Run completes active campaigns whose end date has passed.
func (cmd *SweepCmd) Run(env *Environment, store givehub.Store, logger *zap.Logger) error {
	aggregator := givehub.NewCampaignAggregator(store)

	closed, err := aggregator.CloseExpired(context.Background(), time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintf(env.Stdout, "closed %d expired campaign(s)\n", closed)

	return nil
}

type CLI struct {
	Serve     ServeCmd     `cmd:"" help:"Serves the donation lifecycle API."`
	Reconcile ReconcileCmd `cmd:"" help:"Verifies campaign aggregates against their underlying donation records."`
	Sweep     SweepCmd     `cmd:"" help:"Completes active campaigns whose end date has passed."`
}

func Run(env Environment) int {
	app := CLI{}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err.Error())
	}
	defer logger.Sync()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = "file:givehub.db"
	}

	store, err := sqlite.New(databaseURL)
	if err != nil {
		panic(err.Error())
	}
	defer store.Close()

	cntx := kong.Parse(&app,
		kong.Description("donation lifecycle utils"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	cntx.BindTo(store, (*givehub.Store)(nil))
	cntx.Bind(logger)

	err = cntx.Run(&env)
	cntx.FatalIfErrorf(err)

	return 0
}
