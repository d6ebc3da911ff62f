// cmd/candymint/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/rovshanmuradov/candymint/internal/config"
	"github.com/rovshanmuradov/candymint/internal/eligibility"
	"github.com/rovshanmuradov/candymint/internal/events"
	"github.com/rovshanmuradov/candymint/internal/export"
	"github.com/rovshanmuradov/candymint/internal/logger"
	"github.com/rovshanmuradov/candymint/internal/mintflow"
)

func main() {
	cliApp := &cli.App{
		Name:  "candymint",
		Usage: "Candy Machine v2 mint client for standard and premium sale tiers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to config file (JSON/YAML/TOML); env only when empty"},
			&cli.StringFlag{Name: "env-file", Aliases: []string{"e"}, Value: ".env", Usage: "Dotenv file with CANDYMINT_ overrides"},
			&cli.BoolFlag{Name: "plain", Usage: "Plain console logs instead of the colored format"},
		},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Refresh every tier once and print its eligibility",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "export", Usage: "Also write the snapshots as csv or json"},
					&cli.StringFlag{Name: "out", Value: "reports", Usage: "Export directory"},
					&cli.BoolFlag{Name: "only-active", Usage: "Export only tiers open to the wallet"},
				},
				Action: statusCmd,
			},
			{
				Name:   "watch",
				Usage:  "Keep tiers fresh and log every change until interrupted",
				Action: watchCmd,
			},
			{
				Name:  "mint",
				Usage: "Mint one item from a tier",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tier", Aliases: []string{"t"}, Required: true, Usage: "Tier name"},
				},
				Action: mintCmd,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("env-file"); path != "" {
		// отсутствующий .env не ошибка
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}
	if path := c.String("config"); path != "" {
		return config.LoadConfig(path)
	}
	return config.LoadFromEnv()
}

func setup(c *cli.Context) (*app, context.Context, context.CancelFunc, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	a, err := newApp(cfg, !c.Bool("plain"))
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	return a, ctx, stop, nil
}

func statusCmd(c *cli.Context) error {
	a, ctx, stop, err := setup(c)
	if err != nil {
		return err
	}
	defer stop()
	defer a.close()

	var snaps []eligibility.Snapshot
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tACTIVE\tLIVE\tPRESALE\tWHITELISTED\tPRICE\tREMAINING\tTX BYTES\tSPLIT\tERROR")
	for _, tier := range a.engine.Tiers() {
		if _, err := a.engine.Refresh(ctx, tier); err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\t-\t-\t%v\n", tier, err)
			continue
		}
		st, err := a.engine.Status(tier)
		if err != nil || st.Snapshot == nil {
			continue
		}
		s := st.Snapshot
		snaps = append(snaps, *s)
		fmt.Fprintf(w, "%s\t%t\t%t\t%t\t%t\t%d\t%d/%d\t%d\t%t\t\n",
			tier, s.IsActive, s.IsLive, s.IsPresale, s.IsWhitelisted,
			s.EffectivePrice, s.RemainingItems, s.ItemsAvailable,
			st.Estimate.Bytes, st.Estimate.MustSplit)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	format := c.String("export")
	if format == "" || len(snaps) == 0 {
		return nil
	}
	path, err := export.NewExporter(a.log.Logger).Export(snaps, export.Options{
		Format:     export.Format(format),
		OnlyActive: c.Bool("only-active"),
		OutputDir:  c.String("out"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Report written to %s\n", path)
	return nil
}

func watchCmd(c *cli.Context) error {
	a, ctx, stop, err := setup(c)
	if err != nil {
		return err
	}
	defer stop()
	defer a.close()

	a.serveAPI()
	a.bus.SubscribeFunc(func(_ context.Context, e events.Event) error {
		switch ev := e.(type) {
		case events.SnapshotRefreshedEvent:
			fmt.Printf("[%s] active=%t price=%d remaining=%d optimistic=%t\n",
				ev.Tier, ev.Snapshot.IsActive, ev.Snapshot.EffectivePrice,
				ev.Snapshot.RemainingItems, ev.Optimistic)
		case events.RefreshFailedEvent:
			fmt.Printf("[%s] %s: %s\n", ev.Tier, ev.Err.Kind, ev.Err.Message)
		}
		return nil
	}, events.SnapshotRefreshed, events.RefreshFailed)

	a.watchAccounts(ctx)
	if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func mintCmd(c *cli.Context) error {
	a, ctx, stop, err := setup(c)
	if err != nil {
		return err
	}
	defer stop()
	defer a.close()

	tier := c.String("tier")
	if _, err := a.engine.Refresh(ctx, tier); err != nil {
		return fmt.Errorf("refresh %s: %w", tier, err)
	}

	updates, err := a.engine.StartMint(ctx, tier)
	if err != nil {
		return err
	}

	var last mintflow.Event
	for ev := range updates {
		last = ev
		if ev.Signature == (solana.Signature{}) {
			fmt.Printf("%s\n", ev.State)
		} else {
			fmt.Printf("%s %s\n", ev.State, logger.ShortAddress(ev.Signature.String()))
		}
	}

	switch last.State {
	case mintflow.Confirmed:
		fmt.Printf("Minted %s\n", last.Mint)
		return nil
	case mintflow.Ambiguous:
		return cli.Exit(fmt.Sprintf("mint %s may have succeeded, check the wallet before retrying", last.Mint), 2)
	default:
		if last.Err != nil {
			return cli.Exit(fmt.Sprintf("mint failed (%s): %s", last.Err.Kind, last.Err.Message), 1)
		}
		return cli.Exit("mint cancelled", 1)
	}
}
