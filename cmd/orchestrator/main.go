package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tuneframe/orchestrator/internal/chain"
	"github.com/tuneframe/orchestrator/internal/ledger"
	"github.com/tuneframe/orchestrator/internal/notify"
	"github.com/tuneframe/orchestrator/internal/observability"
	"github.com/tuneframe/orchestrator/internal/payments"
	"github.com/tuneframe/orchestrator/internal/pipeline"
	"github.com/tuneframe/orchestrator/pkg/config"
)

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig("config.json")

	stages, err := config.LoadStages("stages.yaml")
	if err != nil {
		log.Fatal(err)
	}

	logger := observability.NewLogger()

	journal, err := notify.NewJournal(cfg.Journal.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer journal.Close()

	// Narration sinks. At least one gateway must be enabled or the
	// pipeline would run silently.
	var sinks []notify.Messenger
	if tgCfg, ok := cfg.GetTelegramConfig(); ok {
		tg, err := notify.NewTelegramMessenger(tgCfg.Token)
		if err != nil {
			log.Fatal(err)
		}
		sinks = append(sinks, tg)
	}
	if dcCfg, ok := cfg.GetDiscordConfig(); ok {
		dc, err := notify.NewDiscordMessenger(dcCfg.Token)
		if err != nil {
			log.Fatal(err)
		}
		sinks = append(sinks, dc)
	}
	if len(sinks) == 0 {
		log.Fatal("No narration gateway is enabled in config")
	}

	// The rephraser is optional: without an enabled provider, raw
	// status messages go out verbatim.
	var rephraser *notify.Rephraser
	if pName, pCfg := cfg.GetDefaultProvider(); pName != "" {
		switch pName {
		case "openai", "openrouter":
			opts := []openai.Option{
				openai.WithToken(pCfg.APIKey),
				openai.WithModel(pCfg.Model),
			}
			if pCfg.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
			}
			llm, err := openai.New(opts...)
			if err != nil {
				log.Fatal(err)
			}
			rephraser = notify.NewRephraser(llm)
		default:
			log.Printf("Warning: provider %s not supported, narrating without rephrasing", pName)
		}
	}

	notifier := notify.NewNotifier(journal, rephraser, sinks, cfg.App.ChatID, logger)
	defer notifier.Close()

	eth, err := chain.NewETHClient(cfg.Chain.RPCURL, cfg.Chain.ChainID, cfg.Chain.PrivateKey,
		common.HexToAddress(cfg.Chain.RouterAddress), common.HexToAddress(cfg.Chain.PoolAddress))
	if err != nil {
		log.Fatal(err)
	}

	client := ledger.NewClient(cfg.Ledger.BaseURL, cfg.Ledger.APIKey)
	ownPlan := payments.NewPlanAccount(cfg.Ledger.OwnPlanID, client)
	settle := payments.NewProtocol(client, eth, eth.Wallet(),
		common.HexToAddress(cfg.Chain.RouterAddress), ownPlan, notifier, logger)

	engine := pipeline.NewEngine(client, settle, notifier, stages, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go client.Subscribe(ctx, func(evt ledger.Event) {
		go engine.HandleEvent(ctx, evt)
	}, []string{ledger.EventStepUpdated})

	// Live dashboard (1-second updates).
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				logger.LogHeartbeat()
			}
		}
	}()

	log.Printf("[ BOOT ] %s listening for pipeline steps", cfg.App.Name)

	// Wait for shutdown signal
	<-ctx.Done()

	// Reset terminal aesthetics
	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] ORCHESTRATOR DE-INITIALIZED. GOODBYE.\033[0m")
}
