package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/slack-go/slack"

	"github.com/dlqrecover/pipeline/internal/alert"
	"github.com/dlqrecover/pipeline/internal/analyzer"
	"github.com/dlqrecover/pipeline/internal/bus"
	"github.com/dlqrecover/pipeline/internal/classifier"
	"github.com/dlqrecover/pipeline/internal/config"
	"github.com/dlqrecover/pipeline/internal/deployment"
	"github.com/dlqrecover/pipeline/internal/executor"
	"github.com/dlqrecover/pipeline/internal/featureflag"
	"github.com/dlqrecover/pipeline/internal/httpapi"
	"github.com/dlqrecover/pipeline/internal/incident"
	"github.com/dlqrecover/pipeline/internal/ledger"
	"github.com/dlqrecover/pipeline/internal/llm"
	"github.com/dlqrecover/pipeline/internal/logger"
	"github.com/dlqrecover/pipeline/internal/metrics"
	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/monitor"
	"github.com/dlqrecover/pipeline/internal/objectstore"
	"github.com/dlqrecover/pipeline/internal/pgpool"
	"github.com/dlqrecover/pipeline/internal/queue"
	"github.com/dlqrecover/pipeline/internal/store"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	role := flag.String("role", "all", "Pipeline role to run: monitor, analyzer, executor, or all")
	httpAddr := flag.String("http", "", "Optional debug HTTP surface address, e.g. :8090 (empty disables it)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.LoggingLevel, cfg.Server.LoggingFormat)
	log.Info("starting dlqrecover", "version", Version, "commit", Commit, "role", *role)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("failed to load aws config", "error", err)
		os.Exit(1)
	}

	pool, err := pgpool.New(ctx, pgpool.Config{
		DatabaseURL:         cfg.Store.DatabaseURL,
		MaxConns:            cfg.Store.MaxConns,
		MinConns:            cfg.Store.MinConns,
		HealthCheckInterval: cfg.Store.HealthCheckInterval,
		ConnectTimeout:      cfg.Store.ConnectTimeout,
		Logger:              log,
	})
	if err != nil {
		log.Error("failed to connect to record store", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	records := store.NewPostgresRecordStore(pool, time.Duration(cfg.Analyzer.RecordTTLDays)*24*time.Hour)
	led := ledger.NewPostgresLedger(pool, time.Duration(cfg.Monitor.LedgerTTLDays)*24*time.Hour)
	cache, err := store.NewSemanticCache(cfg.Analyzer.CacheSize, time.Duration(cfg.Analyzer.CacheTTLHours)*time.Hour)
	if err != nil {
		log.Error("failed to build semantic cache", "error", err)
		os.Exit(1)
	}

	flags := featureflag.NewStatic(cfg.Features.AutoReplayEnabled, cfg.Features.LLMClassificationEnabled, cfg.Features.IncidentIntegrationEnabled)

	sqsClient := queue.NewSQSClient(sqs.NewFromConfig(awsCfg))
	publisher := bus.NewEventBridgePublisher(eventbridge.NewFromConfig(awsCfg), cfg.Integrations.EventBusName, log)
	metricsReg := metrics.New(cfg.Server.PrometheusEnabled)

	var wg sync.WaitGroup

	switch *role {
	case "monitor":
		runMonitor(ctx, &wg, cfg, sqsClient, led, records, publisher, metricsReg, log)
	case "analyzer":
		runAnalyzer(ctx, &wg, cfg, sqsClient, cache, records, publisher, flags, metricsReg, log)
	case "executor":
		runExecutor(ctx, &wg, cfg, awsCfg, sqsClient, records, metricsReg, log)
	case "all":
		runMonitor(ctx, &wg, cfg, sqsClient, led, records, publisher, metricsReg, log)
		runAnalyzer(ctx, &wg, cfg, sqsClient, cache, records, publisher, flags, metricsReg, log)
		runExecutor(ctx, &wg, cfg, awsCfg, sqsClient, records, metricsReg, log)
	default:
		log.Error("unknown role", "role", *role)
		os.Exit(1)
	}

	var httpServer *http.Server
	if *httpAddr != "" {
		httpServer = &http.Server{Addr: *httpAddr, Handler: httpapi.New(records, log).Handler()}
		go func() {
			log.Info("debug http surface listening", "addr", *httpAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("debug http surface failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("debug http surface forced to shutdown", "error", err)
		}
	}

	wg.Wait()
	log.Info("shutdown complete")
}

// runMonitor spawns the Monitor's discover-and-poll loop, ticking on
// cfg.Monitor.PollInterval until ctx is canceled.
func runMonitor(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, q queue.Client, led ledger.Ledger, records store.RecordStore, publisher bus.Publisher, m *metrics.Metrics, log *slog.Logger) {
	var deployLookup deployment.Lookup
	if cfg.Integrations.DeploymentAPIBaseURL != "" {
		deployLookup = deployment.NewHTTPLookup(deployment.Config{
			BaseURL:      cfg.Integrations.DeploymentAPIBaseURL,
			TokenURL:     cfg.Integrations.DeploymentTokenURL,
			ClientID:     cfg.Integrations.DeploymentClientID,
			ClientSecret: cfg.Integrations.DeploymentClientSecret,
			Scopes:       cfg.Integrations.DeploymentScopes,
		})
	}

	mon := monitor.New(monitor.Config{
		DLQNamePattern:     cfg.Monitor.DLQNamePattern,
		MaxMessagesPerPoll: cfg.Monitor.MaxMessagesPerPoll,
		VisibilityTimeoutS: cfg.Monitor.VisibilityTimeoutS,
		LongPollWaitS:      cfg.Monitor.LongPollWaitS,
		HardCapRetries:     cfg.Monitor.MaxRetriesMonitor,
		DeploymentWindow:   time.Duration(cfg.Monitor.DeploymentWindowS) * time.Second,
		SimilarWindow:      time.Duration(cfg.Monitor.SystemicWindowMS) * time.Millisecond,
	}, q, led, records, deployLookup, publisher, m, log)

	wg.Add(1)
	go func() {
		defer wg.Done()
		interval := cfg.Monitor.PollInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		runOnce := func() {
			if err := mon.Run(ctx); err != nil {
				log.Error("monitor run failed", "error", err)
			}
		}
		runOnce()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()
}

// runAnalyzer polls the inbound MessageEnriched queue and hands each
// message to the Analyzer, deleting only on success so a crash redelivers.
func runAnalyzer(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, q queue.Client, cache *store.SemanticCache, records store.RecordStore, publisher bus.Publisher, flags *featureflag.Static, m *metrics.Metrics, log *slog.Logger) {
	var llmClassifier llm.Classifier
	if cfg.LLM.APIKey != "" && cfg.LLM.Model != "" {
		llmClassifier = llm.NewAnthropicClassifier(
			llm.NewAnthropicSDKClient(cfg.LLM.APIKey, cfg.LLM.Model),
			int64(cfg.LLM.MaxTokens), cfg.LLM.Temperature, cfg.LLM.Timeout, cfg.LLM.RPS,
		)
	}

	c := classifier.New(classifier.Config{
		ConfidenceThreshold: cfg.Analyzer.ConfidenceThreshold,
		SystemicMinSimilar:  cfg.Analyzer.SystemicMinSimilar,
		CacheTTL:            time.Duration(cfg.Analyzer.CacheTTLHours) * time.Hour,
		MaxRetriesExecutor:  cfg.Executor.MaxRetriesExecutor,
		ModelName:           cfg.LLM.Model,
	}, cache, llmClassifier, flags.LLMClassificationEnabled)

	a := analyzer.New(analyzer.Config{
		RecordTTL: time.Duration(cfg.Analyzer.RecordTTLDays) * 24 * time.Hour,
	}, c, records, cache, publisher, m, log)

	wg.Add(1)
	go runConsumerLoop(ctx, wg, q, cfg.Analyzer.InboundQueueURL, cfg.Monitor.LongPollWaitS, log, func(ctx context.Context, body []byte) error {
		var msg model.EnrichedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("analyzer: decode enriched message: %w", err)
		}
		return a.Handle(ctx, msg)
	})
}

// runExecutor polls the inbound MessageClassified queue and hands each
// event to the Executor, dispatching to replay/archive/escalate handlers.
func runExecutor(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, awsCfg aws.Config, q queue.Client, records store.RecordStore, m *metrics.Metrics, log *slog.Logger) {
	objectStore := objectstore.NewStore(s3.NewFromConfig(awsCfg), cfg.Integrations.ArchiveBucket)

	var slackClient *slack.Client
	if cfg.Integrations.SlackChannel != "" && os.Getenv("SLACK_BOT_TOKEN") != "" {
		slackClient = slack.New(os.Getenv("SLACK_BOT_TOKEN"))
	}
	alerts := alert.NewPublisher(sns.NewFromConfig(awsCfg), cfg.Integrations.AlertTopicARN, slackClient, cfg.Integrations.SlackChannel, log)

	incidents := incident.NewClient(cfg.Integrations.IncidentAPIBaseURL, os.Getenv("INCIDENT_API_KEY"), log)

	ex := executor.New(executor.Config{
		MaxRetriesExecutor: cfg.Executor.MaxRetriesExecutor,
		BackoffBaseS:       cfg.Executor.BackoffBaseS,
		BackoffMaxS:        cfg.Executor.BackoffMaxS,
		Project:            cfg.Server.Project,
	}, q, objectStore, alerts, incidents, records, m, log)

	wg.Add(1)
	go runConsumerLoop(ctx, wg, q, cfg.Executor.InboundQueueURL, cfg.Monitor.LongPollWaitS, log, func(ctx context.Context, body []byte) error {
		var detail bus.ClassifiedDetail
		if err := json.Unmarshal(body, &detail); err != nil {
			return fmt.Errorf("executor: decode classified detail: %w", err)
		}
		return ex.Handle(ctx, detail)
	})
}

// runConsumerLoop long-polls url for messages and hands each body to
// handle, deleting only on success — the same at-least-once, delete-after-
// success discipline the Monitor uses against its DLQs.
func runConsumerLoop(ctx context.Context, wg *sync.WaitGroup, q queue.Client, url string, waitSeconds int, log *slog.Logger, handle func(context.Context, []byte) error) {
	defer wg.Done()

	if url == "" {
		log.Warn("inbound queue url not configured, consumer loop disabled")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := q.Receive(ctx, url, 10, waitSeconds, 60)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("consumer loop receive failed", "url", url, "error", err)
			continue
		}

		for _, msg := range messages {
			if err := handle(ctx, msg.Body); err != nil {
				log.Error("consumer loop handler failed", "url", url, "message_id", msg.MessageID, "error", err)
				continue
			}
			if err := q.Delete(ctx, url, msg.ReceiptHandle); err != nil {
				log.Error("consumer loop delete failed", "url", url, "message_id", msg.MessageID, "error", err)
			}
		}
	}
}
