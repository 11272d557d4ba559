// Package config loads the pipeline's recognized configuration options
// (spec.md §6) from a YAML file, with every field overridable through
// "os.environ/VAR_NAME" indirection the way auto_ai_router resolves its
// credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object for all three pipeline roles
// (monitor, analyzer, executor) — every role reads the same file and
// ignores sections it does not need.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Executor ExecutorConfig `yaml:"executor"`
	Store    StoreConfig    `yaml:"store"`
	LLM      LLMConfig      `yaml:"llm"`
	Features FeaturesConfig `yaml:"features"`
	Integrations IntegrationsConfig `yaml:"integrations"`
}

// ServerConfig covers process-wide concerns: logging, the optional debug
// HTTP surface, and metrics.
type ServerConfig struct {
	Port              int    `yaml:"port"`
	LoggingLevel      string `yaml:"logging_level"`
	LoggingFormat     string `yaml:"logging_format"` // "pretty" (default) or "json"
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	Project           string `yaml:"project"` // used to build incident source identifiers
}

// MonitorConfig covers Monitor-specific recognized options (spec.md §6).
type MonitorConfig struct {
	DLQNamePattern     string        `yaml:"dlq_name_pattern"`
	MaxMessagesPerPoll int           `yaml:"max_messages_per_poll"`
	VisibilityTimeoutS int           `yaml:"visibility_timeout_s"`
	LongPollWaitS      int           `yaml:"long_poll_wait_s"`
	MaxRetriesMonitor  int           `yaml:"max_retries_monitor"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	LedgerTTLDays      int           `yaml:"ledger_ttl_days"`
	RecordTTLDays      int           `yaml:"record_ttl_days"` // parsed but read by no role; the record store's TTL comes from analyzer.record_ttl_days
	SystemicWindowMS   int           `yaml:"systemic_window_ms"`
	DeploymentWindowS  int           `yaml:"deployment_window_s"`
}

// AnalyzerConfig covers decision-engine tuning knobs.
type AnalyzerConfig struct {
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	SystemicMinSimilar  int           `yaml:"systemic_min_similar"`
	CacheTTLHours       int           `yaml:"cache_ttl_hours"`
	CacheSize           int           `yaml:"cache_size"`
	RecordTTLDays       int           `yaml:"record_ttl_days"`
	// InboundQueueURL is the SQS queue an EventBridge rule routes
	// MessageEnriched events into; the Analyzer polls it the same way the
	// Monitor polls a DLQ.
	InboundQueueURL string `yaml:"inbound_queue_url"`
}

// ExecutorConfig covers action-handler tuning knobs.
type ExecutorConfig struct {
	MaxRetriesExecutor int           `yaml:"max_retries_executor"`
	BackoffBaseS       int           `yaml:"backoff_base_s"`
	BackoffMaxS        int           `yaml:"backoff_max_s"`
	IncidentTimeout    time.Duration `yaml:"incident_timeout"`
	// InboundQueueURL is the SQS queue an EventBridge rule routes
	// MessageClassified events into.
	InboundQueueURL string `yaml:"inbound_queue_url"`
}

// StoreConfig is the Postgres connection pool configuration shared by the
// Ledger and the Classification Record Store, grounded on
// litellmdb/models.Config's connection-pool fields.
type StoreConfig struct {
	DatabaseURL         string        `yaml:"database_url"`
	MaxConns            int32         `yaml:"max_conns"`
	MinConns            int32         `yaml:"min_conns"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
}

// LLMConfig configures the Anthropic classification call.
type LLMConfig struct {
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	APIKey      string        `yaml:"api_key"`
	RPS         float64       `yaml:"rps"` // outbound LLM call rate limit
}

// FeaturesConfig holds the three boolean feature flags named in spec.md §6.
type FeaturesConfig struct {
	AutoReplayEnabled        bool `yaml:"auto_replay_enabled"`
	LLMClassificationEnabled bool `yaml:"llm_classification_enabled"`
	IncidentIntegrationEnabled bool `yaml:"incident_integration_enabled"`
}

// IntegrationsConfig names the external collaborators spec.md §1 calls
// out-of-scope for their internal behavior but that a running deployment
// still needs endpoints and identifiers for.
type IntegrationsConfig struct {
	EventBusName       string `yaml:"event_bus_name"`
	ArchiveBucket      string `yaml:"archive_bucket"`
	AlertTopicARN      string `yaml:"alert_topic_arn"`
	SlackChannel       string `yaml:"slack_channel"`
	IncidentAPIBaseURL string `yaml:"incident_api_base_url"`

	DeploymentAPIBaseURL  string   `yaml:"deployment_api_base_url"`
	DeploymentTokenURL    string   `yaml:"deployment_token_url"`
	DeploymentClientID    string   `yaml:"deployment_client_id"`
	DeploymentClientSecret string  `yaml:"deployment_client_secret"`
	DeploymentScopes      []string `yaml:"deployment_scopes"`
}

// UnmarshalYAML resolves "os.environ/VAR_NAME" indirection across every
// string-typed leaf field, matching auto_ai_router's per-struct
// UnmarshalYAML-with-temp-struct idiom.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Server struct {
			Port              string `yaml:"port"`
			LoggingLevel      string `yaml:"logging_level"`
			LoggingFormat     string `yaml:"logging_format"`
			PrometheusEnabled string `yaml:"prometheus_enabled"`
			Project           string `yaml:"project"`
		} `yaml:"server"`
		Monitor struct {
			DLQNamePattern     string `yaml:"dlq_name_pattern"`
			MaxMessagesPerPoll string `yaml:"max_messages_per_poll"`
			VisibilityTimeoutS string `yaml:"visibility_timeout_s"`
			LongPollWaitS      string `yaml:"long_poll_wait_s"`
			MaxRetriesMonitor  string `yaml:"max_retries_monitor"`
			PollInterval       string `yaml:"poll_interval"`
			LedgerTTLDays      string `yaml:"ledger_ttl_days"`
			RecordTTLDays      string `yaml:"record_ttl_days"`
			SystemicWindowMS   string `yaml:"systemic_window_ms"`
			DeploymentWindowS  string `yaml:"deployment_window_s"`
		} `yaml:"monitor"`
		Analyzer struct {
			ConfidenceThreshold string `yaml:"confidence_threshold"`
			SystemicMinSimilar  string `yaml:"systemic_min_similar"`
			CacheTTLHours       string `yaml:"cache_ttl_hours"`
			CacheSize           string `yaml:"cache_size"`
			RecordTTLDays       string `yaml:"record_ttl_days"`
			InboundQueueURL     string `yaml:"inbound_queue_url"`
		} `yaml:"analyzer"`
		Executor struct {
			MaxRetriesExecutor string `yaml:"max_retries_executor"`
			BackoffBaseS       string `yaml:"backoff_base_s"`
			BackoffMaxS        string `yaml:"backoff_max_s"`
			IncidentTimeout    string `yaml:"incident_timeout"`
			InboundQueueURL    string `yaml:"inbound_queue_url"`
		} `yaml:"executor"`
		Store struct {
			DatabaseURL         string `yaml:"database_url"`
			MaxConns            string `yaml:"max_conns"`
			MinConns            string `yaml:"min_conns"`
			HealthCheckInterval string `yaml:"health_check_interval"`
			ConnectTimeout      string `yaml:"connect_timeout"`
		} `yaml:"store"`
		LLM struct {
			Model       string `yaml:"model"`
			MaxTokens   string `yaml:"max_tokens"`
			Temperature string `yaml:"temperature"`
			Timeout     string `yaml:"timeout"`
			APIKey      string `yaml:"api_key"`
			RPS         string `yaml:"rps"`
		} `yaml:"llm"`
		Features struct {
			AutoReplayEnabled          string `yaml:"auto_replay_enabled"`
			LLMClassificationEnabled   string `yaml:"llm_classification_enabled"`
			IncidentIntegrationEnabled string `yaml:"incident_integration_enabled"`
		} `yaml:"features"`
		Integrations struct {
			EventBusName           string   `yaml:"event_bus_name"`
			ArchiveBucket          string   `yaml:"archive_bucket"`
			AlertTopicARN          string   `yaml:"alert_topic_arn"`
			SlackChannel           string   `yaml:"slack_channel"`
			IncidentAPIBaseURL     string   `yaml:"incident_api_base_url"`
			DeploymentAPIBaseURL   string   `yaml:"deployment_api_base_url"`
			DeploymentTokenURL     string   `yaml:"deployment_token_url"`
			DeploymentClientID     string   `yaml:"deployment_client_id"`
			DeploymentClientSecret string   `yaml:"deployment_client_secret"`
			DeploymentScopes       []string `yaml:"deployment_scopes"`
		} `yaml:"integrations"`
	}

	var t tempConfig
	if err := value.Decode(&t); err != nil {
		return err
	}

	var err error

	c.Server.Port, err = resolveEnvInt(t.Server.Port, 8080)
	if err != nil {
		return fmt.Errorf("invalid server.port: %w", err)
	}
	c.Server.LoggingLevel = resolveEnvString(t.Server.LoggingLevel)
	c.Server.LoggingFormat = resolveEnvString(t.Server.LoggingFormat)
	if c.Server.LoggingFormat == "" {
		c.Server.LoggingFormat = "pretty"
	}
	c.Server.PrometheusEnabled, err = resolveEnvBool(t.Server.PrometheusEnabled, true)
	if err != nil {
		return fmt.Errorf("invalid server.prometheus_enabled: %w", err)
	}
	c.Server.Project = resolveEnvString(t.Server.Project)

	c.Monitor.DLQNamePattern = resolveEnvString(t.Monitor.DLQNamePattern)
	if c.Monitor.DLQNamePattern == "" {
		c.Monitor.DLQNamePattern = "-dlq"
	}
	if c.Monitor.MaxMessagesPerPoll, err = resolveEnvInt(t.Monitor.MaxMessagesPerPoll, 10); err != nil {
		return fmt.Errorf("invalid monitor.max_messages_per_poll: %w", err)
	}
	if c.Monitor.VisibilityTimeoutS, err = resolveEnvInt(t.Monitor.VisibilityTimeoutS, 300); err != nil {
		return fmt.Errorf("invalid monitor.visibility_timeout_s: %w", err)
	}
	if c.Monitor.LongPollWaitS, err = resolveEnvInt(t.Monitor.LongPollWaitS, 10); err != nil {
		return fmt.Errorf("invalid monitor.long_poll_wait_s: %w", err)
	}
	if c.Monitor.MaxRetriesMonitor, err = resolveEnvInt(t.Monitor.MaxRetriesMonitor, 3); err != nil {
		return fmt.Errorf("invalid monitor.max_retries_monitor: %w", err)
	}
	if c.Monitor.PollInterval, err = resolveEnvDuration(t.Monitor.PollInterval, 5*time.Minute); err != nil {
		return fmt.Errorf("invalid monitor.poll_interval: %w", err)
	}
	if c.Monitor.LedgerTTLDays, err = resolveEnvInt(t.Monitor.LedgerTTLDays, 7); err != nil {
		return fmt.Errorf("invalid monitor.ledger_ttl_days: %w", err)
	}
	if c.Monitor.RecordTTLDays, err = resolveEnvInt(t.Monitor.RecordTTLDays, 30); err != nil {
		return fmt.Errorf("invalid monitor.record_ttl_days: %w", err)
	}
	if c.Monitor.SystemicWindowMS, err = resolveEnvInt(t.Monitor.SystemicWindowMS, 900_000); err != nil {
		return fmt.Errorf("invalid monitor.systemic_window_ms: %w", err)
	}
	if c.Monitor.DeploymentWindowS, err = resolveEnvInt(t.Monitor.DeploymentWindowS, 900); err != nil {
		return fmt.Errorf("invalid monitor.deployment_window_s: %w", err)
	}

	if c.Analyzer.ConfidenceThreshold, err = resolveEnvFloat(t.Analyzer.ConfidenceThreshold, 0.85); err != nil {
		return fmt.Errorf("invalid analyzer.confidence_threshold: %w", err)
	}
	if c.Analyzer.SystemicMinSimilar, err = resolveEnvInt(t.Analyzer.SystemicMinSimilar, 10); err != nil {
		return fmt.Errorf("invalid analyzer.systemic_min_similar: %w", err)
	}
	if c.Analyzer.CacheTTLHours, err = resolveEnvInt(t.Analyzer.CacheTTLHours, 1); err != nil {
		return fmt.Errorf("invalid analyzer.cache_ttl_hours: %w", err)
	}
	if c.Analyzer.CacheSize, err = resolveEnvInt(t.Analyzer.CacheSize, 50_000); err != nil {
		return fmt.Errorf("invalid analyzer.cache_size: %w", err)
	}
	if c.Analyzer.RecordTTLDays, err = resolveEnvInt(t.Analyzer.RecordTTLDays, 30); err != nil {
		return fmt.Errorf("invalid analyzer.record_ttl_days: %w", err)
	}
	c.Analyzer.InboundQueueURL = resolveEnvString(t.Analyzer.InboundQueueURL)

	if c.Executor.MaxRetriesExecutor, err = resolveEnvInt(t.Executor.MaxRetriesExecutor, 5); err != nil {
		return fmt.Errorf("invalid executor.max_retries_executor: %w", err)
	}
	if c.Executor.BackoffBaseS, err = resolveEnvInt(t.Executor.BackoffBaseS, 30); err != nil {
		return fmt.Errorf("invalid executor.backoff_base_s: %w", err)
	}
	if c.Executor.BackoffMaxS, err = resolveEnvInt(t.Executor.BackoffMaxS, 900); err != nil {
		return fmt.Errorf("invalid executor.backoff_max_s: %w", err)
	}
	if c.Executor.IncidentTimeout, err = resolveEnvDuration(t.Executor.IncidentTimeout, 10*time.Second); err != nil {
		return fmt.Errorf("invalid executor.incident_timeout: %w", err)
	}
	c.Executor.InboundQueueURL = resolveEnvString(t.Executor.InboundQueueURL)

	c.Store.DatabaseURL = resolveEnvString(t.Store.DatabaseURL)
	maxConns, err := resolveEnvInt(t.Store.MaxConns, 10)
	if err != nil {
		return fmt.Errorf("invalid store.max_conns: %w", err)
	}
	c.Store.MaxConns = int32(maxConns)
	minConns, err := resolveEnvInt(t.Store.MinConns, 2)
	if err != nil {
		return fmt.Errorf("invalid store.min_conns: %w", err)
	}
	c.Store.MinConns = int32(minConns)
	if c.Store.HealthCheckInterval, err = resolveEnvDuration(t.Store.HealthCheckInterval, 10*time.Second); err != nil {
		return fmt.Errorf("invalid store.health_check_interval: %w", err)
	}
	if c.Store.ConnectTimeout, err = resolveEnvDuration(t.Store.ConnectTimeout, 5*time.Second); err != nil {
		return fmt.Errorf("invalid store.connect_timeout: %w", err)
	}

	c.LLM.Model = resolveEnvString(t.LLM.Model)
	if c.LLM.MaxTokens, err = resolveEnvInt(t.LLM.MaxTokens, 512); err != nil {
		return fmt.Errorf("invalid llm.max_tokens: %w", err)
	}
	if c.LLM.Temperature, err = resolveEnvFloat(t.LLM.Temperature, 0.2); err != nil {
		return fmt.Errorf("invalid llm.temperature: %w", err)
	}
	if c.LLM.Timeout, err = resolveEnvDuration(t.LLM.Timeout, 10*time.Second); err != nil {
		return fmt.Errorf("invalid llm.timeout: %w", err)
	}
	c.LLM.APIKey = resolveEnvString(t.LLM.APIKey)
	if c.LLM.RPS, err = resolveEnvFloat(t.LLM.RPS, 5); err != nil {
		return fmt.Errorf("invalid llm.rps: %w", err)
	}

	if c.Features.AutoReplayEnabled, err = resolveEnvBool(t.Features.AutoReplayEnabled, true); err != nil {
		return fmt.Errorf("invalid features.auto_replay_enabled: %w", err)
	}
	if c.Features.LLMClassificationEnabled, err = resolveEnvBool(t.Features.LLMClassificationEnabled, true); err != nil {
		return fmt.Errorf("invalid features.llm_classification_enabled: %w", err)
	}
	if c.Features.IncidentIntegrationEnabled, err = resolveEnvBool(t.Features.IncidentIntegrationEnabled, true); err != nil {
		return fmt.Errorf("invalid features.incident_integration_enabled: %w", err)
	}

	c.Integrations.EventBusName = resolveEnvString(t.Integrations.EventBusName)
	c.Integrations.ArchiveBucket = resolveEnvString(t.Integrations.ArchiveBucket)
	c.Integrations.AlertTopicARN = resolveEnvString(t.Integrations.AlertTopicARN)
	c.Integrations.SlackChannel = resolveEnvString(t.Integrations.SlackChannel)
	c.Integrations.IncidentAPIBaseURL = resolveEnvString(t.Integrations.IncidentAPIBaseURL)
	c.Integrations.DeploymentAPIBaseURL = resolveEnvString(t.Integrations.DeploymentAPIBaseURL)
	c.Integrations.DeploymentTokenURL = resolveEnvString(t.Integrations.DeploymentTokenURL)
	c.Integrations.DeploymentClientID = resolveEnvString(t.Integrations.DeploymentClientID)
	c.Integrations.DeploymentClientSecret = resolveEnvString(t.Integrations.DeploymentClientSecret)
	c.Integrations.DeploymentScopes = make([]string, len(t.Integrations.DeploymentScopes))
	for i, scope := range t.Integrations.DeploymentScopes {
		c.Integrations.DeploymentScopes[i] = resolveEnvString(scope)
	}

	return nil
}

// Load reads and validates a pipeline configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks cross-field invariants the per-field UnmarshalYAML
// defaults cannot express on their own.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Monitor.MaxMessagesPerPoll <= 0 || c.Monitor.MaxMessagesPerPoll > 10 {
		return fmt.Errorf("invalid monitor.max_messages_per_poll: %d (must be 1-10)", c.Monitor.MaxMessagesPerPoll)
	}
	if c.Monitor.LongPollWaitS < 0 || c.Monitor.LongPollWaitS > 20 {
		return fmt.Errorf("invalid monitor.long_poll_wait_s: %d", c.Monitor.LongPollWaitS)
	}
	if c.Analyzer.ConfidenceThreshold < 0 || c.Analyzer.ConfidenceThreshold > 1 {
		return fmt.Errorf("invalid analyzer.confidence_threshold: %f", c.Analyzer.ConfidenceThreshold)
	}
	if c.Executor.BackoffBaseS <= 0 || c.Executor.BackoffMaxS <= 0 || c.Executor.BackoffBaseS > c.Executor.BackoffMaxS {
		return fmt.Errorf("invalid executor backoff bounds: base=%d max=%d", c.Executor.BackoffBaseS, c.Executor.BackoffMaxS)
	}
	if c.Features.LLMClassificationEnabled && c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required when features.llm_classification_enabled is true")
	}
	return nil
}
