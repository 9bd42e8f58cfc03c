// Package config loads and validates the engine configuration using Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/allele-interp-engine/internal/domain"
)

// Manager loads, validates and exposes the application configuration.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults.
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/allele-interp-engine/")

	viper.SetEnvPrefix("INTERP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars apply without one.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyEngineDefaults(&config.Engine)

	m.config = config
	return nil
}

// setDefaults sets default configuration values.
func (m *Manager) setDefaults() {
	// Engine defaults
	viper.SetDefault("engine.acmg.pathogenic_ladder", []string{"PVS", "PS", "PM", "PP"})
	viper.SetDefault("engine.acmg.benign_ladder", []string{"BA", "BS", "BP"})
	viper.SetDefault("engine.ignore_reference_pubmed_ids", []int64{})
	viper.SetDefault("engine.comment_debounce", "200ms")
	viper.SetDefault("engine.consequence_priority", []string{
		"transcript_ablation",
		"splice_donor_variant",
		"splice_acceptor_variant",
		"stop_gained",
		"frameshift_variant",
		"start_lost",
		"initiator_codon_variant",
		"stop_lost",
		"inframe_insertion",
		"inframe_deletion",
		"missense_variant",
		"protein_altering_variant",
		"transcript_amplification",
		"splice_region_variant",
		"incomplete_terminal_codon_variant",
		"synonymous_variant",
		"stop_retained_variant",
		"coding_sequence_variant",
		"mature_miRNA_variant",
		"5_prime_UTR_variant",
		"3_prime_UTR_variant",
		"non_coding_transcript_exon_variant",
		"non_coding_transcript_variant",
		"intron_variant",
		"upstream_gene_variant",
		"downstream_gene_variant",
		"regulatory_region_variant",
		"intergenic_variant",
	})

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "interp_engine")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "./migrations")

	// Store defaults
	viper.SetDefault("store.path", "./data/interpretations.db")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// applyEngineDefaults fills in the structured engine defaults viper cannot
// express as flat keys: classification options and finalize requirements.
func applyEngineDefaults(engine *domain.EngineConfig) {
	if len(engine.Classification.Options) == 0 {
		engine.Classification.Options = []domain.ClassificationOption{
			{Value: "5", Name: "Pathogenic", OutdatedAfterDays: 180},
			{Value: "4", Name: "Likely pathogenic", OutdatedAfterDays: 180},
			{Value: "3", Name: "Uncertain significance", OutdatedAfterDays: 180},
			{Value: "2", Name: "Likely benign"},
			{Value: "1", Name: "Benign"},
			{Value: "U", Name: "Unclassified"},
			{Value: "RF", Name: "Risk factor"},
			{Value: "DR", Name: "Drug response"},
			{Value: "NP", Name: "Not provided"},
		}
	}
	if engine.FinalizeRequirements == nil {
		engine.FinalizeRequirements = map[domain.WorkflowType]domain.FinalizeRequirements{
			domain.ANALYSIS: {WorkflowStatus: []domain.WorkflowStatus{domain.REVIEW, domain.MEDICAL_REVIEW}},
			domain.ALLELE:   {WorkflowStatus: []domain.WorkflowStatus{domain.INTERPRETATION}},
		}
	}
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetEngineConfig returns the engine configuration.
func (m *Manager) GetEngineConfig() *domain.EngineConfig {
	return &m.config.Engine
}

// GetDatabaseConfig returns database configuration.
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// Reload reloads the configuration.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration.
func (m *Manager) Validate() error {
	config := m.config

	if len(config.Engine.Classification.Options) == 0 {
		return fmt.Errorf("at least one classification option is required")
	}
	seen := make(map[string]bool)
	for _, opt := range config.Engine.Classification.Options {
		if opt.Value == "" {
			return fmt.Errorf("classification option with empty value")
		}
		if seen[opt.Value] {
			return fmt.Errorf("duplicate classification option: %s", opt.Value)
		}
		seen[opt.Value] = true
		if opt.OutdatedAfterDays < 0 {
			return fmt.Errorf("classification option %s: outdated_after_days must not be negative", opt.Value)
		}
	}

	if len(config.Engine.ACMG.PathogenicLadder) == 0 {
		return fmt.Errorf("pathogenic strength ladder is required")
	}
	if len(config.Engine.ACMG.BenignLadder) == 0 {
		return fmt.Errorf("benign strength ladder is required")
	}

	for wt, req := range config.Engine.FinalizeRequirements {
		if !wt.IsValid() {
			return fmt.Errorf("finalize requirements for unknown workflow type: %s", wt)
		}
		for _, ws := range req.WorkflowStatus {
			if !ws.IsValid() {
				return fmt.Errorf("finalize requirements for %s: invalid workflow status %s", wt, ws)
			}
		}
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string.
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the URL form used by the migration runner.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}
