package domain

import "time"

// ClassificationOption is one selectable classification value. OutdatedAfterDays
// controls when a persisted assessment with this value is flagged as outdated;
// zero means it never goes stale.
type ClassificationOption struct {
	Value             string `mapstructure:"value" json:"value"`
	Name              string `mapstructure:"name" json:"name"`
	OutdatedAfterDays int    `mapstructure:"outdated_after_days" json:"outdated_after_days"`
}

// ClassificationConfig lists the classification options in strength order,
// strongest first. The list order doubles as the sort order for the
// classification sort key.
type ClassificationConfig struct {
	Options []ClassificationOption `mapstructure:"options" json:"options"`
}

// Option looks up an option by value.
func (c ClassificationConfig) Option(value string) (ClassificationOption, bool) {
	for _, opt := range c.Options {
		if opt.Value == value {
			return opt, true
		}
	}
	return ClassificationOption{}, false
}

// StrengthIndex returns the position of a classification value in the
// configured option order, or the list length for unknown values so they sort
// last.
func (c ClassificationConfig) StrengthIndex(value string) int {
	for i, opt := range c.Options {
		if opt.Value == value {
			return i
		}
	}
	return len(c.Options)
}

// ACMGConfig holds the per-category strength ladders, ordered strongest
// first. Upgrading a code moves it one rung toward index zero within its
// category ladder.
type ACMGConfig struct {
	PathogenicLadder []string `mapstructure:"pathogenic_ladder" json:"pathogenic_ladder"`
	BenignLadder     []string `mapstructure:"benign_ladder" json:"benign_ladder"`
}

// Ladder returns the strength ladder for a code category.
func (a ACMGConfig) Ladder(category CodeCategory) []string {
	if category == BENIGN_CODE {
		return a.BenignLadder
	}
	return a.PathogenicLadder
}

// LadderIndex returns the rung of a strength within the category ladder, or
// -1 when the strength is not on the ladder.
func (a ACMGConfig) LadderIndex(category CodeCategory, strength string) int {
	for i, s := range a.Ladder(category) {
		if s == strength {
			return i
		}
	}
	return -1
}

// FinalizeRequirements gates when a round may be finalized for a workflow
// type.
type FinalizeRequirements struct {
	WorkflowStatus []WorkflowStatus `mapstructure:"workflow_status" json:"workflow_status"`
}

// AllowsWorkflowStatus reports whether the given status satisfies the
// requirement set.
func (f FinalizeRequirements) AllowsWorkflowStatus(ws WorkflowStatus) bool {
	for _, allowed := range f.WorkflowStatus {
		if allowed == ws {
			return true
		}
	}
	return false
}

// EngineConfig is the domain configuration consumed by the engine components.
type EngineConfig struct {
	Classification           ClassificationConfig                  `mapstructure:"classification"`
	ACMG                     ACMGConfig                            `mapstructure:"acmg"`
	IgnoreReferencePubmedIDs []int64                               `mapstructure:"ignore_reference_pubmed_ids"`
	FinalizeRequirements     map[WorkflowType]FinalizeRequirements `mapstructure:"finalize_requirements"`
	ConsequencePriority      []string                              `mapstructure:"consequence_priority"`
	CommentDebounce          time.Duration                         `mapstructure:"comment_debounce"`
}

// FinalizeRequirementsFor returns the requirements for a workflow type.
func (e EngineConfig) FinalizeRequirementsFor(wt WorkflowType) (FinalizeRequirements, bool) {
	req, ok := e.FinalizeRequirements[wt]
	return req, ok
}

// DatabaseConfig represents the postgres connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// StoreConfig configures the standalone sqlite store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Config is the main application configuration.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}
