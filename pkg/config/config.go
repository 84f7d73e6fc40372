package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
)

// DefaultPath is where Load looks for the configuration file when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for ticketsync.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values.
type Config struct {
	Version string `yaml:"-"` // Set at load time, not from config

	// Portal login
	Credentials CredentialsConfig `yaml:"credentials"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	Portal    PortalConfig    `yaml:"portal"`
	Browser   BrowserConfig   `yaml:"browser"`
	Storage   StorageConfig   `yaml:"storage"`
	Download  DownloadConfig  `yaml:"download"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Parser    ParserConfig    `yaml:"parser"`
	Converter ConverterConfig `yaml:"converter"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// CredentialsConfig holds the portal account used to log in.
type CredentialsConfig struct {
	User string `yaml:"user" env:"PORTAL_USER" env-default:""`
	Pass string `yaml:"pass" env:"PORTAL_PASSWORD" env-default:""`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"tickets"`
	Password string `yaml:"password" env:"PGPASSWORD" env-default:""`
	Database string `yaml:"database" env:"PGDATABASE" env-default:"tickets"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// ConnectTimeout bounds every per-operation connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"PGCONNECT_TIMEOUT" env-default:"10s"`
	// ConnectRetries is how many times startup retries an unreachable database.
	ConnectRetries int `yaml:"connect_retries" env:"PGCONNECT_RETRIES" env-default:"3"`
}

// PortalConfig describes the target site: its URLs, the element selectors the
// pipeline depends on and the texts it checks for.
type PortalConfig struct {
	LoginURL     string `yaml:"login_url" env:"PORTAL_LOGIN_URL" env-default:"https://mundoconsum.consum.es/auth/index"`
	TicketsURL   string `yaml:"tickets_url" env:"PORTAL_TICKETS_URL" env-default:"https://mundoconsum.consum.es/es/personal/tickets"`
	TicketsFrame string `yaml:"tickets_frame_url" env:"PORTAL_TICKETS_FRAME_URL" env-default:"https://nomastickets.consum.es/app/mytickets.html"`

	LoginTitle   string `yaml:"login_title" env-default:"Consum"`
	TicketsTitle string `yaml:"tickets_title" env-default:"Tickets"`

	// EndOfListText is the sentinel shown once the whole ticket history is loaded.
	EndOfListText string `yaml:"end_of_list_text" env:"PORTAL_END_OF_LIST_TEXT" env-default:"Tickets de los últimos 90 días."`

	Selectors SelectorConfig `yaml:"selectors"`
}

// SelectorConfig holds CSS selectors for the portal elements.
type SelectorConfig struct {
	CookieAccept string `yaml:"cookie_accept" env-default:"#onetrust-accept-btn-handler"`
	Username     string `yaml:"username" env-default:"#login"`
	Password     string `yaml:"password" env-default:"#password"`
	Submit       string `yaml:"submit" env-default:".btn_generico_orange"`
	ListItem     string `yaml:"list_item" env-default:".panel-default"`
	ListEnd      string `yaml:"list_end" env-default:".pullUpLabel"`
	ListHeader   string `yaml:"list_header" env-default:".l10n-tickets"`
	TicketMenu   string `yaml:"ticket_menu" env-default:"#menu-puntos"`
	DownloadItem string `yaml:"download_item" env-default:"#dropdown1"`
}

// BrowserConfig controls the automated browser session.
type BrowserConfig struct {
	// Headed shows the browser window. The default is headless and sandboxless.
	Headed   bool   `yaml:"headed" env:"BROWSER_HEADED" env-default:"false"`
	Sandbox  bool   `yaml:"sandbox" env:"BROWSER_SANDBOX" env-default:"false"`
	ExecPath string `yaml:"exec_path" env:"BROWSER_EXEC_PATH" env-default:""`
	// ImplicitWait is how long element lookups wait for the element to appear.
	ImplicitWait time.Duration `yaml:"implicit_wait" env:"BROWSER_IMPLICIT_WAIT" env-default:"10s"`
	WindowWidth  int           `yaml:"window_width" env-default:"1920"`
	WindowHeight int           `yaml:"window_height" env-default:"1080"`
}

// StorageConfig holds filesystem locations.
type StorageConfig struct {
	// TicketsDir holds <id>.pdf downloads and their <id>.txt conversions.
	TicketsDir  string `yaml:"tickets_dir" env:"TICKETS_DIR" env-default:"data/tickets"`
	ErrorLogDir string `yaml:"error_log_dir" env:"ERROR_LOG_DIR" env-default:"data/logs"`
	// TextPattern selects converted tickets inside TicketsDir.
	TextPattern string `yaml:"text_pattern" env-default:"*.txt"`
}

// DownloadConfig controls how a finished download is located.
type DownloadConfig struct {
	// PendingName is the file name the portal gives every downloaded ticket.
	PendingName     string        `yaml:"pending_name" env-default:"ticket.pdf"`
	PollInterval    time.Duration `yaml:"poll_interval" env-default:"1s"`
	MaxWaitAttempts int           `yaml:"max_wait_attempts" env-default:"120"`
}

// DiscoveryConfig bounds the ticket list walk.
type DiscoveryConfig struct {
	// LocateAttempts is how many scroll-and-retry rounds are spent finding
	// an item that the list has virtualized away.
	LocateAttempts int           `yaml:"locate_attempts" env-default:"20"`
	LocateInterval time.Duration `yaml:"locate_interval" env-default:"500ms"`
	// MaxScrollCycles stops a walk that never reaches the end-of-list text. 0 disables the limit.
	MaxScrollCycles int `yaml:"max_scroll_cycles" env:"DISCOVERY_MAX_SCROLL_CYCLES" env-default:"1000"`
}

// ParserConfig describes the fixed-width receipt layout.
type ParserConfig struct {
	StartLine int `yaml:"start_line" env-default:"7"`
	// Column ranges are [start, end) rune offsets.
	Quantity    []int    `yaml:"quantity" env-default:"0,5"`
	Product     []int    `yaml:"product" env-default:"5,25"`
	PVP         []int    `yaml:"pvp" env-default:"26,32"`
	Total       []int    `yaml:"total" env-default:"32,38"`
	Terminators []string `yaml:"terminators" env-default:"2902614104014,2911866831005"`
	// Encoding of converted text files: utf-8, iso-8859-1 or windows-1252.
	Encoding string `yaml:"encoding" env-default:"utf-8"`
	// StrictRows rejects a whole ticket when any product row is narrower than the layout.
	StrictRows bool `yaml:"strict_rows" env:"PARSER_STRICT_ROWS" env-default:"false"`
}

// ConverterConfig controls the PDF to text conversion step.
type ConverterConfig struct {
	// Disabled skips conversion when an external step produces the text files.
	Disabled bool     `yaml:"disabled" env:"CONVERTER_DISABLED" env-default:"false"`
	Command  string   `yaml:"command" env:"CONVERTER_COMMAND" env-default:"pdftotext"`
	Args     []string `yaml:"args" env-default:"-layout"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
}

// MetricsConfig controls the end-of-run metrics textfile.
type MetricsConfig struct {
	// Textfile is written in Prometheus exposition format when set.
	Textfile string `yaml:"textfile" env:"METRICS_TEXTFILE" env-default:""`
}

// Load reads configuration from path (config.yaml when empty) with environment
// variable overrides. A missing file falls back to environment and defaults.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", apperrors.ErrConfig, path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to read environment: %v", apperrors.ErrConfig, err)
		}
	} else {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings every stage needs.
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("%w: database host and database name are required", apperrors.ErrConfig)
	}
	if c.Storage.TicketsDir == "" {
		return fmt.Errorf("%w: storage.tickets_dir is required", apperrors.ErrConfig)
	}
	if c.Parser.StartLine < 0 {
		return fmt.Errorf("%w: parser.start_line must not be negative", apperrors.ErrConfig)
	}
	for name, cols := range map[string][]int{
		"quantity": c.Parser.Quantity,
		"product":  c.Parser.Product,
		"pvp":      c.Parser.PVP,
		"total":    c.Parser.Total,
	} {
		if len(cols) != 2 || cols[0] < 0 || cols[1] < cols[0] {
			return fmt.Errorf("%w: parser.%s columns %v are not a valid range", apperrors.ErrConfig, name, cols)
		}
	}
	return nil
}

// ValidateDiscovery checks the settings needed to drive the portal.
// Credentials are only required when the browser stage runs.
func (c *Config) ValidateDiscovery() error {
	if c.Credentials.User == "" || c.Credentials.Pass == "" {
		return fmt.Errorf("%w: credentials section missing (credentials.user and credentials.pass)", apperrors.ErrConfig)
	}
	if c.Portal.EndOfListText == "" {
		return fmt.Errorf("%w: portal.end_of_list_text is required", apperrors.ErrConfig)
	}
	if c.Download.PendingName == "" {
		return fmt.Errorf("%w: download.pending_name is required", apperrors.ErrConfig)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.ResolvedHost(), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Defaults returns a Config populated only from env-default tags.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// Render marshals cfg to YAML with secrets blanked, suitable for a starter config.yaml.
func Render(cfg *Config) ([]byte, error) {
	out := *cfg
	out.Credentials.Pass = ""
	out.Database.Password = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return data, nil
}
