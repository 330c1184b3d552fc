package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "config.yml"

// Config holds all application configuration.
type Config struct {
	// URL is the report portal page.
	URL string `yaml:"url"`

	// ElementInfo maps input box names to DOM element IDs.
	ElementInfo ElementInfo `yaml:"element_info"`

	// TableDivID is the ID of the element that holds the rendered report.
	TableDivID string `yaml:"table_div_id"`

	// ViewReport is the ID of the button that renders the report.
	ViewReport string `yaml:"view_report"`

	// TopCodeOptions is the CSS selector matching the top code drop-down items.
	TopCodeOptions string `yaml:"top_code_options"`

	Forms     []string `yaml:"forms"`
	Colleges  []string `yaml:"colleges"`
	Districts []string `yaml:"districts"`
	Years     []string `yaml:"years"`

	Paths    PathsConfig    `yaml:"paths"`
	Scraping ScrapingConfig `yaml:"scraping_params"`
	Browser  BrowserConfig  `yaml:"browser"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

// ElementInfo holds the DOM IDs of the report parameter input boxes.
type ElementInfo struct {
	FormType        string `yaml:"form_type"`
	DistrictCollege string `yaml:"district_college"`
	FiscalYear      string `yaml:"fiscal_year"`
	TopCode         string `yaml:"top_code"`
}

// Input box names accepted by ElementInfo.ID.
const (
	BoxFormType        = "form_type"
	BoxDistrictCollege = "district_college"
	BoxFiscalYear      = "fiscal_year"
	BoxTopCode         = "top_code"
)

// ID returns the element ID for the named input box.
func (e ElementInfo) ID(box string) (string, bool) {
	var id string
	switch box {
	case BoxFormType:
		id = e.FormType
	case BoxDistrictCollege:
		id = e.DistrictCollege
	case BoxFiscalYear:
		id = e.FiscalYear
	case BoxTopCode:
		id = e.TopCode
	default:
		return "", false
	}
	return id, id != ""
}

// Boxes lists the input box names in the order the portal expects them.
func (e ElementInfo) Boxes() []string {
	return []string{BoxFormType, BoxFiscalYear, BoxDistrictCollege, BoxTopCode}
}

// PathsConfig controls the output directory layout.
type PathsConfig struct {
	DataFolder     string `yaml:"data_folder"`     // default: "data"
	CollegeFolder  string `yaml:"college_folder"`  // default: "college"
	DistrictFolder string `yaml:"district_folder"` // default: "district"
	TopCodeFolder  string `yaml:"top_code_folder"` // default: "top_code"
	RecordCSV      string `yaml:"record_csv"`      // default: "scrape_record.csv"
}

// CollegeDir is where college report extracts are written.
func (p PathsConfig) CollegeDir() string { return filepath.Join(p.DataFolder, p.CollegeFolder) }

// DistrictDir is where manually downloaded district reports belong.
func (p PathsConfig) DistrictDir() string { return filepath.Join(p.DataFolder, p.DistrictFolder) }

// TopCodeDir is the parent of the per-institution top code folders.
func (p PathsConfig) TopCodeDir() string { return filepath.Join(p.DataFolder, p.TopCodeFolder) }

// LedgerPath is the scrape ledger file.
func (p PathsConfig) LedgerPath() string { return filepath.Join(p.DataFolder, p.RecordCSV) }

// Seconds is a duration written as a plain number of seconds in the config
// file.
type Seconds float64

// Duration converts s to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// ScrapingConfig controls browser waits and pacing.
type ScrapingConfig struct {
	// ImplicitWait bounds plain element lookups.
	ImplicitWait Seconds `yaml:"implicit_wait"` // default: 10

	// ExplicitWait bounds waits for an element to become clickable or visible.
	ExplicitWait Seconds `yaml:"explicit_wait"` // default: 20

	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// InputAttempts is the number of tries to set one input box.
	InputAttempts int `yaml:"input_attempts"` // default: 3

	// SettleDelay is the pause after typing, before the value is verified.
	SettleDelay Seconds `yaml:"settle_delay"` // default: 0.5

	// RequestInterval is the minimum gap between two report fetches.
	// Zero disables pacing.
	RequestInterval Seconds `yaml:"request_interval"` // default: 0

	// NavigationTimeout bounds the initial page load.
	NavigationTimeout Seconds `yaml:"navigation_timeout"` // default: 30
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"`

	// Bin overrides the Chromium binary path.
	Bin string `yaml:"bin"`

	// Proxy is the proxy URL for all requests.
	Proxy string `yaml:"proxy"`

	// Stealth masks navigator.webdriver and friends.
	Stealth bool `yaml:"stealth"`

	// Headers are extra HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers"`

	// BlockedResources lists resource types the browser never loads.
	// Allowed: "Image", "Font", "Media".
	BlockedResources []string `yaml:"blocked_resources"` // default: ["Image", "Font", "Media"]
}

// OutputConfig controls what is written next to each report extract.
type OutputConfig struct {
	// Markdown additionally writes a <slug>.md rendering of the table.
	Markdown bool `yaml:"markdown"`

	// HTML additionally writes a <slug>.html copy of the report container.
	HTML bool `yaml:"html"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "text"
}

// ServerConfig controls the read-only ledger API.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "127.0.0.1"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"

	// APIKeys enables API key authentication when non-empty.
	APIKeys []string `yaml:"api_keys"`

	// RequestsPerSecond is the sustained rate per API key or client IP.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 5

	// Burst is the maximum burst size per identity.
	Burst int `yaml:"burst"` // default: 10
}

// WebhookConfig controls the run summary notification.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// Default returns a Config with every default applied and no targets.
func Default() *Config {
	return &Config{
		TopCodeOptions: "table[id$='ComboBoxTCode_DDD_L_LBT'] td.dxeListBoxItem_Aqua",
		Paths: PathsConfig{
			DataFolder:     "data",
			CollegeFolder:  "college",
			DistrictFolder: "district",
			TopCodeFolder:  "top_code",
			RecordCSV:      "scrape_record.csv",
		},
		Scraping: ScrapingConfig{
			ImplicitWait:      10,
			ExplicitWait:      20,
			Headless:          true,
			InputAttempts:     3,
			SettleDelay:       0.5,
			NavigationTimeout: 30,
		},
		Browser: BrowserConfig{
			BlockedResources: []string{"Image", "Font", "Media"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8080,
			Mode:              "release",
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. A missing file is only an error when the caller
// asked for a specific path.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = envOr("PERKINS_CONFIG", DefaultPath)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides file values with PERKINS_* environment variables.
func (c *Config) applyEnv() {
	c.URL = envOr("PERKINS_URL", c.URL)
	c.TableDivID = envOr("PERKINS_TABLE_DIV_ID", c.TableDivID)
	c.ViewReport = envOr("PERKINS_VIEW_REPORT", c.ViewReport)
	c.Forms = envSliceOr("PERKINS_FORMS", c.Forms)
	c.Colleges = envSliceOr("PERKINS_COLLEGES", c.Colleges)
	c.Years = envSliceOr("PERKINS_YEARS", c.Years)

	c.Paths.DataFolder = envOr("PERKINS_DATA_FOLDER", c.Paths.DataFolder)
	c.Paths.RecordCSV = envOr("PERKINS_RECORD_CSV", c.Paths.RecordCSV)

	c.Scraping.Headless = envBoolOr("PERKINS_HEADLESS", c.Scraping.Headless)
	c.Scraping.ImplicitWait = Seconds(envFloatOr("PERKINS_IMPLICIT_WAIT", float64(c.Scraping.ImplicitWait)))
	c.Scraping.ExplicitWait = Seconds(envFloatOr("PERKINS_EXPLICIT_WAIT", float64(c.Scraping.ExplicitWait)))
	c.Scraping.RequestInterval = Seconds(envFloatOr("PERKINS_REQUEST_INTERVAL", float64(c.Scraping.RequestInterval)))

	c.Browser.NoSandbox = envBoolOr("PERKINS_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.Bin = envOr("PERKINS_BROWSER_BIN", c.Browser.Bin)
	c.Browser.Proxy = envOr("PERKINS_PROXY", c.Browser.Proxy)

	c.Log.Level = envOr("PERKINS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("PERKINS_LOG_FORMAT", c.Log.Format)

	c.Server.Host = envOr("PERKINS_HOST", c.Server.Host)
	c.Server.Port = envIntOr("PERKINS_PORT", c.Server.Port)
	c.Server.Mode = envOr("PERKINS_MODE", c.Server.Mode)
	c.Server.APIKeys = envSliceOr("PERKINS_API_KEYS", c.Server.APIKeys)

	c.Webhook.URL = envOr("PERKINS_WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.Secret = envOr("PERKINS_WEBHOOK_SECRET", c.Webhook.Secret)
}

// Validate checks that the values a scrape run needs are present. Values
// are not interpreted beyond presence.
func (c *Config) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "url")
	}
	if c.TableDivID == "" {
		missing = append(missing, "table_div_id")
	}
	if c.ViewReport == "" {
		missing = append(missing, "view_report")
	}
	for _, box := range c.ElementInfo.Boxes() {
		if _, ok := c.ElementInfo.ID(box); !ok {
			missing = append(missing, "element_info."+box)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
