package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces every environment variable the tool reads.
const envPrefix = "COURSE_SELECT_"

// Config holds everything one run needs. It is built once at startup by
// loadConfig and passed down explicitly.
type Config struct {
	Username       string   `yaml:"username"`
	PasswordDigest string   `yaml:"password_sm3"`
	Courses        []string `yaml:"courses"`

	// Password is the plaintext alternative to PasswordDigest. It is only
	// accepted from the environment or a flag, never from the config file.
	Password string `yaml:"-"`

	MaxAttempts        int           `yaml:"max_attempts"`
	MaxTransportErrors int           `yaml:"max_transport_errors"`
	Browser            string        `yaml:"browser"`
	Timeout            time.Duration `yaml:"timeout"`
	Verbose            bool          `yaml:"verbose"`
	JSON               bool          `yaml:"json"`

	Site        SiteConfig    `yaml:"site"`
	Captcha     CaptchaConfig `yaml:"captcha"`
	LoginJitter Jitter        `yaml:"login_jitter"`
	PollJitter  Jitter        `yaml:"poll_jitter"`
}

// SiteConfig describes the portal: where each endpoint lives and which
// substrings mark the states the core cares about.
type SiteConfig struct {
	BaseURL     string `yaml:"base_url"`
	LoginPath   string `yaml:"login_path"`
	CaptchaPath string `yaml:"captcha_path"`
	SubmitPath  string `yaml:"submit_path"`
	ProbePath   string `yaml:"probe_path"`
	SelectPath  string `yaml:"select_path"`
	SelectParam string `yaml:"select_param"`
	LogoutPath  string `yaml:"logout_path"`

	TokenStart     string `yaml:"token_start"`
	TokenEnd       string `yaml:"token_end"`
	ProbeMarker    string `yaml:"probe_marker"`
	CapacityMarker string `yaml:"capacity_marker"`
	SuccessMarker  string `yaml:"success_marker"`
}

// CaptchaConfig tunes the image pipeline and picks the recognizer.
type CaptchaConfig struct {
	Backend    string      `yaml:"backend"`
	APIKey     string      `yaml:"api_key"`
	APIURL     string      `yaml:"api_url"`
	CropWidth  int         `yaml:"crop_width"`
	BlockSize  int         `yaml:"block_size"`
	Bias       int         `yaml:"bias"`
	Confusions []Confusion `yaml:"confusions"`
}

func defaultConfig() *Config {
	return &Config{
		MaxAttempts:        10,
		MaxTransportErrors: 5,
		Browser:            "chrome",
		Timeout:            30 * time.Second,
		Site: SiteConfig{
			BaseURL:        "https://graduatexk.pumc.edu.cn/graduate",
			LoginPath:      "index.do",
			CaptchaPath:    "getCaptcha.do",
			SubmitPath:     "j_acegi_security_check",
			ProbePath:      "listMyBulletined.do",
			SelectPath:     "stuelectcourse/addScoreFromPlan.do",
			SelectParam:    "taskid",
			LogoutPath:     "sso/sso_logout.jsp",
			TokenStart:     `<input type="hidden" name="token" value="`,
			TokenEnd:       `"/>`,
			ProbeMarker:    "classicLook0",
			CapacityMarker: "超过课容量",
		},
		Captcha: CaptchaConfig{
			Backend:    "tesseract",
			CropWidth:  72,
			BlockSize:  15,
			Bias:       4,
			Confusions: defaultConfusions(),
		},
		LoginJitter: Jitter{Base: time.Second, Spread: time.Second},
		PollJitter:  Jitter{Base: 5 * time.Second, Spread: 5 * time.Second},
	}
}

// loadOptions locates the optional config sources.
type loadOptions struct {
	configPath string
	envFile    string
	flags      *pflag.FlagSet
}

// loadConfig layers defaults, the YAML file, the environment (after
// loading envFile when present) and explicitly set flags, in that order.
func loadConfig(opts loadOptions) (*Config, error) {
	cfg := defaultConfig()

	if opts.configPath != "" {
		data, err := os.ReadFile(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", opts.configPath, err)
		}
	}

	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
		}
	}
	applyEnv(cfg)

	if opts.flags != nil {
		if err := applyFlags(cfg, opts.flags); err != nil {
			return nil, err
		}
	}

	if cfg.PasswordDigest == "" && cfg.Password != "" {
		cfg.PasswordDigest = passwordDigest(cfg.Password)
	}
	cfg.PasswordDigest = strings.ToLower(cfg.PasswordDigest)
	cfg.Password = ""

	return cfg, nil
}

// Validate checks everything a full run needs.
func (c *Config) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.PasswordDigest == "" {
		return fmt.Errorf("password digest is required (set password_sm3 or %sPASSWORD)", envPrefix)
	}
	if !validDigest(c.PasswordDigest) {
		return fmt.Errorf("password digest must be %d hex characters", digestHexLen)
	}
	if len(c.Courses) == 0 {
		return fmt.Errorf("at least one course id is required")
	}
	for _, id := range c.Courses {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("course ids cannot be empty")
		}
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be > 0")
	}
	if c.MaxTransportErrors < 0 {
		return fmt.Errorf("max transport errors must be >= 0")
	}
	if c.LoginJitter.Base < 0 || c.LoginJitter.Spread < 0 || c.PollJitter.Base < 0 || c.PollJitter.Spread < 0 {
		return fmt.Errorf("jitter durations cannot be negative")
	}
	if err := c.Site.validate(); err != nil {
		return err
	}
	return c.Captcha.validate()
}

func (s SiteConfig) validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base url %q must be absolute", s.BaseURL)
	}
	if s.TokenStart == "" || s.TokenEnd == "" {
		return fmt.Errorf("token markers cannot be empty")
	}
	if s.ProbeMarker == "" {
		return fmt.Errorf("probe marker cannot be empty")
	}
	if s.CapacityMarker == "" {
		return fmt.Errorf("capacity marker cannot be empty")
	}
	if s.SelectParam == "" {
		return fmt.Errorf("select param cannot be empty")
	}
	return nil
}

func (c CaptchaConfig) validate() error {
	switch c.Backend {
	case "tesseract":
	case "2captcha", "anticaptcha":
		if c.APIKey == "" {
			return fmt.Errorf("captcha backend %s needs an api key", c.Backend)
		}
	default:
		return fmt.Errorf("unsupported captcha backend: %q (supported: tesseract, 2captcha, anticaptcha)", c.Backend)
	}
	if c.CropWidth <= 0 {
		return fmt.Errorf("crop width must be > 0")
	}
	if c.BlockSize < 3 || c.BlockSize%2 == 0 {
		return fmt.Errorf("block size must be odd and >= 3")
	}
	for _, cf := range c.Confusions {
		if err := cf.validate(); err != nil {
			return err
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Username = getEnv("USERNAME", cfg.Username)
	cfg.PasswordDigest = getEnv("PASSWORD_SM3", cfg.PasswordDigest)
	cfg.Password = getEnv("PASSWORD", cfg.Password)
	if v, ok := os.LookupEnv(envPrefix + "COURSES"); ok {
		cfg.Courses = splitList(v)
	}
	cfg.MaxAttempts = getEnvInt("MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.Browser = getEnv("BROWSER", cfg.Browser)
	cfg.Verbose = getEnvBool("VERBOSE", cfg.Verbose)
	cfg.Site.BaseURL = getEnv("BASE_URL", cfg.Site.BaseURL)
	cfg.Captcha.Backend = getEnv("CAPTCHA_BACKEND", cfg.Captcha.Backend)
	cfg.Captcha.APIKey = getEnv("CAPTCHA_KEY", cfg.Captcha.APIKey)
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	changed := func(name string) bool {
		return err == nil && fs.Lookup(name) != nil && fs.Changed(name)
	}

	if changed("username") {
		cfg.Username, err = fs.GetString("username")
	}
	if changed("password-sm3") {
		cfg.PasswordDigest, err = fs.GetString("password-sm3")
	}
	if changed("password") {
		cfg.Password, err = fs.GetString("password")
	}
	if changed("course") {
		var ids []string
		ids, err = fs.GetStringArray("course")
		cfg.Courses = nil
		for _, id := range ids {
			cfg.Courses = append(cfg.Courses, splitList(id)...)
		}
	}
	if changed("max-attempts") {
		cfg.MaxAttempts, err = fs.GetInt("max-attempts")
	}
	if changed("max-transport-errors") {
		cfg.MaxTransportErrors, err = fs.GetInt("max-transport-errors")
	}
	if changed("browser") {
		cfg.Browser, err = fs.GetString("browser")
	}
	if changed("timeout") {
		cfg.Timeout, err = fs.GetDuration("timeout")
	}
	if changed("verbose") {
		cfg.Verbose, err = fs.GetBool("verbose")
	}
	if changed("json") {
		cfg.JSON, err = fs.GetBool("json")
	}
	if changed("base-url") {
		cfg.Site.BaseURL, err = fs.GetString("base-url")
	}
	if changed("captcha-backend") {
		cfg.Captcha.Backend, err = fs.GetString("captcha-backend")
	}
	if changed("captcha-key") {
		cfg.Captcha.APIKey, err = fs.GetString("captcha-key")
	}
	if err != nil {
		return fmt.Errorf("read flags: %w", err)
	}
	return nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(envPrefix + key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
