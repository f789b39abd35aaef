package seeder

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/cryptox"
)

const (
	DefaultLoginURL         = "https://tms.sacredcube.co/loadboard/turbo"
	DefaultUsernameSelector = `input[name="username"]`
	DefaultPasswordSelector = `input[name="password"]`
	DefaultSubmitSelector   = `button[type="submit"]`
	DefaultLoginTimeout     = 60 * time.Second
	DefaultSettleQuiet      = 2 * time.Second
)

// Config is everything one worker run needs. Credentials are never logged.
type Config struct {
	SessionID     string
	APIBaseURL    string
	APIToken      string
	Username      string
	Password      string
	EncryptionKey string
	Scheme        string

	LoginURL         string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	Headless         bool
	ChromePath       string
	LoginTimeout     time.Duration

	// Strategy is "settle" or "selector". SuccessSelector is required by the
	// latter and is the element that only exists once the user is logged in.
	Strategy        string
	SuccessSelector string
	SettleQuiet     time.Duration

	// ProfileBaseDir is where the temporary browser profile is created;
	// empty means os.TempDir.
	ProfileBaseDir string
}

func DefaultConfig() Config {
	return Config{
		Scheme:           string(cryptox.SchemeAESGCM),
		LoginURL:         DefaultLoginURL,
		UsernameSelector: DefaultUsernameSelector,
		PasswordSelector: DefaultPasswordSelector,
		SubmitSelector:   DefaultSubmitSelector,
		Headless:         true,
		LoginTimeout:     DefaultLoginTimeout,
		Strategy:         StrategySettle,
		SettleQuiet:      DefaultSettleQuiet,
	}
}

// Validate reports every missing or malformed input at once. The error wraps
// common.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string

	required := []struct {
		name, value string
	}{
		{"session id", c.SessionID},
		{"API_BASE_URL", c.APIBaseURL},
		{"SEEDER_API_TOKEN", c.APIToken},
		{"TMS_MASTER_USERNAME", c.Username},
		{"TMS_MASTER_PASSWORD", c.Password},
		{"login url", c.LoginURL},
		{"username selector", c.UsernameSelector},
		{"password selector", c.PasswordSelector},
		{"submit selector", c.SubmitSelector},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			problems = append(problems, r.name+" is required")
		}
	}

	if c.APIBaseURL != "" {
		if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, "API_BASE_URL must be an absolute url")
		}
	}
	if c.LoginTimeout <= 0 {
		problems = append(problems, "login timeout must be positive")
	}
	if c.Scheme != "" {
		if _, err := cryptox.ParseScheme(c.Scheme); err != nil {
			problems = append(problems, fmt.Sprintf("unsupported encryption scheme %q", c.Scheme))
		}
	}

	switch c.Strategy {
	case StrategySettle, "":
		if c.SettleQuiet < 0 {
			problems = append(problems, "settle quiet period must not be negative")
		}
	case StrategySelector:
		if strings.TrimSpace(c.SuccessSelector) == "" {
			problems = append(problems, "success selector is required by the selector strategy")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown login strategy %q", c.Strategy))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
