package restcore

import (
	"fmt"
	"os"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

type (
	// Config holds the decoded configuration surface exposed to
	// embedders. Embed it in your own app config struct for JSON or
	// YAML unmarshaling, then call [NewClient] or [Config.ExecutorOptions]
	// to obtain wired components. All fields are optional; nil means
	// the documented default.
	Config struct {
		// RetryOnError disables all retries when false.
		// Optional. Default: true.
		RetryOnError *bool `json:"retry_on_error,omitempty" yaml:"retry_on_error,omitempty"`
		// RetryLimit is the total attempts per request.
		// Optional. Default: 5.
		RetryLimit *int `json:"retry_limit,omitempty" yaml:"retry_limit,omitempty"`
		// Backoff is the backoff strategy name. One of: "constant",
		// "exponential", "linear", "exponential_jitter".
		// Optional. Default: "exponential_jitter".
		Backoff *string `json:"backoff,omitempty" yaml:"backoff,omitempty"`
		// BaseDelay seeds the backoff calculation.
		// Optional. Parsed via time.ParseDuration. Example: "1s".
		BaseDelay *string `json:"base_delay,omitempty" yaml:"base_delay,omitempty"`
		// MaxDelay caps the computed backoff delay.
		// Optional. Parsed via time.ParseDuration. Example: "30s".
		MaxDelay *string `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
		// RateLimit is the rate budget: a number of requests per second,
		// a percentage of the plan limit ("80%"), or "auto".
		// Optional. Default: "auto".
		RateLimit *RateLimitValue `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
		// ConflictRetries bounds refetch-and-reapply rounds on version
		// conflicts. Optional. Default: 3.
		ConflictRetries *int `json:"conflict_retries,omitempty" yaml:"conflict_retries,omitempty"`
		// PollInterval is the delay between async-resource polls.
		// Optional. Parsed via time.ParseDuration. Default: "1s".
		PollInterval *string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
		// PollMaxAttempts bounds async-resource polling.
		// Optional. Default: 30.
		PollMaxAttempts *int `json:"poll_max_attempts,omitempty" yaml:"poll_max_attempts,omitempty"`
		// BatchConcurrency caps in-flight batch operations.
		// Optional. Default: 5.
		BatchConcurrency *int `json:"batch_concurrency,omitempty" yaml:"batch_concurrency,omitempty"`
	}

	// RateLimitValue accepts the three wire forms of a rate limit —
	// JSON number, percentage string, or "auto" — and normalises them
	// into a [RateSpec].
	RateLimitValue struct {
		spec RateSpec
	}
)

// DefaultPollMaxAttempts bounds polling when the config does not.
const DefaultPollMaxAttempts = 30

// UnmarshalJSON decodes a number, a percentage string, or "auto".
func (v *RateLimitValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Not a string: try a bare number.
		var n float64
		if numErr := json.Unmarshal(data, &n); numErr != nil {
			return fmt.Errorf("restcore: rate_limit must be a number, a percentage, or \"auto\": %w", err)
		}

		s = strconv.FormatFloat(n, 'f', -1, 64)
	}

	spec, err := ParseRateSpec(s)
	if err != nil {
		return err
	}

	v.spec = spec

	return nil
}

// MarshalJSON encodes the value back to its canonical string form.
func (v RateLimitValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// Spec returns the parsed rate specification.
func (v RateLimitValue) Spec() RateSpec { return v.spec }

func (v RateLimitValue) String() string {
	switch v.spec.Mode {
	case RateAuto:
		return "auto"
	case RatePercentage:
		return strconv.FormatFloat(v.spec.Percent*100, 'f', -1, 64) + "%"
	default:
		return strconv.FormatFloat(v.spec.Rate, 'f', -1, 64)
	}
}

// LoadConfig reads a JSON configuration file and validates it eagerly so
// errors surface at load time rather than on the first request.
//
// Duration values (base_delay, max_delay, poll_interval) are parsed
// using [time.ParseDuration].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("restcore: read config: %w", err)
	}

	var cfg Config
	if err = json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("restcore: parse config: %w", err)
	}

	if _, err = cfg.ExecutorOptions(); err != nil {
		return nil, err
	}
	if _, _, err = cfg.PollDefaults(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// RateSpec returns the configured rate specification, defaulting to
// auto calibration.
func (c *Config) RateSpec() RateSpec {
	if c == nil || c.RateLimit == nil {
		return AutoRate()
	}

	return c.RateLimit.Spec()
}

// ExecutorOptions converts the config into functional options for
// [NewExecutor]. Use this when wiring an executor by hand instead of
// through [NewClient].
func (c *Config) ExecutorOptions() ([]ExecutorOption, error) {
	if c == nil {
		return nil, nil
	}

	var opts []ExecutorOption

	if c.RetryOnError != nil && !*c.RetryOnError {
		opts = append(opts, WithRetryDisabled())
	}

	if c.RetryLimit != nil {
		if *c.RetryLimit < 1 {
			return nil, fmt.Errorf("restcore: retry_limit must be >= 1, got %d", *c.RetryLimit)
		}

		opts = append(opts, WithRetryLimit(*c.RetryLimit))
	}

	strategy, err := c.buildBackoff()
	if err != nil {
		return nil, err
	}
	if strategy != nil {
		opts = append(opts, WithBackoff(strategy))
	}

	if c.MaxDelay != nil {
		d, err := parseDuration("max_delay", *c.MaxDelay)
		if err != nil {
			return nil, err
		}

		opts = append(opts, WithMaxDelay(d))
	}

	return opts, nil
}

// PollDefaults returns the configured poll interval and attempt bound,
// falling back to the documented defaults.
func (c *Config) PollDefaults() (time.Duration, int, error) {
	interval := DefaultPollInterval
	attempts := DefaultPollMaxAttempts

	if c == nil {
		return interval, attempts, nil
	}

	if c.PollInterval != nil {
		d, err := parseDuration("poll_interval", *c.PollInterval)
		if err != nil {
			return 0, 0, err
		}

		interval = d
	}

	if c.PollMaxAttempts != nil {
		attempts = *c.PollMaxAttempts
	}

	return interval, attempts, nil
}

// buildBackoff constructs the configured strategy, or nil when the
// config leaves both the name and the base delay unset.
func (c *Config) buildBackoff() (BackoffStrategy, error) {
	if c.Backoff == nil && c.BaseDelay == nil {
		return nil, nil
	}

	base := DefaultBaseDelay

	if c.BaseDelay != nil {
		d, err := parseDuration("base_delay", *c.BaseDelay)
		if err != nil {
			return nil, err
		}

		base = d
	}

	name := "exponential_jitter"
	if c.Backoff != nil {
		name = *c.Backoff
	}

	switch name {
	case "constant":
		return ConstantBackoff(base), nil
	case "exponential":
		return ExponentialBackoff(base), nil
	case "linear":
		return LinearBackoff(base), nil
	case "exponential_jitter":
		return ExponentialJitterBackoff(base), nil
	default:
		return nil, fmt.Errorf("restcore: unknown backoff strategy %q", name)
	}
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("restcore: %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("restcore: %s must not be negative", field)
	}

	return d, nil
}
