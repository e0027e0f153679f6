package resilience

import "time"

// RetrySettings is the retry section as an operator writes it in
// config.yaml: plain numbers, backoff in milliseconds.
type RetrySettings struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Policy overlays the settings on DefaultRetryConfig. Unset numbers keep
// the default. A multiplier below 1 would shrink the backoff and is
// ignored. A jitter of 0 is kept.
func (s RetrySettings) Policy() RetryConfig {
	p := DefaultRetryConfig()
	if s.MaxAttempts > 0 {
		p.MaxAttempts = s.MaxAttempts
	}
	p.InitialBackoff = millisOr(s.InitialBackoffMs, p.InitialBackoff)
	p.MaxBackoff = millisOr(s.MaxBackoffMs, p.MaxBackoff)
	if s.Multiplier >= 1 {
		p.Multiplier = s.Multiplier
	}
	if s.JitterFraction >= 0 && s.JitterFraction <= 1 {
		p.JitterFraction = s.JitterFraction
	}
	return p
}

// CircuitSettings is the circuit section of config.yaml.
type CircuitSettings struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Policy overlays the settings on DefaultCircuitBreakerConfig. ShouldTrip
// stays nil; the resolver chain sets it.
func (s CircuitSettings) Policy() CircuitBreakerConfig {
	p := DefaultCircuitBreakerConfig()
	if s.FailureThreshold > 0 {
		p.FailureThreshold = s.FailureThreshold
	}
	if s.ResetTimeoutSecs > 0 {
		p.ResetTimeout = time.Duration(s.ResetTimeoutSecs) * time.Second
	}
	return p
}

func millisOr(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
