package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	out.Kalshi = cfg.Kalshi
	redact(&out.Kalshi.ApiKey)

	out.Store = cfg.Store
	redact(&out.Store.DSN)
	redact(&out.Store.Password)

	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy the map so mutations to the redacted copy do not affect the
	// original.
	if cfg.Scoring.FeeBpsByVenue != nil {
		out.Scoring.FeeBpsByVenue = make(map[string]float64, len(cfg.Scoring.FeeBpsByVenue))
		for k, v := range cfg.Scoring.FeeBpsByVenue {
			out.Scoring.FeeBpsByVenue[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redaction placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
