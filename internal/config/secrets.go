package config

import "slices"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.OKX.APIKey)
	redact(&out.OKX.SecretKey)
	redact(&out.OKX.Passphrase)
	redact(&out.OKX.CredentialsPassword)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Mongo.URI)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Execution.Majors = slices.Clone(cfg.Execution.Majors)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
