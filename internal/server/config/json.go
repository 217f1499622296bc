package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/avelancourt/passguard/internal/flagx"
	"github.com/avelancourt/passguard/internal/timex"
)

// JsonConfig is an intermediate DTO for reading JSON configuration files.
// Duration fields use timex.Duration so files can say "5m" as well as raw
// nanoseconds. Values are copied into the runtime Config after decoding;
// zero values are treated as absent.
type JsonConfig struct {
	EndpointAddrHTTP        string         `json:"endpoint_addr_http"`
	DatabaseDSN             string         `json:"database_dsn"`
	SecretKey               string         `json:"secret_key"`
	StorageKey              string         `json:"storage_key"`
	SessionValidityDuration timex.Duration `json:"session_validity_duration"`
	CodeTTL                 timex.Duration `json:"code_ttl"`
	TOTPIssuer              string         `json:"totp_issuer"`
	SMTPAddr                string         `json:"smtp_addr"`
	SMTPFrom                string         `json:"smtp_from"`
	SMTPUser                string         `json:"smtp_user"`
	SMTPPassword            string         `json:"smtp_password"`
	HIBPBaseURL             string         `json:"hibp_base_url"`
	HIBPTimeout             timex.Duration `json:"hibp_timeout"`
	S3RootUser              string         `json:"s3_root_user"`
	S3RootPassword          string         `json:"s3_root_password"`
	S3Bucket                string         `json:"s3_bucket"`
	S3Region                string         `json:"s3_region"`
	S3BaseEndpoint          string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file given via the
// -c/-config flags, if any, into cfg.
func parseJson(cfg *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&cfg.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.SecretKey, c.SecretKey)
	setString(&cfg.StorageKey, c.StorageKey)
	setString(&cfg.TOTPIssuer, c.TOTPIssuer)
	setString(&cfg.SMTPAddr, c.SMTPAddr)
	setString(&cfg.SMTPFrom, c.SMTPFrom)
	setString(&cfg.SMTPUser, c.SMTPUser)
	setString(&cfg.SMTPPassword, c.SMTPPassword)
	setString(&cfg.HIBPBaseURL, c.HIBPBaseURL)
	setString(&cfg.S3RootUser, c.S3RootUser)
	setString(&cfg.S3RootPassword, c.S3RootPassword)
	setString(&cfg.S3Bucket, c.S3Bucket)
	setString(&cfg.S3Region, c.S3Region)
	setString(&cfg.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.SessionValidityDuration.Duration != 0 {
		cfg.SessionValidityDuration = c.SessionValidityDuration.Duration
	}
	if c.CodeTTL.Duration != 0 {
		cfg.CodeTTL = c.CodeTTL.Duration
	}
	if c.HIBPTimeout.Duration != 0 {
		cfg.HIBPTimeout = c.HIBPTimeout.Duration
	}

	return nil
}
