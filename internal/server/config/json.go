package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tmssession/internal/flagx"
	"github.com/dmitrijs2005/tmssession/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations accept "15m" strings or
// a number of seconds. Absent keys leave the current value in place.
type JsonConfig struct {
	HTTPAddr            *string         `json:"http_addr"`
	GRPCHealthAddr      *string         `json:"grpc_health_addr"`
	DatabaseDSN         *string         `json:"database_dsn"`
	SecretKey           *string         `json:"secret_key"`
	S3RootUser          *string         `json:"s3_root_user"`
	S3RootPassword      *string         `json:"s3_root_password"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
	SignedURLTTL        *timex.Duration `json:"signed_url_ttl"`
	SharedDomainLabel   *string         `json:"shared_domain_label"`
	SharedDomainBaseURL *string         `json:"shared_domain_base_url"`
	AMQPURL             *string         `json:"amqp_url"`
	AuditExchange       *string         `json:"audit_exchange"`
	OTLPEndpoint        *string         `json:"otlp_endpoint"`
	HealthProbeInterval *timex.Duration `json:"health_probe_interval"`
	LogLevel            *string         `json:"log_level"`
	LogFormat           *string         `json:"log_format"`
}

// parseJson loads the file named by -c or -config in args, if any.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCHealthAddr, c.GRPCHealthAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.SharedDomainLabel, c.SharedDomainLabel)
	setString(&config.SharedDomainBaseURL, c.SharedDomainBaseURL)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.AuditExchange, c.AuditExchange)
	setString(&config.OTLPEndpoint, c.OTLPEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	if c.SignedURLTTL != nil {
		config.SignedURLTTL = c.SignedURLTTL.Duration
	}
	if c.HealthProbeInterval != nil {
		config.HealthProbeInterval = c.HealthProbeInterval.Duration
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
