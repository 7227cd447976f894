package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int // ops HTTP server (health + metrics)
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config (dedup guard + send throttle)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// AWS Services
	AWSRegion    string
	SNSRegion    string // AWS region for SNS (SMS)
	SESFromEmail string // sender for the daily summary email
	SESReportTo  string // recipient for the daily summary email
	SQSRegion    string
	SQSQueueURL  string // tier-change event queue; empty disables publishing

	// Membership provider (wallet passes)
	MembershipBaseURL   string
	MembershipAPIKey    string
	MembershipAPISecret string
	MembershipProgramID string
	MembershipTierID    string

	// SMS gateway; when set, SMS goes through this HTTP endpoint instead of SNS
	SMSGatewayURL string
	SMSGatewayKey string

	// Rule catalog
	RuleFile string // YAML rule file; empty loads rules from the database

	// Batch config
	BatchHour    int // local hour the daily run fires at
	BatchWorkers int
	ThrottleRate int // max SMS sends per minute; 0 disables throttling
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "loyaltypulse",
		DBPassword: "",
		DBName:     "loyaltypulse",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		AWSRegion:    "us-east-1",
		SESFromEmail: "noreply@loyaltypulse.local",

		MembershipTierID: "base",

		BatchHour:    6,
		BatchWorkers: 4,
		ThrottleRate: 120,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	// SNS config for SMS
	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if to := os.Getenv("SES_REPORT_TO"); to != "" {
		cfg.SESReportTo = to
	}

	// SQS config
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}

	// Membership provider config
	if url := os.Getenv("MEMBERSHIP_BASE_URL"); url != "" {
		cfg.MembershipBaseURL = url
	}

	if key := os.Getenv("MEMBERSHIP_API_KEY"); key != "" {
		cfg.MembershipAPIKey = key
	}

	if secret := os.Getenv("MEMBERSHIP_API_SECRET"); secret != "" {
		cfg.MembershipAPISecret = secret
	}

	if program := os.Getenv("MEMBERSHIP_PROGRAM_ID"); program != "" {
		cfg.MembershipProgramID = program
	}

	if tier := os.Getenv("MEMBERSHIP_TIER_ID"); tier != "" {
		cfg.MembershipTierID = tier
	}

	if url := os.Getenv("SMS_GATEWAY_URL"); url != "" {
		cfg.SMSGatewayURL = url
	}

	if key := os.Getenv("SMS_GATEWAY_KEY"); key != "" {
		cfg.SMSGatewayKey = key
	}

	if file := os.Getenv("RULE_FILE"); file != "" {
		cfg.RuleFile = file
	}

	// Batch config
	if hour := os.Getenv("BATCH_HOUR"); hour != "" {
		h, err := strconv.Atoi(hour)
		if err != nil {
			return nil, fmt.Errorf("invalid BATCH_HOUR: %w", err)
		}
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid BATCH_HOUR: %d not in 0..23", h)
		}
		cfg.BatchHour = h
	}

	if workers := os.Getenv("BATCH_WORKERS"); workers != "" {
		w, err := strconv.Atoi(workers)
		if err != nil {
			return nil, fmt.Errorf("invalid BATCH_WORKERS: %w", err)
		}
		cfg.BatchWorkers = w
	}

	if rate := os.Getenv("THROTTLE_RATE"); rate != "" {
		r, err := strconv.Atoi(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid THROTTLE_RATE: %w", err)
		}
		cfg.ThrottleRate = r
	}

	return cfg, nil
}

// MembershipEnabled reports whether the wallet provider sync is configured.
func (c *Config) MembershipEnabled() bool {
	return c.MembershipBaseURL != "" && c.MembershipAPIKey != "" && c.MembershipAPISecret != ""
}
