package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		DSN           string // sqlite3 only
	}

	RedisConfig struct {
		Addr              string
		Password          string
		DB                int
		NotificationQueue string
		AuthzCacheTTL     time.Duration
	}

	WorkflowConfig struct {
		ReviewCommentMinLen int
		CommentAutoApprove  bool
		ReportThreshold     int
	}

	OutboxConfig struct {
		PollInterval time.Duration
		BatchSize    int
		MaxAttempts  int
		RetryBackoff time.Duration
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Database DatabaseConfig
		Redis    RedisConfig
		Workflow WorkflowConfig
		Outbox   OutboxConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Masomo")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "Masomo <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "masomo")
	v.SetDefault("database.user", "masomo")
	v.SetDefault("database.password", "masomo")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.dsn", "file:masomo.db?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.notificationQueue", "masomo:notifications")
	v.SetDefault("redis.authzCacheTTL", 5*time.Minute)

	v.SetDefault("workflow.reviewCommentMinLen", 10)
	v.SetDefault("workflow.commentAutoApprove", true)
	v.SetDefault("workflow.reportThreshold", 5)

	v.SetDefault("outbox.pollInterval", 5*time.Second)
	v.SetDefault("outbox.batchSize", 100)
	v.SetDefault("outbox.maxAttempts", 3)
	v.SetDefault("outbox.retryBackoff", 30*time.Second)
}

// NewConfig loads the configuration for the current ENV (DEV by default).
// Values come from defaults, then config/.env.<env> if present, then environment variables
// prefixed with the ENV name (DEV_DATABASE_HOST, TEST_OUTBOX_MAXATTEMPTS, ...).
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			DSN:           v.GetString("database.dsn"),
		},
		Redis: RedisConfig{
			Addr:              v.GetString("redis.addr"),
			Password:          v.GetString("redis.password"),
			DB:                v.GetInt("redis.db"),
			NotificationQueue: v.GetString("redis.notificationQueue"),
			AuthzCacheTTL:     v.GetDuration("redis.authzCacheTTL"),
		},
		Workflow: WorkflowConfig{
			ReviewCommentMinLen: v.GetInt("workflow.reviewCommentMinLen"),
			CommentAutoApprove:  v.GetBool("workflow.commentAutoApprove"),
			ReportThreshold:     v.GetInt("workflow.reportThreshold"),
		},
		Outbox: OutboxConfig{
			PollInterval: v.GetDuration("outbox.pollInterval"),
			BatchSize:    v.GetInt("outbox.batchSize"),
			MaxAttempts:  v.GetInt("outbox.maxAttempts"),
			RetryBackoff: v.GetDuration("outbox.retryBackoff"),
		},
	}
}

// NewTestConfig returns the defaults with test mode on, without touching the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	return &Config{
		AppName:          v.GetString("appName"),
		Env:              "TEST",
		Build:            "test",
		Debug:            true,
		TestMode:         true,
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Database:         DatabaseConfig{Engine: "sqlite3"},
		Redis: RedisConfig{
			NotificationQueue: v.GetString("redis.notificationQueue"),
			AuthzCacheTTL:     v.GetDuration("redis.authzCacheTTL"),
		},
		Workflow: WorkflowConfig{
			ReviewCommentMinLen: v.GetInt("workflow.reviewCommentMinLen"),
			CommentAutoApprove:  v.GetBool("workflow.commentAutoApprove"),
			ReportThreshold:     v.GetInt("workflow.reportThreshold"),
		},
		Outbox: OutboxConfig{
			PollInterval: v.GetDuration("outbox.pollInterval"),
			BatchSize:    v.GetInt("outbox.batchSize"),
			MaxAttempts:  v.GetInt("outbox.maxAttempts"),
			RetryBackoff: v.GetDuration("outbox.retryBackoff"),
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (env=%s build=%s debug=%t db=%s)", c.AppName, c.Env, c.Build, c.Debug, c.Database.Engine)
}
