package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/jciecuador/workspace-console/pkg/logging"
)

const Production = "production"

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"workspace_console"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

// DirectoryOptions configures the Google Admin Directory gateway. The
// service account acts with domain-wide delegation on behalf of AdminEmail.
type DirectoryOptions struct {
	ServiceAccountEmail string `env:"SERVICE_ACCOUNT_CLIENT_EMAIL"`
	ServiceAccountKey   string `env:"SERVICE_ACCOUNT_PRIVATE_KEY"`
	AdminEmail          string `env:"WORKSPACE_ADMIN_EMAIL"`
	Domain              string `env:"WORKSPACE_DOMAIN" envDefault:"jciecuador.com"`
}

func (d *DirectoryOptions) Configured() bool {
	return d.ServiceAccountEmail != "" && d.ServiceAccountKey != "" && d.AdminEmail != ""
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type Configuration struct {
	Database   DatabaseOptions
	Directory  DirectoryOptions
	Prometheus PrometheusOptions

	// DataStore selects the persistence backend: file or postgres.
	DataStore        string `env:"DATA_STORE" envDefault:"file"`
	RequestStorePath string `env:"REQUEST_STORE_PATH" envDefault:"data/workspace-requests.json"`

	AutoExecuteActions      string `env:"AUTO_EXECUTE_ACTIONS" envDefault:"update_phone,reset_password"`
	RequestBatchSize        int    `env:"REQUEST_BATCH_SIZE" envDefault:"20"`
	ExecutionLockKey        string `env:"EXECUTION_LOCK_KEY" envDefault:"global_execution"`
	ExecutionLockTTLSeconds int    `env:"EXECUTION_LOCK_TTL_SECONDS" envDefault:"300"`

	RequestIDHeader  string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

// AutoExecuteTypes returns the request types that execute without manual
// approval, parsed from AUTO_EXECUTE_ACTIONS.
func (c *Configuration) AutoExecuteTypes() []string {
	parts := strings.Split(c.AutoExecuteActions, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ExecutionLockTTL is the lease duration for the postgres execution lock.
// The file backend has no expiry; a crashed process leaves its sentinel.
func (c *Configuration) ExecutionLockTTL() time.Duration {
	return time.Duration(c.ExecutionLockTTLSeconds) * time.Second
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) validate() error {
	mode := strings.ToLower(strings.TrimSpace(c.DataStore))
	if mode == "" {
		mode = StoreFile
	}
	switch mode {
	case StoreFile, StorePostgres:
	default:
		return fmt.Errorf("invalid DATA_STORE=%q (expected file|postgres)", c.DataStore)
	}
	c.DataStore = mode

	if c.RequestBatchSize <= 0 {
		return fmt.Errorf("REQUEST_BATCH_SIZE must be positive, got %d", c.RequestBatchSize)
	}
	if c.ExecutionLockTTLSeconds <= 0 {
		return fmt.Errorf("EXECUTION_LOCK_TTL_SECONDS must be positive, got %d", c.ExecutionLockTTLSeconds)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
