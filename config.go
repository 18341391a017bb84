package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string        `yaml:"git_commit" envconfig:"LAPI_GIT_COMMIT"`
	GitTag                  string        `yaml:"git_tag" envconfig:"LAPI_GIT_TAG"`
	BuildTime               string        `yaml:"build_time" envconfig:"LAPI_BUILD_TIME"`
	IsProduction            bool          `yaml:"is_production" envconfig:"LAPI_IS_PRODUCTION"`
	LogLevel                zapcore.Level `yaml:"log_level" envconfig:"LAPI_LOG_LEVEL"`
	LogFolder               string        `yaml:"log_folder" envconfig:"LAPI_LOG_FOLDER"`
	LogMaxSize              int           `yaml:"log_max_size" envconfig:"LAPI_LOG_MAX_SIZE"`
	OpsEndpointsEnable      bool          `yaml:"ops_endpoints_enable" envconfig:"LAPI_OPS_ENDPOINTS_ENABLE"`
	ProfilerEndpointsEnable bool          `yaml:"profiler_endpoints_enable" envconfig:"LAPI_PROFILER_ENDPOINTS_ENABLE"`
	Server                  ServerConfig  `yaml:"server"`
	Redis                   RedisConfig   `yaml:"redis"`
	BoltDB                  BoltDBConfig  `yaml:"boltdb"`
	Auth                    AuthConfig    `yaml:"auth"`
	Library                 LibraryConfig `yaml:"library"`
	Uploads                 UploadsConfig `yaml:"uploads"`
}

type ServerConfig struct {
	Host                    string        `yaml:"host" envconfig:"LAPI_SERVER_HOST"`
	Port                    string        `yaml:"port" envconfig:"LAPI_SERVER_PORT"`
	ReadTimeout             time.Duration `yaml:"read_timeout" envconfig:"LAPI_SERVER_READ_TIMEOUT"`
	WriteTimeout            time.Duration `yaml:"write_timeout" envconfig:"LAPI_SERVER_WRITE_TIMEOUT"`
	RequestTimeout          time.Duration `yaml:"request_timeout" envconfig:"LAPI_SERVER_REQUEST_TIMEOUT"` // Time to wait for a request to finish
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" envconfig:"LAPI_SERVER_SHUTDOWN_TIMEOUT"`
	LongRequestWriteTimeout time.Duration `yaml:"long_request_write_timeout" envconfig:"LAPI_SERVER_LONG_REQUEST_WRITE_TIMEOUT"`
	AllowedOrigin           string        `yaml:"allowed_origin" envconfig:"LAPI_SERVER_ALLOWED_ORIGIN"`
	TrustProxyHeaders       bool          `yaml:"trust_proxy_headers" envconfig:"LAPI_SERVER_TRUST_PROXY_HEADERS"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"LAPI_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"LAPI_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"LAPI_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"LAPI_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"LAPI_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"LAPI_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"LAPI_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"LAPI_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"LAPI_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"LAPI_REDIS_DATABASE_INDEX"`
}

type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" envconfig:"LAPI_BOLTDB_FILE_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"LAPI_BOLTDB_TIMEOUT"`
	BucketName string        `yaml:"bucket_name" envconfig:"LAPI_BOLTDB_BUCKET_NAME"`
}

type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret" envconfig:"LAPI_AUTH_TOKEN_SECRET" json:"-"`
	TokenTTL    time.Duration `yaml:"token_ttl" envconfig:"LAPI_AUTH_TOKEN_TTL"`
	LoginRate   float64       `yaml:"login_rate" envconfig:"LAPI_AUTH_LOGIN_RATE"` // Allowed login attempts per second and per ip
	LoginBurst  int           `yaml:"login_burst" envconfig:"LAPI_AUTH_LOGIN_BURST"`
}

type LibraryConfig struct {
	LoanDays   int   `yaml:"loan_days" envconfig:"LAPI_LIBRARY_LOAN_DAYS"`
	FinePerDay int64 `yaml:"fine_per_day" envconfig:"LAPI_LIBRARY_FINE_PER_DAY"`

	// zero disables the background refresh of fines.
	FinesRefreshInterval time.Duration `yaml:"fines_refresh_interval" envconfig:"LAPI_LIBRARY_FINES_REFRESH_INTERVAL"`
}

type UploadsConfig struct {
	Folder  string `yaml:"folder" envconfig:"LAPI_UPLOADS_FOLDER"`
	MaxSize int64  `yaml:"max_size" envconfig:"LAPI_UPLOADS_MAX_SIZE"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
		return errors.New("make sure to set valid redis address and port in configuration file")
	}

	if len(config.BoltDB.FilePath) == 0 {
		return errors.New("make sure to set valid boltdb file path in configuration file")
	}

	if len(config.Auth.TokenSecret) == 0 {
		return errors.New("make sure to set the token signing secret via LAPI_AUTH_TOKEN_SECRET")
	}

	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}

	if config.LogFolder == "" {
		config.LogFolder = "logs"
	}

	if config.BoltDB.BucketName == "" {
		config.BoltDB.BucketName = "loans.ledger"
	}

	if config.Auth.TokenTTL <= 0 {
		config.Auth.TokenTTL = 10 * time.Hour
	}

	if config.Auth.LoginRate <= 0 {
		config.Auth.LoginRate = 1
	}

	if config.Auth.LoginBurst <= 0 {
		config.Auth.LoginBurst = 5
	}

	if config.Library.LoanDays <= 0 {
		config.Library.LoanDays = 7
	}

	if config.Library.FinePerDay <= 0 {
		config.Library.FinePerDay = 5000
	}

	if config.Library.FinesRefreshInterval < 0 {
		config.Library.FinesRefreshInterval = 0
	}

	if config.Uploads.Folder == "" {
		config.Uploads.Folder = "uploads"
	}

	if config.Uploads.MaxSize <= 0 {
		config.Uploads.MaxSize = 5 << 20
	}

	if config.Server.AllowedOrigin == "" {
		config.Server.AllowedOrigin = "*"
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration.
	err = godotenv.Load("./config.env")
	if err != nil {
		return config, fmt.Errorf("failed to set environment configurations: %s", err)
	}

	// Use environment variables with prefix `LAPI`.
	err = LoadConfigEnvs("LAPI", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
