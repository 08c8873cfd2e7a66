/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun/driver/sqliteshim"
	"gopkg.in/yaml.v3"
)

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string        `yaml:"type" json:"type" validate:"required,oneof=mysql postgres postgresql sqlite sqlite3"`
	Driver              string        `yaml:"driver" json:"driver" default:"pq" validate:"oneof=pq pgx"` // postgres only
	Host                string        `yaml:"host" json:"host" default:"localhost"`
	Port                int           `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
	Username            string        `yaml:"username" json:"username"`
	Password            string        `yaml:"password" json:"password"`
	DBName              string        `yaml:"dbname" json:"dbname" validate:"required"`
	SSLMode             string        `yaml:"sslmode" json:"sslmode" default:"disable"`
	Charset             string        `yaml:"charset" json:"charset" default:"utf8mb4"` // mysql
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns" default:"10" validate:"gte=0"`
	MaxOpenConns        int           `yaml:"max_open_conns" json:"max_open_conns" default:"100" validate:"gte=0"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" default:"1h"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" default:"30m"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"10s"`
	ReadTimeout         time.Duration `yaml:"read_timeout" json:"read_timeout" default:"30s"`
	WriteTimeout        time.Duration `yaml:"write_timeout" json:"write_timeout" default:"30s"`
	EnableReconnect     bool          `yaml:"enable_reconnect" json:"enable_reconnect"`
	ReconnectInterval   time.Duration `yaml:"reconnect_interval" json:"reconnect_interval" default:"5s"`
	MaxReconnectTries   int           `yaml:"max_reconnect_tries" json:"max_reconnect_tries" default:"3"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
	EnableQueryLog      bool          `yaml:"enable_query_log" json:"enable_query_log"`
	ColorQueryLog       bool          `yaml:"color_query_log" json:"color_query_log"`
	SlowQueryTime       time.Duration `yaml:"slow_query_time" json:"slow_query_time" default:"2s"`
}

// UnitOfWorkConfig bounds the commit retry loop. Zero MaxAttempts retries
// until the save succeeds or the context ends.
type UnitOfWorkConfig struct {
	MaxAttempts uint          `yaml:"max_attempts" json:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff" json:"backoff" validate:"gte=0"`
}

// Config is the root of the YAML configuration file.
type Config struct {
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	UnitOfWork UnitOfWorkConfig `yaml:"unit_of_work" json:"unit_of_work"`
}

// DefaultConnectionConfig returns a connection config with only the default
// tags applied. Type and DBName still have to be set.
func DefaultConnectionConfig() *ConnectionConfig {
	cfg := &ConnectionConfig{}
	_ = defaults.Set(cfg)
	return cfg
}

// LoadConfig reads a YAML configuration file. A .env file in the working
// directory is loaded first; ${VAR} references in the file are expanded
// before parsing.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig expands environment references in data, unmarshals it, applies
// default tags and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the validate tags of the whole tree.
func (c *Config) Validate() error {
	return validateStruct(c)
}

func (c *ConnectionConfig) Validate() error {
	return validateStruct(c)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	failed := make([]string, 0, len(errs))
	for _, fe := range errs {
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		failed = append(failed, fe.Namespace()+": "+tag)
	}
	return fmt.Errorf("invalid config fields -> %s", strings.Join(failed, ", "))
}

// Dialect returns the normalized database type.
func (c *ConnectionConfig) Dialect() string {
	switch c.Type {
	case "postgresql":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	default:
		return c.Type
	}
}

// DriverName is the database/sql driver the connection is opened with.
func (c *ConnectionConfig) DriverName() string {
	switch c.Dialect() {
	case "postgres":
		if c.Driver == "pgx" {
			return "pgx"
		}
		return "postgres"
	case "sqlite":
		return sqliteshim.ShimName
	default:
		return c.Dialect()
	}
}

// DSN renders the driver connection string. MySQL connections report
// matched rather than changed rows so that an update writing identical
// values is not mistaken for a concurrency conflict.
func (c *ConnectionConfig) DSN() (string, error) {
	switch c.Dialect() {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.port(3306)))
		mc.DBName = c.DBName
		mc.ParseTime = true
		mc.Loc = time.Local
		mc.Timeout = c.ConnectTimeout
		mc.ReadTimeout = c.ReadTimeout
		mc.WriteTimeout = c.WriteTimeout
		mc.ClientFoundRows = true
		if c.Charset != "" {
			mc.Params = map[string]string{"charset": c.Charset}
		}
		return mc.FormatDSN(), nil
	case "postgres":
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		q := url.Values{}
		q.Set("sslmode", sslMode)
		if c.ConnectTimeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.Username, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.port(5432))),
			Path:     "/" + c.DBName,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case "sqlite":
		switch {
		case c.DBName == ":memory:":
			return ":memory:", nil
		case strings.HasPrefix(c.DBName, "file:"), strings.HasSuffix(c.DBName, ".db"):
			return c.DBName, nil
		default:
			return c.DBName + ".db", nil
		}
	default:
		return "", fmt.Errorf("unsupported database type: %s", c.Type)
	}
}

func (c *ConnectionConfig) port(def int) int {
	if c.Port > 0 {
		return c.Port
	}
	return def
}

// overrideFromEnv applies DB_* environment variables over cfg.
func overrideFromEnv(cfg *ConnectionConfig) {
	strs := map[string]*string{
		"DB_HOST":     &cfg.Host,
		"DB_USERNAME": &cfg.Username,
		"DB_PASSWORD": &cfg.Password,
		"DB_NAME":     &cfg.DBName,
		"DB_SSLMODE":  &cfg.SSLMode,
		"DB_DRIVER":   &cfg.Driver,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	ints := map[string]*int{
		"DB_PORT":           &cfg.Port,
		"DB_MAX_IDLE_CONNS": &cfg.MaxIdleConns,
		"DB_MAX_OPEN_CONNS": &cfg.MaxOpenConns,
	}
	for key, dst := range ints {
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = v
		}
	}
	seconds := map[string]*time.Duration{
		"DB_CONN_MAX_LIFETIME":  &cfg.ConnMaxLifetime,
		"DB_RECONNECT_INTERVAL": &cfg.ReconnectInterval,
	}
	for key, dst := range seconds {
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = time.Duration(v) * time.Second
		}
	}
	bools := map[string]*bool{
		"DB_ENABLE_RECONNECT": &cfg.EnableReconnect,
		"DB_ENABLE_QUERY_LOG": &cfg.EnableQueryLog,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true"
		}
	}
}
