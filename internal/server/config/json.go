package config

import (
	"encoding/json"
	"os"

	"github.com/authgate/authgate/internal/flagx"
	"github.com/authgate/authgate/internal/timex"
)

// JsonConfig is the DTO used only for reading JSON configuration files.
// Interval fields use timex.Duration so both "15m" strings and integer
// nanoseconds parse. After unmarshalling, its fields are copied into the
// runtime Config struct.
type JsonConfig struct {
	EndpointAddr    string         `json:"endpoint_addr"`
	DatabaseDSN     string         `json:"database_dsn"`
	RedisAddr       string         `json:"redis_addr"`
	RedisPassword   string         `json:"redis_password"`
	RedisDB         int            `json:"redis_db"`
	JWTSecret       string         `json:"jwt_secret"`
	SubjectSealKey  string         `json:"subject_seal_key"`
	AccessTokenTTL  timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL timex.Duration `json:"refresh_token_ttl"`
}

// parseJson loads configuration from the file named by -c/-config, if any.
// A missing flag means no JSON stage; an unreadable or invalid file panics,
// since running with half-applied config is worse than not starting.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.RedisAddr = c.RedisAddr
	config.RedisPassword = c.RedisPassword
	config.RedisDB = c.RedisDB
	config.JWTSecret = c.JWTSecret
	config.SubjectSealKey = c.SubjectSealKey
	config.AccessTokenTTL = c.AccessTokenTTL.Duration
	config.RefreshTokenTTL = c.RefreshTokenTTL.Duration
}
