package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the process-wide settings read once at startup.
type Config struct {
	Port     string
	SeedData bool

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	CipherMasterKey string
	CipherSalt      string

	OTPLength int
	OTPTTL    time.Duration

	QueryTimeout time.Duration

	Argon2 Argon2Params
}

// Argon2Params tunes password hashing.
type Argon2Params struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength uint32
}

var bindings = map[string]string{
	"server.port":            "PORT",
	"server.seed":            "SEED_DATA",
	"jwt.secret_key":         "JWT_SECRET_KEY",
	"jwt.issuer":             "JWT_ISSUER",
	"jwt.ttl_minutes":        "JWT_EXP_MINUTES",
	"cipher.master_key":      "CIPHER_MASTER_KEY",
	"cipher.salt":            "CIPHER_SALT",
	"otp.length":             "OTP_LENGTH",
	"otp.ttl":                "OTP_TTL",
	"database.host":          "DATABASE_HOST",
	"database.port":          "DATABASE_PORT",
	"database.user":          "DATABASE_USER",
	"database.password":      "DATABASE_PASSWORD",
	"database.name":          "DATABASE_NAME",
	"database.ssl_mode":      "DATABASE_SSL_MODE",
	"database.query_timeout": "DATABASE_QUERY_TIMEOUT",
	"redis.host":             "REDIS_HOST",
	"redis.port":             "REDIS_PORT",
	"redis.password":         "REDIS_PASSWORD",
	"redis.db":               "REDIS_DB",
	"argon2.time":            "ARGON2_TIME",
	"argon2.memory":          "ARGON2_MEMORY",
	"argon2.threads":         "ARGON2_THREADS",
	"argon2.key_length":      "ARGON2_KEY_LENGTH",
	"argon2.salt_length":     "ARGON2_SALT_LENGTH",
}

// Init points viper at the optional .env file and binds every key to its
// environment variable. Environment values override the file.
func Init(envFile string) {
	viper.SetConfigFile(envFile)
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	for key, env := range bindings {
		viper.BindEnv(key, env)
	}
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using environment and defaults: %v", err)
	}
}

func setDefaults() {
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.seed", true)
	viper.SetDefault("jwt.issuer", "corebank")
	viper.SetDefault("jwt.ttl_minutes", 30)
	viper.SetDefault("cipher.salt", "corebank-vault")
	viper.SetDefault("otp.length", 6)
	viper.SetDefault("otp.ttl", 5*time.Minute)
	viper.SetDefault("database.query_timeout", 5*time.Second)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)
}

// Load reads the bound settings and validates them.
func Load() (Config, error) {
	cfg := Config{
		Port:            strings.TrimSpace(viper.GetString("server.port")),
		SeedData:        viper.GetBool("server.seed"),
		JWTSecret:       strings.TrimSpace(viper.GetString("jwt.secret_key")),
		JWTIssuer:       viper.GetString("jwt.issuer"),
		JWTTTL:          minutesOrDefault(viper.GetInt("jwt.ttl_minutes"), 30),
		CipherMasterKey: strings.TrimSpace(viper.GetString("cipher.master_key")),
		CipherSalt:      viper.GetString("cipher.salt"),
		OTPLength:       viper.GetInt("otp.length"),
		OTPTTL:          viper.GetDuration("otp.ttl"),
		QueryTimeout:    viper.GetDuration("database.query_timeout"),
		Argon2: Argon2Params{
			Time:       uint32(viper.GetInt("argon2.time")),
			Memory:     uint32(viper.GetInt("argon2.memory")),
			Threads:    uint8(viper.GetInt("argon2.threads")),
			KeyLength:  uint32(viper.GetInt("argon2.key_length")),
			SaltLength: uint32(viper.GetInt("argon2.salt_length")),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET_KEY is required")
	}
	if cfg.CipherMasterKey == "" {
		return Config{}, errors.New("CIPHER_MASTER_KEY is required")
	}
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	return cfg, nil
}

// HTTPAddress returns the listen address for the HTTP server.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func minutesOrDefault(minutes, def int) time.Duration {
	if minutes <= 0 {
		minutes = def
	}
	return time.Duration(minutes) * time.Minute
}
