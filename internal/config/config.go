package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AudioModeWebRTC = "webrtc"
	AudioModeBlob   = "blob"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Room     RoomConfig
	Audio    AudioConfig
	TURN     TURNConfig
	LogLevel string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	// AllowedOrigins lists the browser origins allowed to open a
	// websocket. "*" allows any origin.
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL            string
	PersistTimeout time.Duration
}

type JWTConfig struct {
	Secret    []byte
	ExpiresIn time.Duration
}

type RoomConfig struct {
	GracePeriod         time.Duration
	HistoryLimit        int
	MaxPasswordAttempts int
	CleanupInterval     time.Duration
}

type AudioConfig struct {
	Mode         string
	MaxBlobBytes int
}

type TURNConfig struct {
	Enabled     bool
	ListenAddr  string
	PublicIP    string
	Realm       string
	Username    string
	Password    string
	STUNServers []string
}

// Load reads .env, an optional config.yaml and the environment, in that
// order of increasing precedence. Invalid values are fatal.
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	cfg, err := LoadFrom(newViper("config", "."))
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func newViper(name string, paths ...string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(name)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// keep the historical flat variable names working
	bindEnv(v, "server.port", "PORT")
	bindEnv(v, "server.readTimeout", "READ_TIMEOUT")
	bindEnv(v, "server.writeTimeout", "WRITE_TIMEOUT")
	bindEnv(v, "server.allowedOrigins", "ALLOWED_ORIGINS")
	bindEnv(v, "database.url", "DATABASE_URL")
	bindEnv(v, "jwt.secret", "JWT_SECRET")
	bindEnv(v, "jwt.expiresIn", "JWT_EXPIRES_IN")
	bindEnv(v, "room.gracePeriod", "GRACE_PERIOD")
	bindEnv(v, "room.historyLimit", "HISTORY_LIMIT")
	bindEnv(v, "room.maxPasswordAttempts", "MAX_PASSWORD_ATTEMPTS")
	bindEnv(v, "audio.mode", "AUDIO_MODE")
	bindEnv(v, "audio.maxBlobBytes", "MAX_AUDIO_BLOB_BYTES")
	bindEnv(v, "logLevel", "LOG_LEVEL")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "15s")
	v.SetDefault("server.maxMessageBytes", 4<<20)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("database.url", "")
	v.SetDefault("database.persistTimeout", "5s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiresIn", "24h")
	v.SetDefault("room.gracePeriod", "60s")
	v.SetDefault("room.historyLimit", 500)
	v.SetDefault("room.maxPasswordAttempts", 5)
	v.SetDefault("room.cleanupInterval", "5m")
	v.SetDefault("audio.mode", AudioModeWebRTC)
	v.SetDefault("audio.maxBlobBytes", 256<<10)
	v.SetDefault("turn.enabled", false)
	v.SetDefault("turn.listenAddr", ":3478")
	v.SetDefault("turn.publicIP", "127.0.0.1")
	v.SetDefault("turn.realm", "coderoom")
	v.SetDefault("turn.username", "coderoom")
	v.SetDefault("turn.password", "")
	v.SetDefault("turn.stunServers", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	v.SetDefault("logLevel", "info")
}

func bindEnv(v *viper.Viper, key, env string) {
	if err := v.BindEnv(key, env); err != nil {
		log.Fatalf("Failed to bind %s to %s: %v", env, key, err)
	}
}

// LoadFrom builds a Config from an already prepared viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.readTimeout"),
			WriteTimeout:    v.GetDuration("server.writeTimeout"),
			MaxMessageBytes: v.GetInt64("server.maxMessageBytes"),
			AllowedOrigins:  v.GetStringSlice("server.allowedOrigins"),
		},
		Database: DatabaseConfig{
			URL:            v.GetString("database.url"),
			PersistTimeout: v.GetDuration("database.persistTimeout"),
		},
		JWT: JWTConfig{
			Secret:    []byte(v.GetString("jwt.secret")),
			ExpiresIn: v.GetDuration("jwt.expiresIn"),
		},
		Room: RoomConfig{
			GracePeriod:         v.GetDuration("room.gracePeriod"),
			HistoryLimit:        v.GetInt("room.historyLimit"),
			MaxPasswordAttempts: v.GetInt("room.maxPasswordAttempts"),
			CleanupInterval:     v.GetDuration("room.cleanupInterval"),
		},
		Audio: AudioConfig{
			Mode:         strings.ToLower(v.GetString("audio.mode")),
			MaxBlobBytes: v.GetInt("audio.maxBlobBytes"),
		},
		TURN: TURNConfig{
			Enabled:     v.GetBool("turn.enabled"),
			ListenAddr:  v.GetString("turn.listenAddr"),
			PublicIP:    v.GetString("turn.publicIP"),
			Realm:       v.GetString("turn.realm"),
			Username:    v.GetString("turn.username"),
			Password:    v.GetString("turn.password"),
			STUNServers: v.GetStringSlice("turn.stunServers"),
		},
		LogLevel: v.GetString("logLevel"),
	}

	if len(cfg.JWT.Secret) == 0 {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		log.Printf("JWT_SECRET not set, resume tokens will not survive a restart")
		cfg.JWT.Secret = secret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Room.GracePeriod <= 0 {
		return fmt.Errorf("grace period must be positive, got %s", c.Room.GracePeriod)
	}
	if c.Room.HistoryLimit < 0 {
		return fmt.Errorf("history limit must not be negative")
	}
	if c.Audio.Mode != AudioModeWebRTC && c.Audio.Mode != AudioModeBlob {
		return fmt.Errorf("unknown audio mode %q", c.Audio.Mode)
	}
	if c.Audio.MaxBlobBytes <= 0 {
		return fmt.Errorf("max audio blob size must be positive")
	}
	if c.TURN.Enabled && c.TURN.Password == "" {
		return fmt.Errorf("turn.password is required when the TURN relay is enabled")
	}
	return nil
}

func randomSecret() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
	}
	return []byte(hex.EncodeToString(b)), nil
}
