package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Tts      TtsConfig      `mapstructure:"tts"`
	Imagen   ImagenConfig   `mapstructure:"imagen"`
	Stt      SttConfig      `mapstructure:"stt"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Cors     CorsConfig     `mapstructure:"cors"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	StaticDir       string        `mapstructure:"static_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

type AuthConfig struct {
	Provider        string `mapstructure:"provider"` // "local" or "firebase"
	SessionSecret   string `mapstructure:"session_secret"`
	SessionName     string `mapstructure:"session_name"`
	SessionMaxAge   int    `mapstructure:"session_max_age"` // seconds
	FirebaseAPIKey  string `mapstructure:"firebase_api_key"`
	MinPasswordSize int    `mapstructure:"min_password_size"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type TtsConfig struct {
	Type            string        `mapstructure:"type"` // "google" or "dummy"
	Enabled         bool          `mapstructure:"enabled"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	VoiceCacheTTL   time.Duration `mapstructure:"voice_cache_ttl"`
	Timeout         time.Duration `mapstructure:"timeout"`
	SampleRateHertz int           `mapstructure:"sample_rate_hertz"`
}

type ImagenConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Project  string        `mapstructure:"project"`
	Location string        `mapstructure:"location"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MIMEType string        `mapstructure:"mime_type"`
}

type SttConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Provider     string `mapstructure:"provider"` // "browser" or "google"
	LanguageCode string `mapstructure:"language_code"`
	SampleRate   int    `mapstructure:"sample_rate"`
}

type SessionsConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxPerUser    int           `mapstructure:"max_per_user"`
}

type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config.yaml (plus an optional config.local.yaml override),
// .env files and VOCALIZE_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New(), ".", "./config")
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.BindEnv("auth.firebase_api_key", "FIREBASE_API_KEY")
	v.BindEnv("imagen.project", "GOOGLE_CLOUD_PROJECT")
	v.BindEnv("tts.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	v.BindEnv("server.port", "PORT")

	v.SetEnvPrefix("VOCALIZE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// Config file not found, use defaults
	}

	v.SetConfigName("config.local")
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.static_dir", "./web/static")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("auth.provider", "local")
	v.SetDefault("auth.session_secret", "your-secret-key-change-this-in-production")
	v.SetDefault("auth.session_name", "vocalize-session")
	v.SetDefault("auth.session_max_age", 7*24*3600)
	v.SetDefault("auth.min_password_size", 6)

	v.SetDefault("database.path", "./vocalize.db")

	v.SetDefault("tts.enabled", true)
	v.SetDefault("tts.type", "google")
	v.SetDefault("tts.voice_cache_ttl", time.Hour)
	v.SetDefault("tts.timeout", 30*time.Second)
	v.SetDefault("tts.sample_rate_hertz", 24000)

	v.SetDefault("imagen.enabled", true)
	v.SetDefault("imagen.location", "us-central1")
	v.SetDefault("imagen.model", "imagen-3.0-generate-002")
	v.SetDefault("imagen.timeout", 60*time.Second)
	v.SetDefault("imagen.mime_type", "image/png")

	v.SetDefault("stt.enabled", true)
	v.SetDefault("stt.provider", "browser")
	v.SetDefault("stt.language_code", "en-US")
	v.SetDefault("stt.sample_rate", 16000)

	v.SetDefault("sessions.idle_timeout", 30*time.Minute)
	v.SetDefault("sessions.sweep_interval", time.Minute)
	v.SetDefault("sessions.max_per_user", 4)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:8080"})
}
