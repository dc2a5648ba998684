package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Owner     OwnerConfig
	Delivery  DeliveryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port       int
	AdminToken string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK     int
	MinScore float64
}

type OwnerConfig struct {
	Name      string
	ResumePDF string
}

type DeliveryConfig struct {
	EmailAPIKey   string
	EmailFrom     string
	SMSAccountSID string
	SMSAuthToken  string
	SMSFrom       string
	SMSTo         string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "phi3.5",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Retrieval: RetrievalConfig{
			TopK:     5,
			MinScore: 0.35,
		},
		Owner: OwnerConfig{
			ResumePDF: filepath.Join(dataDir, "resume.pdf"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.foliochat.app) and
// secrets fall back to macOS Keychain. On Linux the backend is a JSON file
// at $XDG_CONFIG_HOME/foliochat/config.json and secrets must be provided
// via environment variables or the local secrets file.
//
// Environment variables (FOLIOCHAT_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

const keychainService = "foliochat"

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Secrets fall back to the platform secret store.
	if cfg.Delivery.EmailAPIKey == "" {
		if key, err := kc.Get(keychainService, "email_api_key"); err == nil && key != "" {
			cfg.Delivery.EmailAPIKey = key
		}
	}
	if cfg.Server.AdminToken == "" {
		if token, err := kc.Get(keychainService, "admin_token"); err == nil && token != "" {
			cfg.Server.AdminToken = token
		}
	}
	if cfg.Delivery.SMSAuthToken == "" {
		if token, err := kc.Get(keychainService, "sms_auth_token"); err == nil && token != "" {
			cfg.Delivery.SMSAuthToken = token
		}
	}

	if cfg.Owner.Name == "" {
		return Config{}, fmt.Errorf("missing required config: owner name. Set it via `config set owner.name` or FOLIOCHAT_OWNER_NAME")
	}
	if cfg.Delivery.EmailAPIKey == "" {
		return Config{}, fmt.Errorf("missing required config: email API key. Set it via environment variable FOLIOCHAT_EMAIL_API_KEY%s", apiKeyHint())
	}
	if cfg.Server.AdminToken == "" {
		return Config{}, fmt.Errorf("missing required config: admin token. Set it via environment variable FOLIOCHAT_ADMIN_TOKEN%s", apiKeyHint())
	}

	return cfg, nil
}

// SMSEnabled reports whether the SMS notification credentials are complete.
// SMS is optional; the delivery path skips the notification when any piece
// is missing.
func (c DeliveryConfig) SMSEnabled() bool {
	return c.SMSAccountSID != "" && c.SMSAuthToken != "" && c.SMSFrom != "" && c.SMSTo != ""
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
