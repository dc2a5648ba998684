package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "FOLIOCHAT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.admin_token", typ: kString, env: "FOLIOCHAT_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "ollama.base_url", typ: kString, env: "FOLIOCHAT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "FOLIOCHAT_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "FOLIOCHAT_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FOLIOCHAT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "FOLIOCHAT_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.min_score", typ: kFloat, env: "FOLIOCHAT_RETRIEVAL_MIN_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinScore = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinScore },
	},
	{
		key: "owner.name", typ: kString, env: "FOLIOCHAT_OWNER_NAME",
		apply:   func(cfg *Config, v any) { cfg.Owner.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Owner.Name },
	},
	{
		key: "owner.resume_pdf", typ: kString, env: "FOLIOCHAT_OWNER_RESUME_PDF",
		apply:   func(cfg *Config, v any) { cfg.Owner.ResumePDF = v.(string) },
		extract: func(cfg Config) any { return cfg.Owner.ResumePDF },
	},
	{
		key: "delivery.email_api_key", typ: kString, env: "FOLIOCHAT_EMAIL_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Delivery.EmailAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Delivery.EmailAPIKey },
	},
	{
		key: "delivery.email_from", typ: kString, env: "FOLIOCHAT_EMAIL_FROM",
		apply:   func(cfg *Config, v any) { cfg.Delivery.EmailFrom = v.(string) },
		extract: func(cfg Config) any { return cfg.Delivery.EmailFrom },
	},
	{
		key: "delivery.sms_account_sid", typ: kString, env: "FOLIOCHAT_SMS_ACCOUNT_SID",
		apply:   func(cfg *Config, v any) { cfg.Delivery.SMSAccountSID = v.(string) },
		extract: func(cfg Config) any { return cfg.Delivery.SMSAccountSID },
	},
	{
		key: "delivery.sms_auth_token", typ: kString, env: "FOLIOCHAT_SMS_AUTH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Delivery.SMSAuthToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Delivery.SMSAuthToken },
	},
	{
		key: "delivery.sms_from", typ: kString, env: "FOLIOCHAT_SMS_FROM",
		apply:   func(cfg *Config, v any) { cfg.Delivery.SMSFrom = v.(string) },
		extract: func(cfg Config) any { return cfg.Delivery.SMSFrom },
	},
	{
		key: "delivery.sms_to", typ: kString, env: "FOLIOCHAT_SMS_TO",
		apply:   func(cfg *Config, v any) { cfg.Delivery.SMSTo = v.(string) },
		extract: func(cfg Config) any { return cfg.Delivery.SMSTo },
	},
	{
		key: "log.level", typ: kString, env: "FOLIOCHAT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
