package model

import "time"

// ================ Config ================

// BackendConfig is built once at start-up and handed to the router; nothing
// below it reads the environment again.
type BackendConfig struct {
	Provider   Provider      `envconfig:"AI_PROVIDER" default:"gemini"`
	Mode       Mode          `envconfig:"AI_BACKEND_MODE" default:"local"`
	Timeout    time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
	Gemini     GeminiConfig
	Vertex     VertexConfig
	Remote     RemoteConfig
	Generation GenerationConfig
}

type GeminiConfig struct {
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
	Model   string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
}

type VertexConfig struct {
	Project            string `envconfig:"VERTEX_PROJECT"`
	Location           string `envconfig:"VERTEX_LOCATION" default:"us-central1"`
	Model              string `envconfig:"VERTEX_MODEL" default:"gemini-2.5-flash"`
	ServiceAccountJSON string `envconfig:"VERTEX_SERVICE_ACCOUNT_JSON"`
	CredentialsFile    string `envconfig:"VERTEX_CREDENTIALS_FILE"`
}

type RemoteConfig struct {
	BaseURL     string `envconfig:"REMOTE_BASE_URL"`
	BearerToken string `envconfig:"REMOTE_BEARER_TOKEN"`
}

type GenerationConfig struct {
	Temperature     float32 `envconfig:"GENERATION_TEMPERATURE" default:"0.2"`
	MaxOutputTokens int     `envconfig:"GENERATION_MAX_OUTPUT_TOKENS" default:"8192"`
	JSONMode        bool    `envconfig:"GENERATION_JSON_MODE" default:"true"`
}

type CacheConfig struct {
	Namespace  string `envconfig:"CACHE_NAMESPACE" default:"menu_analysis"`
	TextWindow int    `envconfig:"CACHE_TEXT_WINDOW" default:"500"`
	CacheFirst bool   `envconfig:"CACHE_FIRST" default:"true"`
	Coalesce   bool   `envconfig:"CACHE_COALESCE" default:"false"`
}

type ExtractorConfig struct {
	MinSignal int `envconfig:"EXTRACTOR_MIN_SIGNAL" default:"2"`
	MaxItems  int `envconfig:"EXTRACTOR_MAX_ITEMS" default:"300"`
}

type ServerConfig struct {
	Addr        string `envconfig:"SERVER_ADDR"`
	BearerToken string `envconfig:"FUNCTION_BEARER_TOKEN"`
}
