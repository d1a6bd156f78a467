package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackendConfig holds the connection settings for one vector-engine backend.
type BackendConfig struct {
	Address string `yaml:"address"` // Milvus endpoint (host:port or URI)
	APIKey  string `yaml:"apiKey"`  // optional, managed-cloud deployments only
}

// VectorConfig describes the two storage tiers and their collections.
type VectorConfig struct {
	Durable BackendConfig `yaml:"durable"` // always required; init failure is fatal
	Fast    BackendConfig `yaml:"fast"`    // optional; init failure degrades to durable-only

	DurableCollection string `yaml:"durableCollection"` // canonical durable collection
	FastCollection    string `yaml:"fastCollection"`    // canonical fast collection
	ReplicaCollection string `yaml:"replicaCollection"` // fast-tier replica hosted on the durable backend
}

// GeminiConfig configures the high-capacity embedding and generation models.
type GeminiConfig struct {
	APIKey         string `yaml:"apiKey"`
	APIKey2        string `yaml:"apiKey2"` // optional second credential for rotation
	EmbeddingModel string `yaml:"embeddingModel"`
	ChatModel      string `yaml:"chatModel"`
	EmbeddingDim   int    `yaml:"embeddingDim"`
}

// LocalConfig configures the low-capacity local embedding/generation endpoint.
type LocalConfig struct {
	OllamaURL      string `yaml:"ollamaURL"`
	EmbeddingModel string `yaml:"embeddingModel"`
	ChatModel      string `yaml:"chatModel"`
	EmbeddingDim   int    `yaml:"embeddingDim"`
}

// HuggingFaceConfig configures the remote fallback for the local endpoint.
type HuggingFaceConfig struct {
	Token          string `yaml:"token"`
	EmbeddingModel string `yaml:"embeddingModel"`
	ChatModel      string `yaml:"chatModel"`
	EmbeddingURL   string `yaml:"embeddingURL"` // defaults to the HF feature-extraction endpoint
	ChatURL        string `yaml:"chatURL"`      // defaults to the HF models endpoint
}

// MongoConfig configures the chat-history store.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// ChatConfig groups chat-history settings, including the file fallback.
type ChatConfig struct {
	Mongo       MongoConfig `yaml:"mongo"`
	FallbackDir string      `yaml:"fallbackDir"` // JSON files used when Mongo is unreachable
}

// IngestConfig configures the document inbox and routing folders.
type IngestConfig struct {
	InboxDir       string `yaml:"inboxDir"`
	StoredDir      string `yaml:"storedDir"`
	DurableOnlyDir string `yaml:"durableOnlyDir"`
	FastOnlyDir    string `yaml:"fastOnlyDir"`
	ChunkSize      int    `yaml:"chunkSize"`
	ChunkOverlap   int    `yaml:"chunkOverlap"`
}

// QueryConfig configures retrieval and attribution behavior.
type QueryConfig struct {
	TopK          int `yaml:"topK"`
	HistoryWindow int `yaml:"historyWindow"`
	MaxSources    int `yaml:"maxSources"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LoggerConfig configures logging.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	Logger      LoggerConfig      `yaml:"logger"`
	Server      ServerConfig      `yaml:"server"`
	Vector      VectorConfig      `yaml:"vector"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	Local       LocalConfig       `yaml:"local"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface"`
	Chat        ChatConfig        `yaml:"chat"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Query       QueryConfig       `yaml:"query"`
}

// Load reads and parses the YAML configuration file at path, applies
// defaults, and overlays secrets from the environment.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if cfg.Vector.Durable.Address == "" {
		return nil, fmt.Errorf("vector.durable.address is required")
	}

	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Vector.DurableCollection == "" {
		c.Vector.DurableCollection = "rag_durable"
	}
	if c.Vector.FastCollection == "" {
		c.Vector.FastCollection = "rag_fast"
	}
	if c.Vector.ReplicaCollection == "" {
		c.Vector.ReplicaCollection = c.Vector.FastCollection + "_replica"
	}
	if c.Gemini.EmbeddingModel == "" {
		c.Gemini.EmbeddingModel = "gemini-embedding-001"
	}
	if c.Gemini.ChatModel == "" {
		c.Gemini.ChatModel = "gemini-2.5-flash"
	}
	if c.Gemini.EmbeddingDim == 0 {
		c.Gemini.EmbeddingDim = 3072
	}
	if c.Local.OllamaURL == "" {
		c.Local.OllamaURL = "http://localhost:11434"
	}
	if c.Local.EmbeddingModel == "" {
		c.Local.EmbeddingModel = "embeddinggemma:300m"
	}
	if c.Local.ChatModel == "" {
		c.Local.ChatModel = "qwen3:1.7b"
	}
	if c.Local.EmbeddingDim == 0 {
		c.Local.EmbeddingDim = 768
	}
	if c.HuggingFace.EmbeddingModel == "" {
		c.HuggingFace.EmbeddingModel = "google/embeddinggemma-300m"
	}
	if c.HuggingFace.ChatModel == "" {
		c.HuggingFace.ChatModel = "Qwen/Qwen3-1.7B"
	}
	if c.Chat.Mongo.Database == "" {
		c.Chat.Mongo.Database = "devkraft_rag"
	}
	if c.Chat.Mongo.Collection == "" {
		c.Chat.Mongo.Collection = "chat_history"
	}
	if c.Chat.FallbackDir == "" {
		c.Chat.FallbackDir = "user_chat"
	}
	if c.Ingest.InboxDir == "" {
		c.Ingest.InboxDir = "generate_embeddings"
	}
	if c.Ingest.StoredDir == "" {
		c.Ingest.StoredDir = c.Ingest.InboxDir + "/stored"
	}
	if c.Ingest.DurableOnlyDir == "" {
		c.Ingest.DurableOnlyDir = c.Ingest.InboxDir + "/stored_durable_only"
	}
	if c.Ingest.FastOnlyDir == "" {
		c.Ingest.FastOnlyDir = c.Ingest.InboxDir + "/stored_fast_only"
	}
	if c.Ingest.ChunkSize == 0 {
		c.Ingest.ChunkSize = 2000
	}
	if c.Ingest.ChunkOverlap == 0 {
		c.Ingest.ChunkOverlap = 400
	}
	if c.Query.TopK == 0 {
		c.Query.TopK = 4
	}
	if c.Query.HistoryWindow == 0 {
		c.Query.HistoryWindow = 5
	}
	if c.Query.MaxSources == 0 {
		c.Query.MaxSources = 3
	}
}

// applyEnv overlays secrets from environment variables so they need not be
// committed to the config file.
func (c *AppConfig) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY2"); v != "" {
		c.Gemini.APIKey2 = v
	}
	if v := os.Getenv("HF_TOKEN"); v != "" {
		c.HuggingFace.Token = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Chat.Mongo.URI = v
	}
	if v := os.Getenv("VECTOR_API_KEY"); v != "" {
		c.Vector.Durable.APIKey = v
	}
}
