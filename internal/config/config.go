// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Settings is the full runtime configuration of the memory server.
type Settings struct {
	CBConnectionString string `env:"CB_CONNECTION_STRING" envDefault:"couchbase://localhost"`
	CBUsername         string `env:"CB_USERNAME" envDefault:"Administrator"`
	CBPassword         string `env:"CB_PASSWORD" envDefault:"password"`
	CBBucket           string `env:"CB_BUCKET" envDefault:"coding-memory"`

	OpenAIAPIKey         string `env:"OPENAI_API_KEY"`
	OpenAIEmbeddingModel string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	OpenAIEmbeddingDims  int    `env:"OPENAI_EMBEDDING_DIMS" envDefault:"1536"`

	OllamaHost           string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	OllamaEmbeddingDims  int    `env:"OLLAMA_EMBEDDING_DIMS" envDefault:"768"`

	DefaultProjectID            string `env:"DEFAULT_PROJECT_ID" envDefault:"default"`
	CurrentProjectID            string `env:"CURRENT_PROJECT_ID"`
	IncludeAllProjectsByDefault bool   `env:"INCLUDE_ALL_PROJECTS_BY_DEFAULT" envDefault:"true"`
	DefaultRelatedProjectsRaw   string `env:"DEFAULT_RELATED_PROJECTS"`

	AutoImportClaudeOnStart bool   `env:"AUTO_IMPORT_CLAUDE_ON_START" envDefault:"true"`
	AutoImportClaudePath    string `env:"AUTO_IMPORT_CLAUDE_PATH"`
	AutoImportCodexOnStart  bool   `env:"AUTO_IMPORT_CODEX_ON_START" envDefault:"true"`
	AutoImportCodexPath     string `env:"AUTO_IMPORT_CODEX_PATH"`

	AutoImportOnQuery            bool `env:"AUTO_IMPORT_ON_QUERY" envDefault:"true"`
	AutoImportMinIntervalSeconds int  `env:"AUTO_IMPORT_MIN_INTERVAL_SECONDS" envDefault:"45"`
}

// Load reads settings from a .env file (if present) and the process
// environment. Unset workspace-dependent fields fall back to the current
// working directory and the user's home.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	if s.CurrentProjectID == "" {
		if wd, err := os.Getwd(); err == nil {
			s.CurrentProjectID = wd
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if s.AutoImportClaudePath == "" {
		s.AutoImportClaudePath = filepath.Join(home, ".claude", "projects")
	}
	if s.AutoImportCodexPath == "" {
		s.AutoImportCodexPath = filepath.Join(home, ".codex")
	}
	return s, nil
}

// DefaultRelatedProjects parses DEFAULT_RELATED_PROJECTS, which may be a
// JSON array or a comma separated list.
func (s *Settings) DefaultRelatedProjects() []string {
	raw := strings.TrimSpace(s.DefaultRelatedProjectsRaw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err == nil {
			return ids
		}
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

// UseOpenAI reports whether OpenAI is the active embedding provider.
func (s *Settings) UseOpenAI() bool { return s.OpenAIAPIKey != "" }

// EmbeddingDims returns the vector width of the active provider.
func (s *Settings) EmbeddingDims() int {
	if s.UseOpenAI() {
		return s.OpenAIEmbeddingDims
	}
	return s.OllamaEmbeddingDims
}
