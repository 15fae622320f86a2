package config

import (
	"reflect"
	"testing"
)

func TestDefaultRelatedProjectsCSV(t *testing.T) {
	s := &Settings{DefaultRelatedProjectsRaw: " /srv/a , /srv/b ,, "}
	got := s.DefaultRelatedProjects()
	if !reflect.DeepEqual(got, []string{"/srv/a", "/srv/b"}) {
		t.Fatalf("csv parse = %v", got)
	}
}

func TestDefaultRelatedProjectsJSON(t *testing.T) {
	s := &Settings{DefaultRelatedProjectsRaw: `["/srv/a", "/srv/b"]`}
	got := s.DefaultRelatedProjects()
	if !reflect.DeepEqual(got, []string{"/srv/a", "/srv/b"}) {
		t.Fatalf("json parse = %v", got)
	}
}

func TestDefaultRelatedProjectsEmpty(t *testing.T) {
	s := &Settings{}
	if got := s.DefaultRelatedProjects(); got != nil {
		t.Fatalf("want nil, got %v", got)
	}
}

func TestEmbeddingDims(t *testing.T) {
	s := &Settings{OpenAIAPIKey: "sk-test", OpenAIEmbeddingDims: 1536, OllamaEmbeddingDims: 768}
	if !s.UseOpenAI() {
		t.Fatal("api key should select openai")
	}
	if got := s.EmbeddingDims(); got != 1536 {
		t.Fatalf("openai dims = %d", got)
	}
	s.OpenAIAPIKey = ""
	if got := s.EmbeddingDims(); got != 768 {
		t.Fatalf("ollama dims = %d", got)
	}
}
