package assets

import (
	"encoding/json"
	"io/fs"
	"testing"
)

func TestLoadToolDefinitions(t *testing.T) {
	tools, err := LoadToolDefinitions()
	if err != nil {
		t.Fatalf("load tools: %v", err)
	}
	want := map[string]int{
		"web-search":         0,
		"web-fetch":          0,
		"codebase-retrieval": 1,
		"shell":              2,
		"str-replace-editor": 1,
		"save-file":          1,
		"launch-process":     2,
		"read-process":       1,
		"kill-process":       1,
	}
	if len(tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(tools))
	}
	for _, tool := range tools {
		safety, ok := want[tool.Name]
		if !ok {
			t.Fatalf("unexpected tool %q", tool.Name)
		}
		if tool.ToolSafety != safety {
			t.Fatalf("tool %s: expected safety %d, got %d", tool.Name, safety, tool.ToolSafety)
		}
		var schema map[string]any
		if err := json.Unmarshal([]byte(tool.InputSchemaJSON), &schema); err != nil {
			t.Fatalf("tool %s: schema is not json: %v", tool.Name, err)
		}
		if schema["type"] != "object" {
			t.Fatalf("tool %s: expected object schema, got %v", tool.Name, schema["type"])
		}
	}
}

func TestParseToolDefinitionsRejectsUnknownVersion(t *testing.T) {
	if _, err := ParseToolDefinitions([]byte(`{"version":2,"tools":[]}`)); err == nil {
		t.Fatal("expected version error")
	}
}

func TestLoadModels(t *testing.T) {
	models, err := LoadModels()
	if err != nil {
		t.Fatalf("load models: %v", err)
	}
	if models.Object != "list" || len(models.Data) != 2 {
		t.Fatalf("unexpected model list %+v", models)
	}
	if models.Data[0].ID != "claude-3-7-sonnet-20250219" || models.Data[0].Created != 1708387201 {
		t.Fatalf("unexpected first model %+v", models.Data[0])
	}
	if models.Data[1].ID != "claude-3.7" || models.Data[1].OwnedBy != "anthropic" {
		t.Fatalf("unexpected second model %+v", models.Data[1])
	}
}

func TestStaticFSHasIndex(t *testing.T) {
	if _, err := fs.Stat(StaticFS(), "index.html"); err != nil {
		t.Fatalf("expected embedded index.html: %v", err)
	}
}
