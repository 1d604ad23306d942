package assets

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
)

//go:embed files/tool-definitions.json files/models.json files/static/*
var FS embed.FS

const toolCatalogVersion = 1

// ToolDefinition is the upstream tool descriptor. The schema is carried as a
// compact JSON string because that is how the upstream expects it.
type ToolDefinition struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	InputSchemaJSON string `json:"inputSchemaJSON"`
	ToolSafety      int    `json:"toolSafety"`
}

type toolCatalog struct {
	Version int `json:"version"`
	Tools   []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		ToolSafety  int             `json:"tool_safety"`
		InputSchema json.RawMessage `json:"input_schema"`
	} `json:"tools"`
}

// Model mirrors one entry of the OpenAI model list.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

func LoadToolDefinitions() ([]ToolDefinition, error) {
	b, err := FS.ReadFile("files/tool-definitions.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded tool definitions: %w", err)
	}
	return ParseToolDefinitions(b)
}

func ParseToolDefinitions(b []byte) ([]ToolDefinition, error) {
	var cat toolCatalog
	if err := json.Unmarshal(b, &cat); err != nil {
		return nil, fmt.Errorf("decode tool definitions: %w", err)
	}
	if cat.Version != toolCatalogVersion {
		return nil, fmt.Errorf("unsupported tool catalog version %d", cat.Version)
	}
	out := make([]ToolDefinition, 0, len(cat.Tools))
	for _, t := range cat.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool definition without name")
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, t.InputSchema); err != nil {
			return nil, fmt.Errorf("tool %s: compact schema: %w", t.Name, err)
		}
		out = append(out, ToolDefinition{
			Name:            t.Name,
			Description:     t.Description,
			InputSchemaJSON: compact.String(),
			ToolSafety:      t.ToolSafety,
		})
	}
	return out, nil
}

func LoadModels() (ModelList, error) {
	b, err := FS.ReadFile("files/models.json")
	if err != nil {
		return ModelList{}, fmt.Errorf("read embedded models: %w", err)
	}
	var out ModelList
	if err := json.Unmarshal(b, &out); err != nil {
		return ModelList{}, fmt.Errorf("decode models: %w", err)
	}
	return out, nil
}

// StaticFS is the built-in web root served when no static directory is set.
func StaticFS() fs.FS {
	sub, err := fs.Sub(FS, "files/static")
	if err != nil {
		panic(err)
	}
	return sub
}
