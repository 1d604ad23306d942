package translate

import "github.com/xingyunzhou/augment2api/pkg/assets"

type ToolUse struct {
	ToolUseID string `json:"toolUseID"`
	ToolName  string `json:"toolName"`
	InputJSON string `json:"inputJSON"`
}

type AgentMemory struct {
	Content string `json:"content"`
}

type Node struct {
	ID          int         `json:"id"`
	Type        int         `json:"type"`
	Content     string      `json:"content"`
	ToolUse     ToolUse     `json:"toolUse"`
	AgentMemory AgentMemory `json:"agentMemory"`
}

type HistoryEntry struct {
	RequestMessage string `json:"requestMessage"`
	ResponseText   string `json:"responseText"`
	RequestID      string `json:"requestID"`
	RequestNodes   []Node `json:"requestNodes"`
	ResponseNodes  []Node `json:"responseNodes"`
}

type Blobs struct {
	CheckpointID string   `json:"checkpointID"`
	AddedBlobs   []string `json:"added_blobs"`
	DeletedBlobs []string `json:"deleted_blobs"`
}

type FeatureDetectionFlags struct {
	SupportRawOutput bool `json:"supportRawOutput"`
}

// UpstreamRequest is the body of POST {tenant}chat-stream.
type UpstreamRequest struct {
	Path                  string                  `json:"path"`
	Mode                  string                  `json:"mode"`
	Prefix                string                  `json:"prefix"`
	Suffix                string                  `json:"suffix"`
	Lang                  string                  `json:"lang"`
	Message               string                  `json:"message"`
	UserGuideLines        string                  `json:"userGuideLines"`
	ChatHistory           []HistoryEntry          `json:"chatHistory"`
	Blobs                 Blobs                   `json:"blobs"`
	UserGuidedBlobs       []string                `json:"userGuidedBlobs"`
	ExternalSourceIDs     []string                `json:"externalSourceIds"`
	FeatureDetectionFlags FeatureDetectionFlags   `json:"featureDetectionFlags"`
	ToolDefinitions       []assets.ToolDefinition `json:"toolDefinitions"`
	Nodes                 []Node                  `json:"nodes"`
}
