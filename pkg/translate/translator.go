// Package translate maps OpenAI chat requests onto the upstream chat-stream
// request shape.
package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/xingyunzhou/augment2api/pkg/assets"
	"github.com/xingyunzhou/augment2api/pkg/config"
)

type Translator struct {
	Clock        func() time.Time
	NewID        func() string
	Tools        []assets.ToolDefinition
	SystemPrompt string
	Prefix       string
	Guidelines   string
	Mode         string
}

// New builds a translator from the upstream config section and the embedded
// tool catalog.
func New(cfg config.UpstreamConfig) (*Translator, error) {
	tools, err := assets.LoadToolDefinitions()
	if err != nil {
		return nil, err
	}
	return &Translator{
		Clock:        time.Now,
		NewID:        uuid.NewString,
		Tools:        tools,
		SystemPrompt: cfg.SystemPrompt,
		Prefix:       cfg.Prefix,
		Guidelines:   cfg.UserGuidelines,
		Mode:         cfg.Mode,
	}, nil
}

// CheckpointID hashes the decimal millisecond timestamp.
func CheckpointID(now time.Time) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(now.UnixMilli(), 10)))
	return hex.EncodeToString(sum[:])
}

// ToUpstreamRequest pairs messages (0,1), (2,3), ... into history, leaving the
// final message as the current one. A trailing unpaired message before the
// final one is dropped.
func (t *Translator) ToUpstreamRequest(in Inbound) UpstreamRequest {
	clock := t.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := t.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	tools := t.Tools
	if tools == nil {
		tools = []assets.ToolDefinition{}
	}

	req := UpstreamRequest{
		Path:           "",
		Mode:           t.Mode,
		Prefix:         t.Prefix,
		Suffix:         " ",
		Lang:           DetectLanguage(in.Messages),
		UserGuideLines: t.Guidelines,
		ChatHistory:    []HistoryEntry{},
		Blobs: Blobs{
			CheckpointID: CheckpointID(clock()),
			AddedBlobs:   []string{},
			DeletedBlobs: []string{},
		},
		UserGuidedBlobs:       []string{},
		ExternalSourceIDs:     []string{},
		FeatureDetectionFlags: FeatureDetectionFlags{SupportRawOutput: true},
		ToolDefinitions:       tools,
		Nodes:                 []Node{},
	}

	n := len(in.Messages)
	for i := 0; i+1 < n-1; i += 2 {
		asked := in.Messages[i].Content.Text()
		answered := in.Messages[i+1].Content.Text()
		req.ChatHistory = append(req.ChatHistory, HistoryEntry{
			RequestMessage: asked,
			ResponseText:   answered,
			RequestID:      newID(),
			RequestNodes:   []Node{},
			ResponseNodes:  []Node{{Content: answered}},
		})
	}

	if n > 0 {
		req.Message = t.SystemPrompt + "\n" + in.Messages[n-1].Content.Text()
	}
	return req
}
