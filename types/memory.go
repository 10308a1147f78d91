package types

import (
	"encoding/json"
	"time"
)

// Well-known memory tables. Custom tables are plain strings.
const (
	TableMessages     = "messages"
	TableDocuments    = "documents"
	TableFragments    = "fragments"
	TableLore         = "lore"
	TableDescriptions = "descriptions"
)

// Media is an attachment carried by a message.
type Media struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Source      string `json:"source,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Content is the payload of a memory. Unknown JSON fields survive a round trip through Extra.
type Content struct {
	Text        string         `json:"text"`
	Action      string         `json:"action,omitempty"`
	Source      string         `json:"source,omitempty"`
	URL         string         `json:"url,omitempty"`
	InReplyTo   string         `json:"inReplyTo,omitempty"`
	Attachments []Media        `json:"attachments,omitempty"`
	Extra       map[string]any `json:"-"`
}

type contentAlias Content

var contentKeys = map[string]struct{}{
	"text": {}, "action": {}, "source": {}, "url": {}, "inReplyTo": {}, "attachments": {},
}

// MarshalJSON flattens Extra next to the known fields.
func (c Content) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(contentAlias(c))
	if err != nil || len(c.Extra) == 0 {
		return base, err
	}
	merged := make(map[string]any, len(c.Extra)+6)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if _, known := contentKeys[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON keeps unrecognised fields in Extra.
func (c *Content) UnmarshalJSON(data []byte) error {
	var alias contentAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range contentKeys {
		delete(raw, k)
	}
	*c = Content(alias)
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// Memory is one stored conversational record.
type Memory struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	UserID    string    `json:"userId"`
	RoomID    string    `json:"roomId"`
	Content   Content   `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt int64     `json:"createdAt"` // epoch ms
	Unique    bool      `json:"unique"`

	// Similarity is only populated by vector search.
	Similarity float64 `json:"similarity,omitempty"`
}

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// HasEmbedding reports whether the memory already carries a vector.
func (m *Memory) HasEmbedding() bool {
	return m != nil && len(m.Embedding) > 0
}

// CachedEmbedding is a previously stored vector whose source text is close to a query.
type CachedEmbedding struct {
	Embedding        []float32 `json:"embedding"`
	LevenshteinScore int       `json:"levenshtein_score"`
}
