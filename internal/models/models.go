// Package models defines the entities held in the local store and
// carried in the synced metadata document.
package models

import "time"

// APIUsage is a date-scoped request counter.
type APIUsage struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Profile is a user profile. Icon holds the raw image bytes locally;
// the exported metadata replaces it with IconID.
type Profile struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Icon     []byte         `json:"icon,omitempty"`
	IconID   string         `json:"iconId,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
	APIUsage APIUsage       `json:"apiUsage"`
}

// SetIcon replaces the profile icon. A fresh identifier is assigned so
// peers holding the previous payload fetch the new one.
func (p *Profile) SetIcon(data []byte) {
	if len(data) == 0 {
		p.Icon = nil
		p.IconID = ""

		return
	}

	p.Icon = data
	p.IconID = NewAssetID(NamespaceIcon)
}

// Attachment references a binary payload by asset identifier. Data is an
// optional inline portable copy, used when the payload has not been
// stored as standalone media yet.
type Attachment struct {
	AssetID  string `json:"assetId,omitempty"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Message is a single turn in a conversation. Messages never own binary
// data directly; generated media is referenced through ImageIDs.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ImageIDs    []string     `json:"imageIds,omitempty"`
	CreatedAt   time.Time    `json:"createdAt,omitzero"`
}

// Summary records a compaction of earlier messages.
type Summary struct {
	Text       string    `json:"text"`
	UpToIndex  int       `json:"upToIndex"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
	TokenCount int       `json:"tokenCount,omitempty"`
}

// ChatStats is derived from the message list and never edited directly.
type ChatStats struct {
	MessageCount    int `json:"messageCount"`
	UserMessages    int `json:"userMessages"`
	AttachmentCount int `json:"attachmentCount"`
	ImageCount      int `json:"imageCount"`
}

// Chat is a conversation.
type Chat struct {
	ID                string         `json:"id"`
	ProfileID         string         `json:"profileId,omitempty"`
	Title             string         `json:"title"`
	Messages          []Message      `json:"messages"`
	SystemPrompt      string         `json:"systemPrompt,omitempty"`
	PersistentMemory  map[string]any `json:"persistentMemory,omitempty"`
	SummarizedContext *Summary       `json:"summarizedContext,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	Stats             ChatStats      `json:"stats"`
}

// ComputeStats recalculates Stats from Messages.
func (c *Chat) ComputeStats() {
	var st ChatStats

	for _, m := range c.Messages {
		st.MessageCount++

		if m.Role == "user" {
			st.UserMessages++
		}

		st.AttachmentCount += len(m.Attachments)
		st.ImageCount += len(m.ImageIDs)
	}

	c.Stats = st
}

// MemoryRecord holds the free-text memory items of one profile.
type MemoryRecord struct {
	ProfileID string   `json:"profileId"`
	Items     []string `json:"items"`
}

// NamedAsset is a user-named binary payload.
type NamedAsset struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}
