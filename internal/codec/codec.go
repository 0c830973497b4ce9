// Package codec converts between the local store and the metadata
// document published to the remote store. Binary payloads never enter
// the document; they are replaced by asset identifiers and travel
// separately as an identifier-to-payload map.
package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alexjbarnes/chatsync/internal/models"
	"github.com/alexjbarnes/chatsync/internal/store"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/text/unicode/norm"
)

// DocumentVersion is the metadata format written by this package.
const DocumentVersion = 1

// Metadata is the document published to the remote store.
type Metadata struct {
	Version     int                        `json:"version"`
	SyncID      string                     `json:"syncId,omitempty"`
	PublishedAt time.Time                  `json:"publishedAt,omitzero"`
	Profiles    []models.Profile           `json:"profiles"`
	Chats       []models.Chat              `json:"chats"`
	Memory      []models.MemoryRecord      `json:"memory"`
	NamedAssets []models.NamedAsset        `json:"namedAssets"`
	Settings    map[string]json.RawMessage `json:"settings"`
}

// Export is the result of exporting the local store.
type Export struct {
	// Document is the encoded metadata without a sync token. Exporting
	// an unchanged store twice yields identical bytes.
	Document []byte

	// Metadata is the decoded form of Document.
	Metadata *Metadata

	// Assets maps every referenced identifier that has a local payload
	// to that payload.
	Assets map[string][]byte

	// Required lists every identifier the document references, sorted.
	Required []string

	// Local lists every identifier with a payload in the local store,
	// referenced or not, sorted.
	Local []string
}

// Missing returns required identifiers with no local payload.
func (e *Export) Missing() []string {
	var out []string

	for _, id := range e.Required {
		if _, ok := e.Assets[id]; !ok {
			out = append(out, id)
		}
	}

	return out
}

// ExportStore walks every entity in s and builds the metadata document
// and asset map. s is only read.
func ExportStore(s *store.Store) (*Export, error) {
	meta, payloads, err := collect(s)
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	required := meta.RequiredAssets()
	assets := make(map[string][]byte, len(required))

	for _, id := range required {
		if data, ok := payloads[id]; ok {
			assets[id] = data
		}
	}

	local := make([]string, 0, len(payloads))
	for id := range payloads {
		local = append(local, id)
	}

	sort.Strings(local)

	return &Export{Document: doc, Metadata: meta, Assets: assets, Required: required, Local: local}, nil
}

// LocalAssets returns every payload present in s keyed by identifier,
// whether or not metadata references it.
func LocalAssets(s *store.Store) (map[string][]byte, error) {
	_, payloads, err := collect(s)
	return payloads, err
}

// collect reads the store into stripped metadata plus the payloads that
// were stripped from it and the standalone media blobs.
func collect(s *store.Store) (*Metadata, map[string][]byte, error) {
	payloads := make(map[string][]byte)

	profiles, err := s.Profiles().GetAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading profiles: %w", err)
	}

	for i := range profiles {
		p := &profiles[i]
		if len(p.Icon) > 0 {
			if p.IconID == "" {
				p.IconID = models.DerivedAssetID(models.NamespaceIcon, seed(p.ID, p.Icon))
			}

			payloads[p.IconID] = p.Icon
			p.Icon = nil
		}
	}

	chats, err := s.Chats().GetAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading chats: %w", err)
	}

	for ci := range chats {
		c := &chats[ci]
		for mi := range c.Messages {
			m := &c.Messages[mi]
			for ai := range m.Attachments {
				a := &m.Attachments[ai]
				if len(a.Data) == 0 {
					continue
				}

				if a.AssetID == "" {
					a.AssetID = models.DerivedAssetID(models.NamespaceMedia,
						seed(fmt.Sprintf("%s/%d/%d", c.ID, mi, ai), a.Data))
				}

				payloads[a.AssetID] = a.Data
				a.Data = nil
			}
		}
	}

	memory, err := s.Memory().GetAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading memory: %w", err)
	}

	named, err := s.NamedAssets().GetAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading named assets: %w", err)
	}

	for i := range named {
		a := &named[i]
		a.Name = norm.NFC.String(a.Name)

		if len(a.Data) > 0 {
			payloads[a.ID] = a.Data
		}

		a.Data = nil
	}

	media, err := s.GetAll(store.Media)
	if err != nil {
		return nil, nil, fmt.Errorf("reading media: %w", err)
	}

	for id, data := range media {
		payloads[id] = data
	}

	settings, err := exportSettings(s)
	if err != nil {
		return nil, nil, err
	}

	meta := &Metadata{
		Version:     DocumentVersion,
		Profiles:    nonNil(profiles),
		Chats:       nonNil(chats),
		Memory:      nonNil(memory),
		NamedAssets: nonNil(named),
		Settings:    settings,
	}

	return meta, payloads, nil
}

func exportSettings(s *store.Store) (map[string]json.RawMessage, error) {
	raw, err := s.GetAll(store.Settings)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	out := make(map[string]json.RawMessage, len(raw))

	for k, v := range raw {
		if store.IsReservedSetting(k) {
			continue
		}

		if !json.Valid(v) {
			// Values written outside the JSON convention travel as strings.
			quoted, err := json.Marshal(string(v))
			if err != nil {
				return nil, err
			}

			v = quoted
		}

		out[k] = json.RawMessage(v)
	}

	return out, nil
}

// RequiredAssets returns every asset identifier the document references,
// sorted and deduplicated.
func (m *Metadata) RequiredAssets() []string {
	seen := make(map[string]struct{})

	for _, p := range m.Profiles {
		if p.IconID != "" {
			seen[p.IconID] = struct{}{}
		}
	}

	for _, c := range m.Chats {
		for _, id := range chatRefs(c) {
			seen[id] = struct{}{}
		}
	}

	for _, a := range m.NamedAssets {
		seen[a.ID] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}

// chatRefs returns the identifiers referenced by a chat's messages.
func chatRefs(c models.Chat) []string {
	var ids []string

	for _, m := range c.Messages {
		for _, a := range m.Attachments {
			if a.AssetID != "" {
				ids = append(ids, a.AssetID)
			}
		}

		ids = append(ids, m.ImageIDs...)
	}

	return ids
}

// Parse decodes a metadata document.
func Parse(doc []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	if m.Version > DocumentVersion {
		return nil, fmt.Errorf("metadata version %d is newer than supported version %d", m.Version, DocumentVersion)
	}

	return &m, nil
}

// PeekSyncID returns the sync token of a document without decoding it,
// or "" when the document has none.
func PeekSyncID(doc []byte) string {
	return gjson.GetBytes(doc, "syncId").String()
}

// StampSyncID returns doc with its sync token and publication time set.
func StampSyncID(doc []byte, syncID string, at time.Time) ([]byte, error) {
	out, err := sjson.SetBytes(doc, "syncId", syncID)
	if err != nil {
		return nil, fmt.Errorf("setting sync id: %w", err)
	}

	out, err = sjson.SetBytes(out, "publishedAt", at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("setting publish time: %w", err)
	}

	return out, nil
}

// Unstamped returns doc without its sync token and publication time, so
// two documents can be compared by content.
func Unstamped(doc []byte) []byte {
	out, err := sjson.DeleteBytes(doc, "syncId")
	if err != nil {
		return doc
	}

	if stripped, err := sjson.DeleteBytes(out, "publishedAt"); err == nil {
		out = stripped
	}

	return out
}

func seed(owner string, data []byte) []byte {
	b := make([]byte, 0, len(owner)+1+len(data))
	b = append(b, owner...)
	b = append(b, 0)

	return append(b, data...)
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}

	return v
}
