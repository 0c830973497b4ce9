package codec

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/alexjbarnes/chatsync/internal/models"
	"github.com/alexjbarnes/chatsync/internal/store"
	"golang.org/x/text/unicode/norm"
)

// Resolver returns the payload for an asset identifier, or false when
// it is unavailable both locally and remotely.
type Resolver func(id string) ([]byte, bool)

// MapResolver resolves identifiers from the given maps, checked in order.
func MapResolver(sources ...map[string][]byte) Resolver {
	return func(id string) ([]byte, bool) {
		for _, src := range sources {
			if data, ok := src[id]; ok {
				return data, true
			}
		}

		return nil, false
	}
}

// MissingReport maps a human-readable entity label to the identifiers
// it references that could not be resolved.
type MissingReport map[string][]string

func (r MissingReport) add(label, id string) {
	label = norm.NFC.String(label)
	for _, existing := range r[label] {
		if existing == id {
			return
		}
	}

	r[label] = append(r[label], id)
}

// AssetIDs returns every missing identifier, sorted and deduplicated.
func (r MissingReport) AssetIDs() []string {
	seen := make(map[string]struct{})

	for _, ids := range r {
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}

// Entities returns the affected entity labels, sorted.
func (r MissingReport) Entities() []string {
	out := make([]string, 0, len(r))
	for label := range r {
		out = append(out, label)
	}

	sort.Strings(out)

	return out
}

// MissingAssetsError is returned by Import when referenced payloads
// cannot be resolved. Nothing is imported in that case.
type MissingAssetsError struct {
	Report MissingReport
}

func (e *MissingAssetsError) Error() string {
	return fmt.Sprintf("%d assets missing across %d entities: %s",
		len(e.Report.AssetIDs()), len(e.Report), strings.Join(e.Report.Entities(), ", "))
}

func (e *MissingAssetsError) Is(target error) bool {
	return target == apperrors.ErrMissingAssets
}

// Import converts a metadata document into a full replacement snapshot
// for the local store. Every referenced identifier must resolve; if any
// does not, a *MissingAssetsError describing all of them is returned and
// no snapshot is produced.
//
// The snapshot's settings collection holds only the exported settings.
// Callers merge in the engine-owned keys before replacing the store.
func Import(doc []byte, resolve Resolver) (store.Snapshot, error) {
	meta, err := Parse(doc)
	if err != nil {
		return nil, err
	}

	report := make(MissingReport)
	media := make(map[string][]byte)

	profiles := make([]models.Profile, len(meta.Profiles))
	for i, p := range meta.Profiles {
		if p.IconID != "" {
			data, ok := resolve(p.IconID)
			if !ok {
				report.add(profileLabel(p), p.IconID)
			}

			p.Icon = data
		}

		profiles[i] = p
	}

	for _, c := range meta.Chats {
		label := chatLabel(c)

		for mi := range c.Messages {
			m := &c.Messages[mi]

			for ai := range m.Attachments {
				a := &m.Attachments[ai]
				if a.AssetID == "" {
					continue
				}

				data, ok := resolve(a.AssetID)
				if !ok && len(a.Data) > 0 {
					data, ok = a.Data, true
				}

				a.Data = nil

				if !ok {
					report.add(label, a.AssetID)
					continue
				}

				keepMedia(media, a.AssetID, data)
			}

			for _, id := range m.ImageIDs {
				data, ok := resolve(id)
				if !ok {
					report.add(label, id)
					continue
				}

				keepMedia(media, id, data)
			}
		}
	}

	named := make([]models.NamedAsset, len(meta.NamedAssets))
	for i, a := range meta.NamedAssets {
		data, ok := resolve(a.ID)
		if !ok {
			report.add(namedLabel(a), a.ID)
		}

		a.Data = data
		named[i] = a
	}

	if len(report) > 0 {
		return nil, &MissingAssetsError{Report: report}
	}

	snap := store.Snapshot{store.Media: media}

	if snap[store.Profiles], err = store.EncodeEntries(profiles, store.ProfileKey); err != nil {
		return nil, err
	}

	if snap[store.Chats], err = store.EncodeEntries(meta.Chats, store.ChatKey); err != nil {
		return nil, err
	}

	if snap[store.Memory], err = store.EncodeEntries(meta.Memory, store.MemoryKey); err != nil {
		return nil, err
	}

	if snap[store.Assets], err = store.EncodeEntries(named, store.NamedAssetKey); err != nil {
		return nil, err
	}

	settings := make(map[string][]byte, len(meta.Settings))
	for k, v := range meta.Settings {
		if store.IsReservedSetting(k) {
			continue
		}

		settings[k] = []byte(v)
	}

	snap[store.Settings] = settings

	return snap, nil
}

// ReportMissing labels each of ids with the entities in meta that
// reference it.
func ReportMissing(meta *Metadata, ids []string) MissingReport {
	report := make(MissingReport)
	if len(ids) == 0 {
		return report
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	for _, p := range meta.Profiles {
		if _, ok := want[p.IconID]; ok {
			report.add(profileLabel(p), p.IconID)
		}
	}

	for _, c := range meta.Chats {
		for _, id := range chatRefs(c) {
			if _, ok := want[id]; ok {
				report.add(chatLabel(c), id)
			}
		}
	}

	for _, a := range meta.NamedAssets {
		if _, ok := want[a.ID]; ok {
			report.add(namedLabel(a), a.ID)
		}
	}

	return report
}

// keepMedia records data under id unless id names a named asset, which
// lives in its own collection.
func keepMedia(media map[string][]byte, id string, data []byte) {
	if ns, _, _ := models.ParseAssetID(id); ns != models.NamespaceAsset {
		media[id] = data
	}
}

func profileLabel(p models.Profile) string {
	return fmt.Sprintf("profile %q", labelOr(p.Name, p.ID))
}

func chatLabel(c models.Chat) string {
	return fmt.Sprintf("chat %q", labelOr(c.Title, c.ID))
}

func namedLabel(a models.NamedAsset) string {
	return fmt.Sprintf("asset %q", labelOr(a.Name, a.ID))
}

func labelOr(name, id string) string {
	if strings.TrimSpace(name) == "" {
		return id
	}

	return name
}
