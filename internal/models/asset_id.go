package models

import (
	"strings"

	"github.com/google/uuid"
)

// Namespace scopes an asset identifier to the kind of entity owning it.
type Namespace string

const (
	NamespaceIcon  Namespace = "icon"
	NamespaceAsset Namespace = "asset"
	NamespaceMedia Namespace = "media"
)

const assetIDSep = "_"

// assetIDSpace seeds deterministic identifiers for payloads that reach
// export without one (inline attachments, legacy icons).
var assetIDSpace = uuid.MustParse("6f1c1d8e-2a55-4c59-9d39-51b0c2f6a0e4")

// NewAssetID returns a fresh identifier in ns. Two calls never return
// the same identifier, even for identical payloads.
func NewAssetID(ns Namespace) string {
	return string(ns) + assetIDSep + uuid.NewString()
}

// DerivedAssetID returns a stable identifier in ns for the given seed.
// The same seed always yields the same identifier.
func DerivedAssetID(ns Namespace, seed []byte) string {
	return string(ns) + assetIDSep + uuid.NewSHA1(assetIDSpace, seed).String()
}

// ParseAssetID splits an identifier into namespace and opaque part.
// ok is false when the namespace is not recognized.
func ParseAssetID(id string) (ns Namespace, rest string, ok bool) {
	prefix, rest, found := strings.Cut(id, assetIDSep)
	if !found || rest == "" {
		return "", "", false
	}

	switch Namespace(prefix) {
	case NamespaceIcon, NamespaceAsset, NamespaceMedia:
		return Namespace(prefix), rest, true
	}

	return "", "", false
}
