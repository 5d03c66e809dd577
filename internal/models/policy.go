package models

import (
	"mime"
	"strings"
)

const (
	MimePDF  = "application/pdf"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// AssetPolicy is the size ceiling and type allow-list for one asset kind.
type AssetPolicy struct {
	Kind     AssetKind
	MaxBytes int64
	allow    func(mimeType string) bool
}

var policies = map[AssetKind]AssetPolicy{
	AssetResume: {
		Kind:     AssetResume,
		MaxBytes: 5 << 20,
		allow: func(m string) bool {
			return m == MimePDF || m == MimeDOC || m == MimeDOCX
		},
	},
	AssetLogo: {
		Kind:     AssetLogo,
		MaxBytes: 2 << 20,
		allow: func(m string) bool {
			return strings.HasPrefix(m, "image/")
		},
	},
}

// PolicyFor returns the policy for kind. Unknown kinds get a policy that
// accepts nothing.
func PolicyFor(kind AssetKind) AssetPolicy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return AssetPolicy{Kind: kind, allow: func(string) bool { return false }}
}

func (p AssetPolicy) Allows(mimeType string) bool {
	if p.allow == nil {
		return false
	}
	return p.allow(NormalizeMime(mimeType))
}

// NormalizeMime strips parameters and lower-cases a MIME type.
func NormalizeMime(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}
