package models

import (
	"io"
	"strings"
	"time"
)

// AssetKind identifies which owner field an upload targets.
type AssetKind string

const (
	AssetResume AssetKind = "resume"
	AssetLogo   AssetKind = "logo"
)

type OwnerKind string

const (
	OwnerStudent OwnerKind = "student"
	OwnerCompany OwnerKind = "company"
)

// ResourceKind is how the remote store classifies an object.
type ResourceKind string

const (
	ResourceRaw   ResourceKind = "raw"
	ResourceImage ResourceKind = "image"
)

func ParseAssetKind(s string) (AssetKind, bool) {
	switch AssetKind(strings.ToLower(strings.TrimSpace(s))) {
	case AssetResume:
		return AssetResume, true
	case AssetLogo:
		return AssetLogo, true
	}
	return "", false
}

func (k AssetKind) OwnerKind() OwnerKind {
	if k == AssetLogo {
		return OwnerCompany
	}
	return OwnerStudent
}

// ResourceKind returns raw for documents so they are never routed through
// image processing on the remote side.
func (k AssetKind) ResourceKind() ResourceKind {
	if k == AssetLogo {
		return ResourceImage
	}
	return ResourceRaw
}

func (k AssetKind) String() string { return string(k) }

// UploadRequest carries one incoming file for the duration of a single call.
// Either Content or LocalPath must be set.
type UploadRequest struct {
	OwnerID          string
	Kind             AssetKind
	FileName         string
	Content          io.Reader
	LocalPath        string
	DeclaredMimeType string
	SizeBytes        int64
}

// StagedFile is a file placed on local ephemeral storage by the stager.
type StagedFile struct {
	LocalPath    string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	Kind         AssetKind
}

// RemoteAsset is an object held by the remote store.
type RemoteAsset struct {
	URL          string       `json:"url"`
	Identifier   string       `json:"identifier"`
	ResourceKind ResourceKind `json:"resource_kind"`
	MimeType     string       `json:"mime_type,omitempty"`
	SizeBytes    int64        `json:"size_bytes,omitempty"`
}

// OwnerRecord is a student or company profile holding the current asset
// reference for its kind. URL and identifier are persisted together.
type OwnerRecord struct {
	ID        string
	UserID    string
	Kind      OwnerKind
	Name      string
	ResumeURL string
	ResumeID  string
	LogoURL   string
	LogoID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *OwnerRecord) Asset(kind AssetKind) (url, identifier string) {
	switch kind {
	case AssetResume:
		return o.ResumeURL, o.ResumeID
	case AssetLogo:
		return o.LogoURL, o.LogoID
	}
	return "", ""
}

func (o *OwnerRecord) SetAsset(kind AssetKind, url, identifier string) {
	switch kind {
	case AssetResume:
		o.ResumeURL, o.ResumeID = url, identifier
	case AssetLogo:
		o.LogoURL, o.LogoID = url, identifier
	}
}

func (o *OwnerRecord) ClearAsset(kind AssetKind) {
	o.SetAsset(kind, "", "")
}

// DocumentInfo is what could be learned from a staged document.
type DocumentInfo struct {
	Format     string
	Pages      int
	Paragraphs int
}
