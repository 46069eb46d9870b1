// Package model contains simple struct definitions shared across packages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// LinkTTL is the fixed lifetime of a shareable viewer link. Policy, not
// configuration: every record expires exactly seven days after creation.
const LinkTTL = 7 * 24 * time.Hour

// SelectionRecord is the durable description of a page delivery request. It is
// created once during intake, read by the viewer, and never edited afterwards
// apart from the access counter.
type SelectionRecord struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	ProductID     string    `json:"productId,omitempty"`
	SourceURL     string    `json:"sourceUrl,omitempty"`
	SourceName    string    `json:"sourceName,omitempty"`
	SelectedPages []int     `json:"selectedPages"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	AccessCount   int       `json:"accessCount"`
}

// NewSelectionRecord builds a record with a generated id and the fixed expiry
// window applied. The pages slice is copied so later caller mutations cannot
// leak into the stored record.
func NewSelectionRecord(email, productID, sourceURL, sourceName string, pages []int) *SelectionRecord {
	now := time.Now().UTC()
	selected := make([]int, len(pages))
	copy(selected, pages)
	return &SelectionRecord{
		ID:            uuid.NewString(),
		Email:         email,
		ProductID:     productID,
		SourceURL:     sourceURL,
		SourceName:    sourceName,
		SelectedPages: selected,
		CreatedAt:     now,
		ExpiresAt:     now.Add(LinkTTL),
	}
}

// Expired reports whether the record's viewer link is past its window.
func (r *SelectionRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// PageAsset is an ephemeral raster image for one selected page. It lives in a
// scratch scope for the duration of a single pipeline run and is never
// persisted beyond it.
type PageAsset struct {
	Page int
	Name string
	Path string
}

// PageFailure records a page that could not be rasterized. Per-page failures
// never abort a request on their own.
type PageFailure struct {
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}
