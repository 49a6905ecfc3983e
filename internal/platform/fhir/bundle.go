package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// NewCollectionBundle wraps resources in a collection Bundle. Each entry
// gets a fullUrl built from its resourceType and id.
func NewCollectionBundle(id string, resources []map[string]interface{}) (*Bundle, error) {
	now := time.Now().UTC()
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle entry %d: %w", i, err)
		}
		entries[i] = BundleEntry{
			FullURL:  extractFullURL(r),
			Resource: raw,
		}
	}

	total := len(entries)
	return &Bundle{
		ResourceType: "Bundle",
		ID:           id,
		Type:         "collection",
		Total:        &total,
		Timestamp:    &now,
		Entry:        entries,
	}, nil
}

// extractFullURL builds a relative fullUrl from a resource's resourceType and id.
func extractFullURL(m map[string]interface{}) string {
	rt, _ := m["resourceType"].(string)
	id, _ := m["id"].(string)
	if rt != "" && id != "" {
		return FormatReference(rt, id)
	}
	return ""
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}
