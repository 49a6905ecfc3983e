package fhir

import (
	"encoding/json"
	"testing"
)

func TestNewCollectionBundle(t *testing.T) {
	resources := []map[string]interface{}{
		{"resourceType": "Patient", "id": "p1"},
		{"resourceType": "Condition", "id": "c1"},
		{"resourceType": "Basic"},
	}

	b, err := NewCollectionBundle("b1", resources)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ResourceType != "Bundle" || b.Type != "collection" {
		t.Errorf("expected collection Bundle, got %s/%s", b.ResourceType, b.Type)
	}
	if b.Total == nil || *b.Total != 3 {
		t.Errorf("expected total 3, got %v", b.Total)
	}
	if b.Entry[0].FullURL != "Patient/p1" {
		t.Errorf("expected Patient/p1, got %s", b.Entry[0].FullURL)
	}
	if b.Entry[2].FullURL != "" {
		t.Errorf("expected empty fullUrl without id, got %s", b.Entry[2].FullURL)
	}

	var first map[string]interface{}
	if err := json.Unmarshal(b.Entry[1].Resource, &first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first["id"] != "c1" {
		t.Errorf("expected c1, got %v", first["id"])
	}
}

func TestNewCollectionBundle_Empty(t *testing.T) {
	b, err := NewCollectionBundle("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *b.Total != 0 || len(b.Entry) != 0 {
		t.Errorf("expected empty bundle, got %+v", b)
	}
}

func TestNewCollectionBundle_Unmarshalable(t *testing.T) {
	_, err := NewCollectionBundle("", []map[string]interface{}{{"bad": make(chan int)}})
	if err == nil {
		t.Error("expected error for unmarshalable resource")
	}
}

func TestErrorOutcome(t *testing.T) {
	o := ErrorOutcome("boom")
	if o.ResourceType != "OperationOutcome" {
		t.Errorf("expected OperationOutcome, got %s", o.ResourceType)
	}
	if len(o.Issue) != 1 || o.Issue[0].Severity != "error" || o.Issue[0].Code != "processing" || o.Issue[0].Diagnostics != "boom" {
		t.Errorf("unexpected issue %+v", o.Issue)
	}
}
