package domain

import (
	"encoding/json"
	"testing"
)

func TestCustomFieldsUnmarshalMixedTypes(t *testing.T) {
	var cf CustomFields
	payload := `{"game": "Word Trip", "level": 42, "beta": true, "empty": "", "dropped": null}`
	if err := json.Unmarshal([]byte(payload), &cf); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, _ := cf.Get("game"); v != "Word Trip" {
		t.Fatalf("game = %q", v)
	}
	if v, _ := cf.Get("level"); v != "42" {
		t.Fatalf("level = %q", v)
	}
	if v, _ := cf.Get("beta"); v != "true" {
		t.Fatalf("beta = %q", v)
	}
	if v, ok := cf.Get("empty"); !ok || v != "" {
		t.Fatalf("empty present=%v value=%q", ok, v)
	}
	if _, ok := cf.Get("dropped"); ok {
		t.Fatal("null value should read as absent")
	}
}

func TestCustomFieldsUnmarshalNullStaysNil(t *testing.T) {
	ticket := RawTicket{ID: 7, Subject: "no custom fields"}

	data, err := json.Marshal(ticket)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got RawTicket
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.CustomFields != nil {
		t.Fatalf("nil custom fields came back as %#v", got.CustomFields)
	}

	var cf CustomFields
	if err := json.Unmarshal([]byte("null"), &cf); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if cf != nil {
		t.Fatalf("null decoded to %#v, want nil", cf)
	}
}
