package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitJSONWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: LevelDebug, Format: "json", Output: &buf}); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = Init(Config{}) })

	WithRange("grades", 3).Debug("range allocated")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "range allocated" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["table"] != "grades" {
		t.Fatalf("unexpected table field: %v", entry["table"])
	}
	if entry["range"] != float64(3) {
		t.Fatalf("unexpected range field: %v", entry["range"])
	}
}

func TestDefaultLevelSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Output: &buf}); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = Init(Config{}) })

	WithComponent("merge").Debug("hidden")
	WithComponent("merge").Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, "component=merge") {
		t.Fatalf("expected component field in %q", out)
	}
}

func TestInitRejectsUnknownSettings(t *testing.T) {
	if err := Init(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if err := Init(Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
