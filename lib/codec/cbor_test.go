// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sampleRecord struct {
	Role      string    `cbor:"role"`
	Content   string    `cbor:"content"`
	Summary   bool      `cbor:"summary,omitempty"`
	CreatedAt time.Time `cbor:"created_at"`
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()

	first, err := Marshal(map[string]int{"zeta": 1, "alpha": 2, "mid": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(map[string]int{"mid": 3, "alpha": 2, "zeta": 1})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding depends on insertion order")
		}
	}
}

func TestTimestampsKeepNanoseconds(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.UTC)
	data, err := Marshal(sampleRecord{Role: "user", Content: "hi", CreatedAt: created})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", decoded.CreatedAt, created)
	}

	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, "2026-03-01T12:30:45.123456789Z") {
		t.Errorf("diagnostic %s does not show an RFC 3339 timestamp", diagnostic)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]any{"role": "assistant", "content": "ok", "future_field": 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Role != "assistant" || decoded.Content != "ok" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestAnyTargetsDecodeStringMaps(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]any{"nested": map[string]any{"key": "value"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", outer["nested"])
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	t.Parallel()

	records := make([]sampleRecord, 50)
	for i := range records {
		records[i] = sampleRecord{Role: "user", Content: strings.Repeat("repetitive text ", 20), Summary: i%10 == 0}
	}

	plain, err := Marshal(records)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	compressed, err := MarshalCompressed(records)
	if err != nil {
		t.Fatalf("MarshalCompressed: %v", err)
	}
	if len(compressed) >= len(plain) {
		t.Errorf("compressed %d bytes, plain %d bytes", len(compressed), len(plain))
	}

	var decoded []sampleRecord
	if err := UnmarshalCompressed(compressed, &decoded); err != nil {
		t.Fatalf("UnmarshalCompressed: %v", err)
	}
	if len(decoded) != len(records) || decoded[0].Content != records[0].Content || !decoded[10].Summary {
		t.Errorf("decoded %d records, first %+v", len(decoded), decoded[0])
	}
}

func TestUnmarshalCompressedRejectsGarbage(t *testing.T) {
	t.Parallel()

	var decoded []sampleRecord
	if err := UnmarshalCompressed([]byte("definitely not zstd"), &decoded); err == nil {
		t.Fatal("UnmarshalCompressed accepted garbage")
	}
}
