package database

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRecordQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		operation string
		err       error
	}{
		{name: "successful query", operation: "test_operation"},
		{name: "failed query", operation: "test_operation", err: errors.New("test error")},
		{name: "empty operation name", operation: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("recordQuery panicked: %v", r)
				}
			}()
			recordQuery(tt.operation, time.Now(), tt.err)
			observeQuery(tt.operation)(tt.err)
		})
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		opts        *Options
		wantBusy    time.Duration
		wantTimeout time.Duration
	}{
		{"nil options", nil, 5 * time.Second, defaultTimeout},
		{"zero values", &Options{}, 5 * time.Second, defaultTimeout},
		{"overrides", &Options{BusyTimeout: time.Second, QueryTimeout: 30 * time.Second}, time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.opts.withDefaults()
			if got.BusyTimeout != tt.wantBusy {
				t.Errorf("BusyTimeout = %v, want %v", got.BusyTimeout, tt.wantBusy)
			}
			if got.QueryTimeout != tt.wantTimeout {
				t.Errorf("QueryTimeout = %v, want %v", got.QueryTimeout, tt.wantTimeout)
			}
		})
	}
}

func TestRuleSetScan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     any
		want    string
		wantErr bool
	}{
		{"string", `{"all":[]}`, `{"all":[]}`, false},
		{"bytes", []byte(`{"any":[1]}`), `{"any":[1]}`, false},
		{"nil", nil, "", false},
		{"unsupported", 42, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var r RuleSet
			err := r.Scan(tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(r) != tt.want {
				t.Errorf("Scan = %q, want %q", string(r), tt.want)
			}
		})
	}
}

func TestRuleSetJSONPassThrough(t *testing.T) {
	t.Parallel()

	in := []byte(`{"name":"recent","rules":{"match":"all","conditions":[{"field":"starred","op":"eq","value":true}]}}`)

	var f SmartFolder
	if err := json.Unmarshal(in, &f); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if string(f.Rules) != `{"match":"all","conditions":[{"field":"starred","op":"eq","value":true}]}` {
		t.Errorf("Rules not kept verbatim: %s", f.Rules)
	}

	var empty SmartFolder
	out, err := json.Marshal(empty)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Marshal produced invalid JSON: %s", out)
	}
	if decoded["rules"] != nil {
		t.Errorf("Expected null rules for empty RuleSet, got %v", decoded["rules"])
	}
}

func TestBoolToInt(t *testing.T) {
	t.Parallel()
	if boolToInt(true) != 1 || boolToInt(false) != 0 {
		t.Error("boolToInt mapping is wrong")
	}
}

func TestFloat32Blob(t *testing.T) {
	t.Parallel()

	values := []float32{0, 1, -0.5, 3.25}
	blob := EncodeFloat32s(values)
	if len(blob) != 16 {
		t.Fatalf("blob length = %d, want 16", len(blob))
	}
	// 1.0 is 0x3f800000
	if blob[4] != 0x00 || blob[7] != 0x3f {
		t.Errorf("blob is not little-endian: % x", blob[4:8])
	}

	got := DecodeFloat32s(append(blob, 0xff))
	if len(got) != len(values) {
		t.Fatalf("decoded %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], values[i])
		}
	}
}
