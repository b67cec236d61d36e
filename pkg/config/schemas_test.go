package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
port: int & >1024
`

	if err := sr.RegisterSchema("high-port", customSchema); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("high-port")
	if !ok {
		t.Fatal("expected to find custom schema")
	}
	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}

	ctx := context.Background()
	if err := sr.ValidateAgainstSchema(ctx, "high-port", map[string]interface{}{"port": 27017}); err != nil {
		t.Errorf("expected 27017 to pass: %v", err)
	}
	if err := sr.ValidateAgainstSchema(ctx, "high-port", map[string]interface{}{"port": 80}); err == nil {
		t.Error("expected 80 to fail")
	}
}

func TestSchemaRegistry_RegisterInvalid(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.RegisterSchema("broken", "port: int &"); err == nil {
		t.Error("expected compile error")
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	want := []string{"facts", "hook", "options", "policy", "recipe"}
	got := sr.ListSchemas()
	if len(got) != len(want) {
		t.Fatalf("ListSchemas() = %v, want %v", got, want)
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("ListSchemas()[%d] = %s, want %s", i, got[i], name)
		}
		schema, ok := sr.GetSchema(name)
		if !ok {
			t.Fatalf("built-in schema %s not found", name)
		}
		if schema.Err() != nil {
			t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
		}
	}
}

func TestSchemaRegistry_ValidateHook(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		hook    HookConfig
		wantErr bool
	}{
		{name: "exec hook", hook: HookConfig{Kind: "exec", Name: "rake tasks"}},
		{name: "service hook", hook: HookConfig{Kind: "service", Name: "app"}},
		{name: "unknown kind", hook: HookConfig{Kind: "cron", Name: "nightly"}, wantErr: true},
		{name: "empty name", hook: HookConfig{Kind: "exec", Name: ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateHook(ctx, tt.hook)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHook() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_ValidatePolicy(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	if err := sr.ValidatePolicy(ctx, PolicyConfig{Enabled: true, OnViolation: "fail"}); err != nil {
		t.Errorf("expected valid policy: %v", err)
	}
	if err := sr.ValidatePolicy(ctx, PolicyConfig{Enabled: true, OnViolation: "explode"}); err == nil {
		t.Error("expected invalid on_violation to fail")
	}
}

func TestSchemaRegistry_UnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.ValidateAgainstSchema(context.Background(), "missing", map[string]string{}); err == nil {
		t.Error("expected error for unknown schema")
	}
}
