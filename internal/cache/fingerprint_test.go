package cache

import (
	"strings"
	"testing"
)

func TestFingerprintDeterminism(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "You are a translator."},
		{Role: "user", Content: "Hello"},
	}

	first := Fingerprint(msgs, "", "")
	second := Fingerprint(msgs, "", "")
	if first != second {
		t.Errorf("fingerprint not deterministic: %q vs %q", first, second)
	}
}

func TestFingerprintShape(t *testing.T) {
	fp := Fingerprint([]Message{{Role: "user", Content: "Hello"}}, "", "")
	if len(fp) != 32 {
		t.Errorf("expected 32 hex chars, got %d (%q)", len(fp), fp)
	}
	if strings.ToLower(fp) != fp {
		t.Errorf("expected lowercase hex, got %q", fp)
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := []Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
	}
	baseFP := Fingerprint(base, "", "")

	tests := []struct {
		name string
		msgs []Message
	}{
		{"different content", []Message{
			{Role: "user", Content: "Hello!"},
			{Role: "assistant", Content: "Hi there"},
		}},
		{"different role", []Message{
			{Role: "system", Content: "Hello"},
			{Role: "assistant", Content: "Hi there"},
		}},
		{"reordered", []Message{
			{Role: "assistant", Content: "Hi there"},
			{Role: "user", Content: "Hello"},
		}},
		{"truncated", []Message{
			{Role: "user", Content: "Hello"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fingerprint(tt.msgs, "", ""); got == baseFP {
				t.Errorf("expected distinct fingerprint for %s", tt.name)
			}
		})
	}
}

// Sampling parameters never reach Fingerprint, so two requests differing
// only in temperature etc. hash the same message slice. This pins the
// param-invariance property at the call contract level.
func TestFingerprintParamInvariance(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "Hello"}}
	if Fingerprint(msgs, "", "") != Fingerprint(msgs, "", "") {
		t.Error("identical message sequences must collapse to one key")
	}
}

func TestFingerprintEmptyMessages(t *testing.T) {
	fp := Fingerprint(nil, "", "")
	if len(fp) != 32 {
		t.Fatalf("empty sequence must still yield a valid key, got %q", fp)
	}
	if fp != Fingerprint([]Message{}, "", "") {
		t.Error("nil and empty slices must hash identically")
	}
}

func TestFingerprintUserLevelScoping(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "Hello"}}

	plain := Fingerprint(msgs, "", "")
	def := Fingerprint(msgs, DefaultUserLevel, "")
	if plain != def {
		t.Error("empty level must behave as the default level")
	}
	if Fingerprint(msgs, "pro", "") == def {
		t.Error("distinct user levels must produce distinct keys")
	}
}

func TestFingerprintModelScoping(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "Hello"}}

	without := Fingerprint(msgs, "", "")
	withModel := Fingerprint(msgs, "", "deepseek-chat")
	if without == withModel {
		t.Error("including the model must change the key")
	}
	if Fingerprint(msgs, "", "deepseek-chat") != withModel {
		t.Error("model-scoped keys must also be deterministic")
	}
}
