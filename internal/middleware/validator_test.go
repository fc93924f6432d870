package middleware

import "testing"

func TestValidateTrack(t *testing.T) {
	for _, ok := range []string{"security", "compliance", "Security"} {
		if err := ValidateTrack(ok); err != nil {
			t.Errorf("ValidateTrack(%q) = %v, want nil", ok, err)
		}
	}
	if err := ValidateTrack("privacy"); err == nil {
		t.Error("ValidateTrack(privacy) = nil, want error")
	}
}

func TestValidateLanguage(t *testing.T) {
	for _, ok := range []string{"go", "python", "javascript", "js", "Go"} {
		if err := ValidateLanguage(ok); err != nil {
			t.Errorf("ValidateLanguage(%q) = %v, want nil", ok, err)
		}
	}
	if err := ValidateLanguage("cobol"); err == nil {
		t.Error("ValidateLanguage(cobol) = nil, want error")
	}
}

func TestValidateURI(t *testing.T) {
	for _, ok := range []string{"file:///home/dev/main.go", "untitled:Untitled-1", "/home/dev/main.go"} {
		if err := ValidateURI(ok); err != nil {
			t.Errorf("ValidateURI(%q) = %v, want nil", ok, err)
		}
	}
	for _, bad := range []string{"", "https://example.com/x.go"} {
		if err := ValidateURI(bad); err == nil {
			t.Errorf("ValidateURI(%q) = nil, want error", bad)
		}
	}
}

func TestValidateModel(t *testing.T) {
	if err := ValidateModel(""); err != nil {
		t.Errorf("empty model should be allowed: %v", err)
	}
	if err := ValidateModel("vulscan-small"); err != nil {
		t.Errorf("ValidateModel(vulscan-small) = %v, want nil", err)
	}
	if err := ValidateModel("bad model\nname"); err == nil {
		t.Error("model with whitespace should be rejected")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("src/\x00app\x01.py "); got != "src/app.py" {
		t.Errorf("SanitizeString = %q, want control bytes stripped", got)
	}
	if got := SanitizeString("a\tb\nc"); got != "a\tb\nc" {
		t.Errorf("tabs and newlines should survive, got %q", got)
	}
}

func TestValidateLimit(t *testing.T) {
	if got := ValidateLimit(0); got != 20 {
		t.Errorf("ValidateLimit(0) = %d, want 20", got)
	}
	if got := ValidateLimit(500); got != 100 {
		t.Errorf("ValidateLimit(500) = %d, want 100", got)
	}
	if got := ValidateLimit(7); got != 7 {
		t.Errorf("ValidateLimit(7) = %d, want 7", got)
	}
}
