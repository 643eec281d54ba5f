package realtime

import "testing"

// TestHasParams tests placeholder detection
func TestHasParams(t *testing.T) {
	t.Parallel()

	if !hasParams("/api/1/ws/room/:id") {
		t.Error("path with :id segment should report params")
	}
	if hasParams("/api/1/ws/chat") {
		t.Error("literal path should not report params")
	}
}

// TestValidateLiteralPath tests the rules for concrete namespace keys
func TestValidateLiteralPath(t *testing.T) {
	t.Parallel()

	if err := validateLiteralPath("/api/1/ws/chat"); err != nil {
		t.Errorf("valid path rejected: %v", err)
	}

	bad := []string{
		"/other/prefix/chat",   // outside the API prefix
		"/api/1/ws/room/:id",   // reserved character
		"/api/1/ws/a:b",        // ':' inside a segment
		"/api/1/ws//chat",      // empty segment
		"/api/1/ws/chat/",      // trailing empty segment
		"/api/1/ws",            // prefix alone, no namespace segment
	}
	for _, path := range bad {
		if err := validateLiteralPath(path); err == nil {
			t.Errorf("validateLiteralPath(%q) should fail", path)
		}
	}
}

// TestCompilePattern tests template compilation and matching
func TestCompilePattern(t *testing.T) {
	t.Parallel()

	p, err := compilePattern("/api/1/ws/room/:id")
	if err != nil {
		t.Fatalf("compilePattern() error = %v", err)
	}

	params, ok := p.match("/api/1/ws/room/42")
	if !ok {
		t.Fatal("concrete path should match the pattern")
	}
	if params["id"] != "42" {
		t.Errorf("id = %q, want 42", params["id"])
	}

	if _, ok := p.match("/api/1/ws/room/42/extra"); ok {
		t.Error("deeper path should not match")
	}
	if _, ok := p.match("/api/1/ws/room"); ok {
		t.Error("shorter path should not match")
	}
}

// TestCompilePatternMultipleParams tests multi-parameter templates
func TestCompilePatternMultipleParams(t *testing.T) {
	t.Parallel()

	p, err := compilePattern("/api/1/ws/org/:org/room/:room")
	if err != nil {
		t.Fatalf("compilePattern() error = %v", err)
	}

	params, ok := p.match("/api/1/ws/org/acme/room/standup")
	if !ok {
		t.Fatal("concrete path should match")
	}
	if params["org"] != "acme" || params["room"] != "standup" {
		t.Errorf("params = %v, want org=acme room=standup", params)
	}
}

// TestCompilePatternEscapesLiterals tests that regexp metacharacters in
// literal segments match themselves only
func TestCompilePatternEscapesLiterals(t *testing.T) {
	t.Parallel()

	p, err := compilePattern("/api/1/ws/v1.0/:id")
	if err != nil {
		t.Fatalf("compilePattern() error = %v", err)
	}
	if _, ok := p.match("/api/1/ws/v1.0/x"); !ok {
		t.Error("exact literal should match")
	}
	if _, ok := p.match("/api/1/ws/v1x0/x"); ok {
		t.Error("'.' must not act as a wildcard")
	}
}

// TestCompilePatternRejections tests templates that must not compile
func TestCompilePatternRejections(t *testing.T) {
	t.Parallel()

	bad := []string{
		"/api/1/ws/room/:",       // empty parameter name
		"/api/1/ws/room/:1bad",   // parameter name starting with a digit
		"/api/1/ws/a:b/:id",      // ':' inside a literal segment
		"/api/1/ws//:id",         // empty segment
		"/other/room/:id",        // outside the API prefix
		"/api/1/ws/chat",         // no parameters at all
	}
	for _, path := range bad {
		if _, err := compilePattern(path); err == nil {
			t.Errorf("compilePattern(%q) should fail", path)
		}
	}
}
