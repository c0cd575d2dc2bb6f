package service

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCaptionGenerator_UsesScriptHook(t *testing.T) {
	dir := t.TempDir()
	script := `{"avatar": "luna", "hook": "POV: you found the best taco spot", "food_item": "tacos"}`
	if err := os.WriteFile(filepath.Join(dir, "luna.json"), []byte(script), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	g := NewCaptionGenerator(testPostingConfig(), dir)

	if got := g.Caption("luna", "tiktok"); got != "POV: you found the best taco spot" {
		t.Errorf("Caption(luna) = %q, want script hook", got)
	}
	// No script file: platform caption.
	if got := g.Caption("nova", "tiktok"); got != "Check this out!" {
		t.Errorf("Caption(nova) = %q, want platform caption", got)
	}
	// No platform caption either: built-in default.
	if got := g.Caption("nova", "youtube"); got != "Check this out!" {
		t.Errorf("Caption(nova, youtube) = %q, want default", got)
	}
}

func TestCaptionGenerator_IgnoresBrokenScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "luna.json"), []byte("{broken"), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	g := NewCaptionGenerator(testPostingConfig(), dir)
	if got := g.Caption("luna", "tiktok"); got != "Check this out!" {
		t.Errorf("Caption() = %q, want fallback past the broken script", got)
	}
}

func TestCaptionGenerator_Hashtags(t *testing.T) {
	g := NewCaptionGenerator(testPostingConfig(), t.TempDir())

	for i := 0; i < 20; i++ {
		tags := g.Hashtags("tiktok")
		if len(tags) < 4 || len(tags) > 6 {
			t.Fatalf("Hashtags() len = %d, want base tag plus 3-5 pool tags", len(tags))
		}
		if tags[0] != "#fyp" {
			t.Errorf("Hashtags()[0] = %s, want base tag first", tags[0])
		}
		seen := make(map[string]bool)
		for _, tag := range tags {
			if tag[0] != '#' {
				t.Errorf("tag %q missing # prefix", tag)
			}
			if seen[tag] {
				t.Errorf("duplicate tag %q", tag)
			}
			seen[tag] = true
		}
	}
}

func TestCaptionGenerator_HashtagsWithoutPool(t *testing.T) {
	cfg := testPostingConfig()
	cfg.HashtagPools = nil
	g := NewCaptionGenerator(cfg, t.TempDir())

	tags := g.Hashtags("tiktok")
	if len(tags) != 1 || tags[0] != "#fyp" {
		t.Errorf("Hashtags() = %v, want just the base tag", tags)
	}
}
