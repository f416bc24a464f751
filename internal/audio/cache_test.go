package audio

import (
	"os"
	"testing"
)

func TestClipCache_Disabled(t *testing.T) {
	cc, err := NewClipCache(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewClipCache failed: %v", err)
	}
	if cc.Enabled() {
		t.Fatal("cache with size 0 should be disabled")
	}
	if err := cc.Store("k", sine(10, 8000), CacheEntry{}); err != nil {
		t.Fatalf("Store on disabled cache should be a no-op, got %v", err)
	}
	if _, ok := cc.Lookup("k"); ok {
		t.Fatal("disabled cache should never hit")
	}
}

func TestClipCache_StoreAndLookup(t *testing.T) {
	dir := t.TempDir()
	cc, err := NewClipCache(dir, 10)
	if err != nil {
		t.Fatalf("NewClipCache failed: %v", err)
	}

	key := CacheKey("mary", "cmu-slt-hsmm", "<speak/>")
	if _, ok := cc.Lookup(key); ok {
		t.Fatal("expected miss before Store")
	}
	if err := cc.Store(key, sine(800, 8000), CacheEntry{Engine: "mary", Preview: "hello"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	clip, ok := cc.Lookup(key)
	if !ok {
		t.Fatal("expected hit after Store")
	}
	if clip.SampleRate != 8000 || len(clip.Samples) != 800 {
		t.Errorf("unexpected clip: rate=%d n=%d", clip.SampleRate, len(clip.Samples))
	}

	// 重新打开后索引仍然有效
	reopened, err := NewClipCache(dir, 10)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, ok := reopened.Lookup(key); !ok {
		t.Fatal("expected hit after reopening cache")
	}
}

func TestClipCache_ValidateDropsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	cc, _ := NewClipCache(dir, 10)
	key := CacheKey("x")
	if err := cc.Store(key, sine(100, 8000), CacheEntry{}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	os.Remove(cc.FilePath(key))

	reopened, _ := NewClipCache(dir, 10)
	if len(reopened.List()) != 0 {
		t.Fatalf("expected missing file to be dropped from index, got %d entries", len(reopened.List()))
	}
}

func TestClipCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cc, _ := NewClipCache(t.TempDir(), 1) // 1MB
	big := sine(300000, 16000)            // 约 600KB

	if err := cc.Store("old", big, CacheEntry{Preview: "old"}); err != nil {
		t.Fatalf("Store old failed: %v", err)
	}
	if err := cc.Store("new", big, CacheEntry{Preview: "new"}); err != nil {
		t.Fatalf("Store new failed: %v", err)
	}

	if _, ok := cc.Lookup("old"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if _, ok := cc.Lookup("new"); !ok {
		t.Error("expected newest entry to survive")
	}
}

func TestCacheKey_Stable(t *testing.T) {
	a := CacheKey("mary", "v", "doc")
	if a != CacheKey("mary", "v", "doc") {
		t.Fatal("CacheKey should be deterministic")
	}
	if a == CacheKey("mary", "vdoc") {
		t.Fatal("CacheKey should separate parts")
	}
}
