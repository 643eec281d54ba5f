package realtime

import (
	"testing"
	"time"
)

// TestSlidingWindowCeiling tests that exactly max messages pass per interval
func TestSlidingWindowCeiling(t *testing.T) {
	t.Parallel()

	w := newSlidingWindow(10*time.Second, 3)
	base := time.Now()

	for i := 0; i < 3; i++ {
		if !w.allow(base.Add(time.Duration(i) * time.Millisecond)) {
			t.Fatalf("message %d should be within the ceiling", i+1)
		}
	}
	if w.allow(base.Add(4 * time.Millisecond)) {
		t.Error("fourth message inside the window should be rejected")
	}
}

// TestSlidingWindowSlides tests that capacity returns as old entries age out
func TestSlidingWindowSlides(t *testing.T) {
	t.Parallel()

	w := newSlidingWindow(10*time.Second, 2)
	base := time.Now()

	if !w.allow(base) || !w.allow(base.Add(time.Second)) {
		t.Fatal("first two messages should pass")
	}
	if w.allow(base.Add(2 * time.Second)) {
		t.Fatal("third message inside the window should be rejected")
	}

	// The first entry leaves the window; one slot opens, not two.
	at := base.Add(10*time.Second + time.Millisecond)
	if !w.allow(at) {
		t.Error("message after the oldest entry expired should pass")
	}
	if w.allow(at.Add(time.Millisecond)) {
		t.Error("window should be full again")
	}
}

// TestSlidingWindowRejectionsNotCounted tests that rejected messages do not
// consume window slots
func TestSlidingWindowRejectionsNotCounted(t *testing.T) {
	t.Parallel()

	w := newSlidingWindow(time.Second, 1)
	base := time.Now()

	if !w.allow(base) {
		t.Fatal("first message should pass")
	}
	for i := 0; i < 5; i++ {
		if w.allow(base.Add(time.Duration(i+1) * time.Millisecond)) {
			t.Fatal("messages over the ceiling should be rejected")
		}
	}
	// Only the accepted message occupies the window; once it ages out the
	// next one passes even though five rejections happened since.
	if !w.allow(base.Add(time.Second + time.Millisecond)) {
		t.Error("rejected messages must not extend the window")
	}
}
