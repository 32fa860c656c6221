package device

import (
	"strings"
	"testing"
	"time"
)

func TestLineTouch(t *testing.T) {
	d := NewLineTouch(strings.NewReader("\n"))
	defer d.Close()

	deadline := time.Now().Add(5 * time.Second)
	for !d.Touched() {
		if time.Now().After(deadline) {
			t.Fatal("line was not turned into a touch")
		}
		time.Sleep(time.Millisecond)
	}
	if d.Touched() {
		t.Fatal("touch reported twice")
	}
}
