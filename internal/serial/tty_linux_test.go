//go:build linux

package serial

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestVTime(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want uint8
	}{
		{0, 1},
		{50 * time.Millisecond, 1},
		{100 * time.Millisecond, 1},
		{250 * time.Millisecond, 2},
		{time.Second, 10},
		{time.Minute, 255},
	}
	for _, tc := range cases {
		if got := vtime(tc.in); got != tc.want {
			t.Errorf("vtime(%v)=%d want %d", tc.in, got, tc.want)
		}
	}
}

func TestOpenMarkedRejects(t *testing.T) {
	if _, err := OpenMarked("/dev/null", 10400, time.Second); err == nil {
		t.Fatal("non-standard baud accepted")
	}
	missing := filepath.Join(t.TempDir(), "ttyLIN0")
	_, err := OpenMarked(missing, 19200, time.Second)
	var perr *os.PathError
	if !errors.As(err, &perr) {
		t.Fatalf("err=%v want *os.PathError", err)
	}
}
