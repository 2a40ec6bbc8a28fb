package tui

import (
	"strings"
	"sync"
	"testing"
)

func TestTail_Lines(t *testing.T) {
	tail := NewTail(10)
	_, _ = tail.Write([]byte("one\ntwo\nthr"))
	_, _ = tail.Write([]byte("ee\n"))

	got := tail.Lines(10)
	if strings.Join(got, ",") != "one,two,three" {
		t.Errorf("Lines = %q", got)
	}
	if got := tail.Lines(2); strings.Join(got, ",") != "two,three" {
		t.Errorf("Lines(2) = %q", got)
	}
}

func TestTail_Empty(t *testing.T) {
	tail := NewTail(4)
	if got := tail.Lines(4); got != nil {
		t.Errorf("Lines on empty tail = %q", got)
	}
	if got := tail.Lines(0); got != nil {
		t.Errorf("Lines(0) = %q", got)
	}
}

func TestTail_Wraps(t *testing.T) {
	tail := NewTail(3)
	for _, line := range []string{"a", "b", "c", "d", "e"} {
		_, _ = tail.Write([]byte(line + "\n"))
	}

	if got := tail.Lines(10); strings.Join(got, ",") != "c,d,e" {
		t.Errorf("Lines after wrap = %q", got)
	}
}

func TestTail_Flush(t *testing.T) {
	tail := NewTail(3)
	_, _ = tail.Write([]byte("prompt> "))
	if len(tail.Lines(3)) != 0 {
		t.Fatal("partial line visible before Flush")
	}

	tail.Flush()
	if got := tail.Lines(3); len(got) != 1 || got[0] != "prompt> " {
		t.Errorf("Lines after Flush = %q", got)
	}
}

func TestNewTail_DefaultSize(t *testing.T) {
	if got := len(NewTail(0).lines); got != DefaultTailLines {
		t.Errorf("default size = %d, want %d", got, DefaultTailLines)
	}
}

func TestTail_ConcurrentReadWrite(t *testing.T) {
	tail := NewTail(50)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, _ = tail.Write([]byte("line\n"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = tail.Lines(10)
		}
	}()
	wg.Wait()

	if got := len(tail.Lines(100)); got != 50 {
		t.Errorf("Lines = %d, want 50", got)
	}
}
