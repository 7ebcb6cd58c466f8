package body

import (
	"os"
	"testing"
)

func TestNoneRejectsWrites(t *testing.T) {
	b := NewNone()
	if err := b.Write([]byte("x")); err != ErrNoneWrite {
		t.Fatalf("Write() error = %v, want ErrNoneWrite", err)
	}
	if b.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", b.Size())
	}
}

func TestMemoryAppends(t *testing.T) {
	b := NewMemory()
	_ = b.Write([]byte("hel"))
	_ = b.WriteString("lo")

	if got := b.String(); got != "hello" {
		t.Fatalf("String() = %q, want %q", got, "hello")
	}
	if b.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", b.Size())
	}
}

func TestJsonParsesAndOverwrites(t *testing.T) {
	b := NewJson()
	if err := b.WriteString(`{"message":"hello"}`); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	m, ok := b.Value().(map[string]any)
	if !ok {
		t.Fatalf("Value() = %#v, want map[string]any", b.Value())
	}
	if m["message"] != "hello" {
		t.Fatalf("message = %v, want hello", m["message"])
	}

	_ = b.WriteString(`{"message":"world"}`)
	m2 := b.Value().(map[string]any)
	if m2["message"] != "world" {
		t.Fatalf("message = %v, want world (overwrite)", m2["message"])
	}
}

func TestJsonInvalidIsNonFatal(t *testing.T) {
	var reported error
	b := NewJson()
	b.OnError = func(err error) { reported = err }

	if err := b.WriteString("not json"); err != nil {
		t.Fatalf("Write() returned error instead of reporting: %v", err)
	}
	if reported == nil {
		t.Fatal("expected OnError to be invoked for invalid JSON")
	}
	if b.Value() != nil {
		t.Fatalf("Value() = %v, want nil after failed parse", b.Value())
	}
}

func TestFileStreamsAndCleansUp(t *testing.T) {
	f, err := NewFile(os.TempDir())
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	defer f.Close()

	_ = f.Write([]byte("chunk-one-"))
	_ = f.Write([]byte("chunk-two"))

	if got := f.String(); got != "chunk-one-chunk-two" {
		t.Fatalf("String() = %q, want %q", got, "chunk-one-chunk-two")
	}
	if f.Size() != int64(len("chunk-one-chunk-two")) {
		t.Fatalf("Size() = %d, want %d", f.Size(), len("chunk-one-chunk-two"))
	}
}
