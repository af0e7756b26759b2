package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) (*Bolt, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "test.db")
	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", path, err)
	}
	t.Cleanup(func() { b.Close() })
	return b, path
}

func TestPutGetString(t *testing.T) {
	b, _ := openTestStore(t)
	kv := b.Namespace("test")

	if err := kv.PutString("key", "value"); err != nil {
		t.Fatalf("PutString error = %v", err)
	}
	got, err := kv.GetString("key")
	if err != nil {
		t.Fatalf("GetString error = %v", err)
	}
	if got != "value" {
		t.Errorf("GetString = %q, want %q", got, "value")
	}
}

func TestPutGetInt(t *testing.T) {
	b, _ := openTestStore(t)
	kv := b.Namespace("test")

	if err := kv.PutInt("counter", 42); err != nil {
		t.Fatalf("PutInt error = %v", err)
	}
	got, err := kv.GetInt("counter")
	if err != nil {
		t.Fatalf("GetInt error = %v", err)
	}
	if got != 42 {
		t.Errorf("GetInt = %d, want 42", got)
	}
}

func TestMissingKeysYieldZeroValues(t *testing.T) {
	b, _ := openTestStore(t)
	kv := b.Namespace("never-written")

	s, err := kv.GetString("absent")
	if err != nil || s != "" {
		t.Errorf("GetString(absent) = (%q, %v), want (\"\", nil)", s, err)
	}
	n, err := kv.GetInt("absent")
	if err != nil || n != 0 {
		t.Errorf("GetInt(absent) = (%d, %v), want (0, nil)", n, err)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	b, _ := openTestStore(t)
	a := b.Namespace("a")
	c := b.Namespace("b")

	if err := a.PutString("key", "from-a"); err != nil {
		t.Fatalf("PutString error = %v", err)
	}
	got, err := c.GetString("key")
	if err != nil {
		t.Fatalf("GetString error = %v", err)
	}
	if got != "" {
		t.Errorf("namespace b sees %q for a key written in namespace a", got)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open error = %v", err)
	}
	if err := b.Namespace("durable").PutString("id_0", "abcd1234abcd1234"); err != nil {
		t.Fatalf("PutString error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}

	b, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer b.Close()

	got, err := b.Namespace("durable").GetString("id_0")
	if err != nil {
		t.Fatalf("GetString error = %v", err)
	}
	if got != "abcd1234abcd1234" {
		t.Errorf("GetString after reopen = %q, want the stored ID", got)
	}
}

func TestCorruptIntegerValue(t *testing.T) {
	b, _ := openTestStore(t)
	kv := b.Namespace("test")

	if err := kv.PutString("counter", "not-a-number"); err != nil {
		t.Fatalf("PutString error = %v", err)
	}
	if _, err := kv.GetInt("counter"); err == nil {
		t.Error("GetInt on a corrupt value returned nil error")
	}
}
