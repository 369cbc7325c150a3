package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func openTestBadger(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// backends returns a fresh instance of every DB implementation.
func backends(t *testing.T) map[string]DB {
	t.Helper()
	inMem, err := NewBadgerInMemory()
	if err != nil {
		t.Fatalf("NewBadgerInMemory() error: %v", err)
	}
	t.Cleanup(func() { inMem.Close() })
	return map[string]DB{
		"memory":          NewMemory(),
		"badger":          openTestBadger(t),
		"badger-inmemory": inMem,
	}
}

func mustPut(t *testing.T, db DB, key, value string) {
	t.Helper()
	if err := db.Put([]byte(key), []byte(value)); err != nil {
		t.Fatalf("Put(%q) error: %v", key, err)
	}
}

func TestDB_ReadWrite(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			mustPut(t, db, "acct", "first")
			mustPut(t, db, "acct", "second")
			got, err := db.Get([]byte("acct"))
			if err != nil || string(got) != "second" {
				t.Errorf("Get after overwrite = %q, %v", got, err)
			}

			if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}
			if ok, err := db.Has([]byte("missing")); err != nil || ok {
				t.Errorf("Has(missing) = %v, %v", ok, err)
			}

			mustPut(t, db, "empty", "")
			if got, err := db.Get([]byte("empty")); err != nil || len(got) != 0 {
				t.Errorf("Get(empty) = %q, %v", got, err)
			}

			bin := make([]byte, 256)
			for i := range bin {
				bin[i] = byte(i)
			}
			if err := db.Put([]byte{0x00, 0xff}, bin); err != nil {
				t.Fatal(err)
			}
			if got, _ := db.Get([]byte{0x00, 0xff}); !bytes.Equal(got, bin) {
				t.Error("binary value did not round-trip")
			}

			if err := db.Delete([]byte("acct")); err != nil {
				t.Fatalf("Delete() error: %v", err)
			}
			if ok, _ := db.Has([]byte("acct")); ok {
				t.Error("key present after Delete")
			}
			if err := db.Delete([]byte("never-existed")); err != nil {
				t.Errorf("Delete(missing) error: %v", err)
			}
		})
	}
}

func TestDB_ForEach(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"c/a", "c/b", "c/c", "v/x"} {
				mustPut(t, db, k, k)
			}

			seen := map[string]string{}
			if err := db.ForEach([]byte("c/"), func(k, v []byte) error {
				seen[string(k)] = string(v)
				return nil
			}); err != nil {
				t.Fatalf("ForEach() error: %v", err)
			}
			if len(seen) != 3 || seen["c/b"] != "c/b" {
				t.Errorf("ForEach(c/) = %v", seen)
			}

			stop := errors.New("stop")
			n := 0
			if err := db.ForEach([]byte("c/"), func(_, _ []byte) error {
				n++
				return stop
			}); !errors.Is(err, stop) || n != 1 {
				t.Errorf("early stop: n=%d err=%v", n, err)
			}

			n = 0
			_ = db.ForEach([]byte("none/"), func(_, _ []byte) error { n++; return nil })
			if n != 0 {
				t.Errorf("ForEach over empty prefix visited %d keys", n)
			}
		})
	}
}

func TestDB_Batch(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			mustPut(t, db, "b/old", "x")

			b := NewBatch(db)
			_ = b.Put([]byte("b/a"), []byte("1"))
			_ = b.Put([]byte("b/empty"), []byte{})
			_ = b.Delete([]byte("b/old"))
			if ok, _ := db.Has([]byte("b/a")); ok {
				t.Fatal("batch write visible before Commit")
			}
			if err := b.Commit(); err != nil {
				t.Fatalf("Commit() error: %v", err)
			}

			if v, err := db.Get([]byte("b/a")); err != nil || string(v) != "1" {
				t.Errorf("b/a = %q, %v", v, err)
			}
			if ok, _ := db.Has([]byte("b/empty")); !ok {
				t.Error("an empty value in a batch must be stored, not deleted")
			}
			if ok, _ := db.Has([]byte("b/old")); ok {
				t.Error("b/old should be deleted")
			}
		})
	}
}

func TestBadger_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	mustPut(t, db, "persist", "data")
	db.Close()

	db, err = NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() reopen error: %v", err)
	}
	defer db.Close()
	if v, err := db.Get([]byte("persist")); err != nil || string(v) != "data" {
		t.Errorf("after reopen = %q, %v", v, err)
	}
}

func TestBadger_Locked(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()

	if _, err := NewBadger(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("second open error = %v, want ErrLocked", err)
	}
}

func TestMemory_Concurrent(t *testing.T) {
	db := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []byte(fmt.Sprintf("k/%d", i))
			for j := 0; j < 100; j++ {
				_ = db.Put(key, []byte{byte(j)})
				_, _ = db.Get(key)
				_ = db.ForEach([]byte("k/"), func(_, _ []byte) error { return nil })
			}
		}(i)
	}
	wg.Wait()

	n := 0
	_ = db.ForEach([]byte("k/"), func(_, _ []byte) error { n++; return nil })
	if n != 16 {
		t.Errorf("key count = %d, want 16", n)
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	db := NewMemory()
	mustPut(t, db, "k", "abc")
	v, _ := db.Get([]byte("k"))
	v[0] = 'z'
	if again, _ := db.Get([]byte("k")); string(again) != "abc" {
		t.Errorf("stored value mutated through Get() result: %q", again)
	}
}
