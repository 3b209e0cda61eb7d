package benchmarks

import (
	"os"
	"strconv"
	"testing"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt/catalog"
)

// BenchmarkMemoryStore_Save measures in-memory record save.
func BenchmarkMemoryStore_Save(b *testing.B) {
	store := catalog.NewMemoryStore()
	data := createRecord(b, 3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Save("exec-1", 3, i, data)
	}
}

// BenchmarkMemoryStore_Load measures in-memory record load.
func BenchmarkMemoryStore_Load(b *testing.B) {
	store := catalog.NewMemoryStore()
	_ = store.Save("exec-1", 3, 1, createRecord(b, 3))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Load("exec-1", 3)
	}
}

// BenchmarkSQLiteStore_Save measures SQLite record save across 64 ranks.
func BenchmarkSQLiteStore_Save(b *testing.B) {
	store, cleanup := createSQLiteStore(b)
	defer cleanup()
	data := createRecord(b, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Save("exec-1", i%64, i, data)
	}
}

// BenchmarkSQLiteStore_Load measures SQLite record load.
func BenchmarkSQLiteStore_Load(b *testing.B) {
	store, cleanup := createSQLiteStore(b)
	defer cleanup()
	_ = store.Save("exec-1", 3, 1, createRecord(b, 3))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Load("exec-1", 3)
	}
}

// BenchmarkRecordUnmarshal measures record decoding on recovery.
func BenchmarkRecordUnmarshal(b *testing.B) {
	data := createRecord(b, 3)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = catalog.Unmarshal(data)
	}
}

func createRecord(b *testing.B, rank int) []byte {
	b.Helper()
	payload := make([]byte, 3496)
	rec := catalog.NewRecord("exec-1", rank, rank, 7, 1, payload)
	rec.Path = "/Local/node1/exec-1/l1/Ckpt7-Rank" + strconv.Itoa(rank) + ".fti"
	data, err := rec.Marshal()
	if err != nil {
		b.Fatal(err)
	}
	return data
}

func createSQLiteStore(b *testing.B) (*catalog.SQLiteStore, func()) {
	b.Helper()
	tmpFile, err := os.CreateTemp("", "bench-*.db")
	if err != nil {
		b.Fatal(err)
	}
	tmpFile.Close()

	store, err := catalog.NewSQLiteStore(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		b.Fatal(err)
	}

	return store, func() {
		store.Close()
		os.Remove(tmpFile.Name())
	}
}
