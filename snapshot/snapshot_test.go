package snapshot

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fleetdb/blobstore"
)

func writeFixture(t *testing.T, dir string) (dbPath, budgetPath string) {
	t.Helper()
	dbPath = filepath.Join(dir, "fleet.fdb")
	budgetPath = dbPath + ".budgets.json"

	db := make([]byte, 64*1024)
	for i := range db {
		db[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(dbPath, db, 0o644))
	require.NoError(t, os.WriteFile(budgetPath, []byte(`{"budgets":[]}`), 0o644))
	return dbPath, budgetPath
}

func TestExportRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath, budgetPath := writeFixture(t, dir)
	snapPath := filepath.Join(dir, "fleet.snap")

	require.NoError(t, Export(snapPath, dbPath, budgetPath))

	// The artifact is smaller than the repetitive source.
	srcInfo, _ := os.Stat(dbPath)
	snapInfo, err := os.Stat(snapPath)
	require.NoError(t, err)
	require.Less(t, snapInfo.Size(), srcInfo.Size())

	restoreDir := t.TempDir()
	outDB := filepath.Join(restoreDir, "restored.fdb")
	outBudget := outDB + ".budgets.json"
	require.NoError(t, Restore(snapPath, outDB, outBudget))

	want, _ := os.ReadFile(dbPath)
	got, err := os.ReadFile(outDB)
	require.NoError(t, err)
	require.True(t, bytes.Equal(want, got), "database image must round-trip")

	budget, err := os.ReadFile(outBudget)
	require.NoError(t, err)
	require.Equal(t, `{"budgets":[]}`, string(budget))
}

func TestExportWithoutBudgetSidecar(t *testing.T) {
	dir := t.TempDir()
	dbPath, _ := writeFixture(t, dir)
	snapPath := filepath.Join(dir, "fleet.snap")

	require.NoError(t, Export(snapPath, dbPath, filepath.Join(dir, "absent.json")))

	outDB := filepath.Join(t.TempDir(), "restored.fdb")
	outBudget := outDB + ".budgets.json"
	require.NoError(t, Restore(snapPath, outDB, outBudget))

	_, err := os.Stat(outBudget)
	require.True(t, os.IsNotExist(err), "no sidecar in, no sidecar out")
}

func TestReadRejectsBadMagic(t *testing.T) {
	_, _, err := Read(bytes.NewReader([]byte("definitely not a snapshot")))
	require.ErrorIs(t, err, ErrBadSnapshot)
}

func TestRestoreLeavesTargetOnBadArtifact(t *testing.T) {
	dir := t.TempDir()
	dbPath, _ := writeFixture(t, dir)
	original, _ := os.ReadFile(dbPath)

	badSnap := filepath.Join(dir, "bad.snap")
	require.NoError(t, os.WriteFile(badSnap, []byte("garbage"), 0o644))

	require.Error(t, Restore(badSnap, dbPath, ""))

	after, _ := os.ReadFile(dbPath)
	require.True(t, bytes.Equal(original, after), "failed restore must not touch the target")
}

func TestCompressionLevelOption(t *testing.T) {
	dir := t.TempDir()
	dbPath, budgetPath := writeFixture(t, dir)

	fast := filepath.Join(dir, "fast.snap")
	small := filepath.Join(dir, "small.snap")
	require.NoError(t, Export(fast, dbPath, budgetPath, WithCompressionLevel(1)))
	require.NoError(t, Export(small, dbPath, budgetPath, WithCompressionLevel(19)))

	// Both decode to the same image regardless of level.
	for _, snap := range []string{fast, small} {
		out := filepath.Join(t.TempDir(), "out.fdb")
		require.NoError(t, Restore(snap, out, ""))
		want, _ := os.ReadFile(dbPath)
		got, _ := os.ReadFile(out)
		require.True(t, bytes.Equal(want, got))
	}
}

func TestArchiveAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	dbPath, budgetPath := writeFixture(t, dir)

	bs := blobstore.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, Archive(ctx, bs, "backups/fleet.snap", dbPath, budgetPath))

	names, err := bs.List(ctx, "backups/")
	require.NoError(t, err)
	require.Equal(t, []string{"backups/fleet.snap", "backups/fleet.snap.budgets.json"}, names)

	restoreDir := t.TempDir()
	outDB := filepath.Join(restoreDir, "fleet.fdb")
	outBudget := outDB + ".budgets.json"
	require.NoError(t, Retrieve(ctx, bs, "backups/fleet.snap", outDB, outBudget))

	want, _ := os.ReadFile(dbPath)
	got, err := os.ReadFile(outDB)
	require.NoError(t, err)
	require.True(t, bytes.Equal(want, got))
}
