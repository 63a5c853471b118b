package kronroe

import (
	"context"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/kronroe-db/kronroe/blobstore"
)

// Backup streams a zstd-compressed snapshot of every table to w. It runs
// on a read snapshot and is safe alongside concurrent readers and
// writers. The stream restores into either backend: backing up a file
// engine and restoring into an in-memory one is a supported way to ship
// fixtures into sandboxes.
func (g *TemporalGraph) Backup(w io.Writer) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return storageErr("backup", err)
	}
	if _, err := g.store.Backup(zw); err != nil {
		zw.Close()
		return storageErr("backup", err)
	}
	return storageErr("backup", zw.Close())
}

// BackupTo writes a backup blob named name into the given store.
func (g *TemporalGraph) BackupTo(ctx context.Context, store blobstore.Store, name string) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(g.Backup(pw))
	}()
	err := store.Put(ctx, name, pr)
	pr.CloseWithError(err)
	g.logger.LogBackup(ctx, "backup", name, err)
	if err != nil {
		return storageErr("backup_to", err)
	}
	return nil
}

// Restore replays a backup stream produced by Backup into this engine and
// rebuilds the index caches. Existing keys are overwritten by the stream;
// restoring into a freshly opened engine is the supported path.
func (g *TemporalGraph) Restore(r io.Reader) error {
	if err := g.checkOpen(); err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	zr, err := zstd.NewReader(r)
	if err != nil {
		return storageErr("restore", err)
	}
	defer zr.Close()

	if err := g.store.Load(zr); err != nil {
		return storageErr("restore", err)
	}
	return g.resetCaches()
}

// RestoreFrom restores from a backup blob in the given store.
func (g *TemporalGraph) RestoreFrom(ctx context.Context, store blobstore.Store, name string) error {
	rc, err := store.Open(ctx, name)
	if err != nil {
		g.logger.LogBackup(ctx, "restore", name, err)
		return storageErr("restore_from", err)
	}
	defer rc.Close()
	err = g.Restore(rc)
	g.logger.LogBackup(ctx, "restore", name, err)
	return err
}
