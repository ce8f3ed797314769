package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/fleetdb/blobstore"
)

// Archive uploads a snapshot of the database (and its budget sidecar, when
// present) to a blob store under name. The compressed artifact and the raw
// sidecar upload in parallel; the sidecar lands at name + ".budgets.json"
// so it stays inspectable without decoding the snapshot.
func Archive(ctx context.Context, bs blobstore.Store, name, dbPath, budgetPath string, opts ...Option) error {
	var buf bytes.Buffer
	if err := Write(&buf, dbPath, budgetPath, opts...); err != nil {
		return err
	}

	var budget []byte
	if budgetPath != "" {
		data, err := os.ReadFile(budgetPath)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("snapshot: read budget book: %w", err)
		}
		budget = data
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return bs.Put(ctx, name, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	})
	if len(budget) > 0 {
		g.Go(func() error {
			return bs.Put(ctx, name+".budgets.json", bytes.NewReader(budget), int64(len(budget)))
		})
	}
	return g.Wait()
}

// Retrieve downloads a snapshot artifact from a blob store and restores it
// to dbPath and budgetPath.
func Retrieve(ctx context.Context, bs blobstore.Store, name, dbPath, budgetPath string) error {
	rc, err := bs.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("snapshot: fetch artifact: %w", err)
	}
	defer rc.Close()

	db, budget, err := Read(rc)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(dbPath, func(w io.Writer) error {
		_, err := w.Write(db)
		return err
	}); err != nil {
		return fmt.Errorf("snapshot: restore database: %w", err)
	}
	if len(budget) > 0 && budgetPath != "" {
		if err := writeFileAtomic(budgetPath, func(w io.Writer) error {
			_, err := w.Write(budget)
			return err
		}); err != nil {
			return fmt.Errorf("snapshot: restore budget book: %w", err)
		}
	}
	return nil
}
