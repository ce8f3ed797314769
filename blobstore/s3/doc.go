// Package s3 provides an S3 implementation of the blobstore.Store interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "fleetdb/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = snapshot.Archive(ctx, store, "backups/fleet.fdb.zst", "fleet.fdb")
//
// # Features
//
//   - Multipart uploads for large snapshots
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
