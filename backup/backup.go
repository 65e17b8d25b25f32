// Package backup defines the client-side interface a master uses to pull
// recovery data from a backup server during crash recovery (§4.E's
// Fetcher). The concrete implementation lives in backup/rpcclient.
package backup

import "context"

// Client is what master/recovery.Fetcher is implemented against: fetch
// one segment's bytes for one partition of a crashed master, from one
// backup replica.
type Client interface {
	// StartReadingData tells the backup this master intends to recover
	// crashedMasterID, so the backup can begin assembling/decompressing
	// segments ahead of the first GetRecoveryData call.
	StartReadingData(ctx context.Context, backupLocator string, crashedMasterID uint64) error

	// GetRecoveryData fetches one segment's bytes for partitionID.
	GetRecoveryData(ctx context.Context, backupLocator string, crashedMasterID, segmentID, partitionID uint64) ([]byte, error)
}
