package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/TheEntropyCollective/mediavault/pkg/access"
	"github.com/TheEntropyCollective/mediavault/pkg/blobstore"
)

// sweepFalsePositiveRate is the chance an orphan is mistaken for a referenced
// object and kept until the next sweep.
const sweepFalsePositiveRate = 0.001

// SweepReport summarizes one orphan sweep
type SweepReport struct {
	Scanned    int           `json:"scanned"`
	Referenced int           `json:"referenced"`
	TooYoung   int           `json:"too_young"`
	Deleted    int           `json:"deleted"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// SweepOrphans deletes ciphertext objects that no record references and that
// are older than the configured grace period. Orphans come from best-effort
// removals that failed or from uploads whose record write failed after the
// object was stored.
//
// Referenced keys are loaded into a bloom filter. A false positive only keeps
// an orphan alive; a referenced object is never deleted.
func (v *Vault) SweepOrphans(ctx context.Context, identity access.Identity) (*SweepReport, error) {
	if !identity.IsAdministrator {
		return nil, v.deny("sweep orphans", identity, "", nil)
	}

	start := time.Now()
	report := &SweepReport{}

	// List objects before records: an object stored after this listing is
	// not considered, and one recorded before the record listing is kept.
	objects, err := v.objects.List(ctx, blobstore.ObjectKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	keys, err := v.store.ListObjectKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list referenced keys: %w", err)
	}

	expected := uint(len(keys))
	if expected < 1024 {
		expected = 1024
	}
	referenced := bloom.NewWithEstimates(expected, sweepFalsePositiveRate)
	for _, key := range keys {
		referenced.AddString(key)
	}

	cutoff := v.now().Add(-v.grace)
	var doomed []string
	for _, obj := range objects {
		report.Scanned++
		if referenced.TestString(obj.Key) {
			report.Referenced++
			continue
		}

		created, ok := blobstore.ObjectKeyTime(obj.Key)
		if !ok {
			created = obj.LastModified
		}
		if created.After(cutoff) {
			report.TooYoung++
			continue
		}
		doomed = append(doomed, obj.Key)
	}

	errs := v.pool.Run(ctx, len(doomed), func(ctx context.Context, i int) error {
		return v.objects.Delete(ctx, doomed[i])
	})
	for i, err := range errs {
		if err != nil {
			report.Failed++
			v.logger.WithError(err).Warnf("failed to sweep orphan %d of %d", i+1, len(doomed))
			continue
		}
		report.Deleted++
	}

	report.Duration = time.Since(start)
	v.logger.WithFields(map[string]interface{}{
		"scanned":    report.Scanned,
		"referenced": report.Referenced,
		"too_young":  report.TooYoung,
		"deleted":    report.Deleted,
		"failed":     report.Failed,
	}).Info("orphan sweep finished")

	return report, nil
}
