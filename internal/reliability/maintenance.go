package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/macroscope/internal/database"
	"github.com/aristath/macroscope/internal/store"
)

// MaintenanceJob performs the nightly database maintenance: integrity checks,
// WAL checkpoints, expired payload cleanup, and a disk space check.
type MaintenanceJob struct {
	databases map[string]*database.DB
	payloads  *store.PayloadRepository
	dataDir   string
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job.
func NewMaintenanceJob(databases map[string]*database.DB, payloads *store.PayloadRepository, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		payloads:  payloads,
		dataDir:   dataDir,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Integrity check for all databases. A corrupt datastore halts here;
	// everything after this is best-effort.
	for name, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Integrity check failed")
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	// WAL checkpoint to prevent bloat. Not critical on failure.
	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	// Expired payload cleanup
	if deleted, err := j.payloads.DeleteAllExpired(); err != nil {
		j.log.Warn().Err(err).Msg("Payload cleanup failed")
	} else {
		total := int64(0)
		for _, n := range deleted {
			total += n
		}
		j.log.Info().Int64("deleted", total).Msg("Expired payloads removed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Maintenance completed successfully")
	return nil
}

// checkDiskSpace halts maintenance when free space falls below 500MB. A full
// disk corrupts SQLite WAL files; better to stop writing early.
func (j *MaintenanceJob) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		j.log.Warn().Err(err).Msg("Failed to stat filesystem")
		return nil
	}

	freeBytes := stat.Bavail * uint64(stat.Bsize)
	freeMB := freeBytes / 1024 / 1024
	if freeMB < 500 {
		return fmt.Errorf("critically low disk space: %dMB free", freeMB)
	}
	if freeMB < 2048 {
		j.log.Warn().Uint64("free_mb", freeMB).Msg("Low disk space")
	}
	return nil
}
