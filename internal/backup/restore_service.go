package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// RestoreFlag records a staged restore waiting for the next process
// restart to apply, mirroring the two-phase stage/apply split so a bad
// download never clobbers a live store mid-request.
type RestoreFlag struct {
	BackupKey string    `json:"backup_key"`
	StagedAt  time.Time `json:"staged_at"`
}

// RestoreService downloads and applies backups staged from R2.
type RestoreService struct {
	client    *R2Client
	dataDir   string
	storePath string
	cacheDir  string
	log       zerolog.Logger
}

// NewRestoreService builds a restore service rooted at dataDir.
func NewRestoreService(client *R2Client, dataDir, storePath, cacheDir string, log zerolog.Logger) *RestoreService {
	return &RestoreService{
		client:    client,
		dataDir:   dataDir,
		storePath: storePath,
		cacheDir:  cacheDir,
		log:       log.With().Str("component", "restore_service").Logger(),
	}
}

func (s *RestoreService) flagPath() string { return filepath.Join(s.dataDir, ".pending-restore") }
func (s *RestoreService) stagingDir() string {
	return filepath.Join(s.dataDir, "restore-staging")
}

// PendingRestore reports whether a restore has been staged and is waiting
// for ApplyStaged to run at next startup.
func (s *RestoreService) PendingRestore() (bool, error) {
	_, err := os.Stat(s.flagPath())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check pending restore flag: %w", err)
	}
	return true, nil
}

// Stage downloads the named backup key from R2, validates it, and records
// a restore flag. It does not touch the live store or cache — call
// ApplyStaged (typically on the next process start) to apply it.
func (s *RestoreService) Stage(ctx context.Context, key string) error {
	if s.client == nil {
		return fmt.Errorf("restore service not configured with r2 credentials")
	}

	stagingDir := s.stagingDir()
	if err := os.RemoveAll(stagingDir); err != nil {
		return fmt.Errorf("failed to clean staging directory: %w", err)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	archivePath := filepath.Join(stagingDir, "archive.tar.gz")
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	bytesDownloaded, err := s.client.Download(ctx, key, archiveFile)
	archiveFile.Close()
	if err != nil {
		os.RemoveAll(stagingDir)
		return fmt.Errorf("failed to download backup from r2: %w", err)
	}
	s.log.Info().Str("key", key).Int64("bytes", bytesDownloaded).Msg("backup downloaded")

	extractDir := filepath.Join(stagingDir, "extracted")
	if err := extractTarGz(archivePath, extractDir); err != nil {
		os.RemoveAll(stagingDir)
		return fmt.Errorf("failed to extract backup archive: %w", err)
	}

	if err := validateStagedBackup(extractDir); err != nil {
		os.RemoveAll(stagingDir)
		return fmt.Errorf("staged backup failed validation: %w", err)
	}

	flag := RestoreFlag{BackupKey: key, StagedAt: time.Now().UTC()}
	if err := writeJSON(s.flagPath(), flag); err != nil {
		os.RemoveAll(stagingDir)
		return fmt.Errorf("failed to write restore flag: %w", err)
	}

	s.log.Info().Str("key", key).Msg("restore staged; restart service to apply")
	return nil
}

// ApplyStaged applies a previously staged restore, replacing the live store
// database and FCP cache directory. A safety copy of the current store is
// kept alongside the data directory in case the restore needs reverting.
func (s *RestoreService) ApplyStaged() error {
	flag, err := readRestoreFlag(s.flagPath())
	if err != nil {
		return fmt.Errorf("failed to read restore flag: %w", err)
	}

	extractDir := filepath.Join(s.stagingDir(), "extracted")
	if _, err := os.Stat(extractDir); err != nil {
		return fmt.Errorf("staged backup contents not found: %w", err)
	}
	if err := validateStagedBackup(extractDir); err != nil {
		return fmt.Errorf("staged backup failed re-validation: %w", err)
	}

	safetyPath := s.storePath + fmt.Sprintf(".pre-restore-%s", time.Now().Format("20060102-150405"))
	if _, err := os.Stat(s.storePath); err == nil {
		if _, err := copyFile(s.storePath, safetyPath); err != nil {
			s.log.Error().Err(err).Msg("failed to create pre-restore safety copy, continuing")
		}
	}

	os.Remove(s.storePath)
	os.Remove(s.storePath + "-wal")
	os.Remove(s.storePath + "-shm")
	if _, err := copyFile(filepath.Join(extractDir, "store.sqlite"), s.storePath); err != nil {
		return fmt.Errorf("failed to restore store database: %w", err)
	}

	if err := os.RemoveAll(s.cacheDir); err != nil {
		return fmt.Errorf("failed to clear fcp cache directory: %w", err)
	}
	if _, _, err := copyCacheDir(filepath.Join(extractDir, "cache"), s.cacheDir); err != nil {
		return fmt.Errorf("failed to restore fcp cache: %w", err)
	}

	os.Remove(s.flagPath())
	os.RemoveAll(s.stagingDir())

	s.log.Info().Str("key", flag.BackupKey).Msg("restore applied")
	return nil
}

// CancelStaged discards a staged restore without applying it.
func (s *RestoreService) CancelStaged() error {
	if err := os.Remove(s.flagPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove restore flag: %w", err)
	}
	return os.RemoveAll(s.stagingDir())
}

func validateStagedBackup(extractDir string) error {
	var metadata Metadata
	if err := readJSON(filepath.Join(extractDir, metadataName), &metadata); err != nil {
		return fmt.Errorf("metadata missing or invalid: %w", err)
	}

	info, err := os.Stat(filepath.Join(extractDir, "store.sqlite"))
	if err != nil {
		return fmt.Errorf("store database missing from backup: %w", err)
	}
	if info.Size() != metadata.StoreBytes {
		return fmt.Errorf("store database size mismatch: expected %d, got %d", metadata.StoreBytes, info.Size())
	}
	return checkIntegrity(filepath.Join(extractDir, "store.sqlite"))
}

func checkIntegrity(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open staged database: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func extractTarGz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}
		target := filepath.Join(destDir, hdr.Name)
		if !filepathHasPrefix(target, destDir) {
			return fmt.Errorf("invalid path in backup archive: %s", hdr.Name)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", hdr.Name, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("failed to write %s: %w", hdr.Name, err)
		}
		out.Close()
	}
	return nil
}

func filepathHasPrefix(path, prefix string) bool {
	clean := filepath.Clean(prefix) + string(os.PathSeparator)
	return len(path) >= len(clean) && path[:len(clean)] == clean
}

func readRestoreFlag(path string) (RestoreFlag, error) {
	var flag RestoreFlag
	err := readJSON(path, &flag)
	return flag, err
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
