package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Metadata describes the contents of one backup archive.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	StorePath   string    `json:"store_path"`
	StoreBytes  int64     `json:"store_bytes"`
	CacheFiles  int       `json:"cache_files"`
	CacheBytes  int64     `json:"cache_bytes"`
}

// Info summarizes one backup object already uploaded to R2.
type Info struct {
	Key          string
	Timestamp    time.Time
	SizeBytes    int64
}

const metadataName = "backup-metadata.json"
const archivePrefix = "geosearch-backup-"

// Service creates tar.gz snapshots of the document store and the FCP cache
// directory and uploads them to R2. Disabled when client is nil.
type Service struct {
	client    *R2Client
	storePath string
	cacheDir  string
	log       zerolog.Logger
}

// NewService builds a backup service. client may be nil, in which case
// CreateAndUpload and List return an error — the caller is expected to
// check Enabled() before scheduling the periodic job.
func NewService(client *R2Client, storePath, cacheDir string, log zerolog.Logger) *Service {
	return &Service{
		client:    client,
		storePath: storePath,
		cacheDir:  cacheDir,
		log:       log.With().Str("component", "backup_service").Logger(),
	}
}

// Enabled reports whether an R2 client was configured.
func (s *Service) Enabled() bool { return s.client != nil }

// CreateAndUpload snapshots the store database and FCP cache directory into
// a single tar.gz archive and uploads it to R2 under a timestamp-prefixed
// key, so List later returns backups in chronological order.
func (s *Service) CreateAndUpload(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("backup service not configured with r2 credentials")
	}

	stagingDir, err := os.MkdirTemp("", "geosearch-backup-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	storeBytes, err := copyFile(s.storePath, filepath.Join(stagingDir, "store.sqlite"))
	if err != nil {
		return fmt.Errorf("failed to stage store database: %w", err)
	}

	cacheCount, cacheBytes, err := copyCacheDir(s.cacheDir, filepath.Join(stagingDir, "cache"))
	if err != nil {
		return fmt.Errorf("failed to stage fcp cache: %w", err)
	}

	metadata := Metadata{
		Timestamp:  time.Now().UTC(),
		Version:    "1",
		StorePath:  "store.sqlite",
		StoreBytes: storeBytes,
		CacheFiles: cacheCount,
		CacheBytes: cacheBytes,
	}
	if err := writeMetadata(filepath.Join(stagingDir, metadataName), metadata); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}

	archivePath := filepath.Join(os.TempDir(), fmt.Sprintf("%s%s.tar.gz", archivePrefix, metadata.Timestamp.Format("20060102-150405")))
	defer os.Remove(archivePath)
	if err := writeTarGz(stagingDir, archivePath); err != nil {
		return fmt.Errorf("failed to build backup archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open backup archive: %w", err)
	}
	defer archiveFile.Close()

	info, err := archiveFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat backup archive: %w", err)
	}

	key := fmt.Sprintf("%s%s.tar.gz", archivePrefix, metadata.Timestamp.Format("20060102-150405"))
	if err := s.client.Upload(ctx, key, archiveFile, info.Size()); err != nil {
		return err
	}

	s.log.Info().Str("key", key).Int64("bytes", info.Size()).Msg("backup uploaded")
	return nil
}

// List returns all backups present in R2, most recent first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	if s.client == nil {
		return nil, fmt.Errorf("backup service not configured with r2 credentials")
	}
	objects, err := s.client.List(ctx, archivePrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		var ts time.Time
		if obj.LastModified != nil {
			ts = *obj.LastModified
		}
		out = append(out, Info{Key: *obj.Key, Timestamp: ts, SizeBytes: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	return n, out.Sync()
}

func copyCacheDir(srcDir, dstDir string) (files int, bytes int64, err error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return 0, 0, err
	}
	entries, err := os.ReadDir(srcDir)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		n, err := copyFile(filepath.Join(srcDir, entry.Name()), filepath.Join(dstDir, entry.Name()))
		if err != nil {
			return files, bytes, err
		}
		files++
		bytes += n
	}
	return files, bytes, nil
}

func writeMetadata(path string, metadata Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(metadata)
}

func writeTarGz(srcDir, dstPath string) error {
	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	return filepath.Walk(srcDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}
