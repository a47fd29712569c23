package countryfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/geosearch/internal/domain"
)

// fcpHeaderPrefix marks the single header line every FCP cache file
// carries: the upstream validator token and the time it was recorded.
const fcpHeaderPrefix = "ETAG"

// WriteFCP atomically writes the FCP cache file: a header line with the
// validator token and recording time, followed by one line per entry. The
// file is written to a sibling temp path and renamed into place so a reader
// never observes a partial file.
func WriteFCP(path, etag string, recordedAt time.Time, entries []domain.CountryIndexEntry) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fcp-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp fcp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	if _, err := fmt.Fprintf(w, "%s\t%s\t%d\n", fcpHeaderPrefix, etag, recordedAt.Unix()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write fcp header: %w", err)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s\t%g\t%g\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Name, e.Lat, e.Lng, e.FeatureClass, e.FeatureCode, e.CountryCode,
			e.Admin1, e.Admin2, e.Admin3, e.Admin4, e.Timezone); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write fcp entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush fcp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close fcp temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename fcp file into place: %w", err)
	}
	return nil
}

// ReadFCPHeader reads just the etag/recorded-time header line, without
// parsing the (possibly large) entry body. Callers that only need to check
// whether a cache file has changed since a previous full read should use
// this instead of ReadFCP.
func ReadFCPHeader(path string) (etag string, recordedAt time.Time, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to open fcp file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", time.Time{}, fmt.Errorf("fcp file %s is empty", path)
	}
	return parseHeaderLine(path, scanner.Text())
}

func parseHeaderLine(path, line string) (etag string, recordedAt time.Time, err error) {
	header := strings.Split(line, "\t")
	if len(header) != 3 || header[0] != fcpHeaderPrefix {
		return "", time.Time{}, fmt.Errorf("fcp file %s has a malformed header", path)
	}
	unixSec, err := strconv.ParseInt(header[2], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("fcp file %s has an invalid recorded time: %w", path, err)
	}
	return header[1], time.Unix(unixSec, 0).UTC(), nil
}

// ReadFCP reads back a previously written FCP cache file.
func ReadFCP(path string) (etag string, recordedAt time.Time, entries []domain.CountryIndexEntry, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("failed to open fcp file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return "", time.Time{}, nil, fmt.Errorf("fcp file %s is empty", path)
	}
	etag, recordedAt, err = parseHeaderLine(path, scanner.Text())
	if err != nil {
		return "", time.Time{}, nil, err
	}

	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 11 {
			return "", time.Time{}, nil, fmt.Errorf("fcp file %s has a malformed entry line", path)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return "", time.Time{}, nil, fmt.Errorf("fcp file %s has an invalid lat: %w", path, err)
		}
		lng, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return "", time.Time{}, nil, fmt.Errorf("fcp file %s has an invalid lng: %w", path, err)
		}
		entries = append(entries, domain.CountryIndexEntry{
			Name:         fields[0],
			Lat:          lat,
			Lng:          lng,
			FeatureClass: fields[3],
			FeatureCode:  fields[4],
			CountryCode:  fields[5],
			Admin1:       fields[6],
			Admin2:       fields[7],
			Admin3:       fields[8],
			Admin4:       fields[9],
			Timezone:     fields[10],
		})
	}
	if err := scanner.Err(); err != nil {
		return "", time.Time{}, nil, fmt.Errorf("reading fcp file %s: %w", path, err)
	}
	return etag, recordedAt, entries, nil
}

// IsFresh reports whether a cache recorded at recordedAt is still within
// staleness of now. The recorded etag timestamp, not the file's mtime, is
// the authoritative clock source.
func IsFresh(recordedAt time.Time, staleness time.Duration, now time.Time) bool {
	return now.Sub(recordedAt) < staleness
}
