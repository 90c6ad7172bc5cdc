package scanner

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	jpegstructure "github.com/dsoprea/go-jpeg-image-structure"

	"github.com/ccfrost/albumsync/internal/model"
)

// filenameTimestamp matches the "...YYYY_MM_DD_HH_MM_SS..." pattern of
// §4.7. Cameras and export tools (WhatsApp, Signal, screen recorders) use
// this convention heavily enough to be worth a dedicated tier ahead of
// filesystem mtime.
var filenameTimestamp = regexp.MustCompile(`(\d{4})_(\d{2})_(\d{2})_(\d{2})_(\d{2})_(\d{2})`)

// exifDateTimeLayout is the EXIF ASCII timestamp format used by
// DateTimeOriginal.
const exifDateTimeLayout = "2006:01:02 15:04:05"

// creationTime estimates when a file was originally captured, trying in
// order: the filename timestamp pattern, EXIF DateTimeOriginal (JPEGs
// only), then falling back to filesystem mtime. Every tier beyond the
// filename pattern is best-effort: a parse failure just falls through to
// the next tier rather than failing the scan.
func creationTime(path string, modTime time.Time) time.Time {
	if t, ok := parseFilenameTimestamp(filepath.Base(path)); ok {
		return t
	}
	if t, ok := readEXIFDateTimeOriginal(path); ok {
		return t
	}
	return modTime
}

func parseFilenameTimestamp(name string) (time.Time, bool) {
	m := filenameTimestamp.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	parts := make([]int, 6)
	for i, s := range m[1:] {
		v, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, false
		}
		parts[i] = v
	}
	t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.Local)
	return t, true
}

// readEXIFDateTimeOriginal extracts DateTimeOriginal from a JPEG's EXIF
// block. Non-JPEGs and files with no EXIF block simply report !ok.
func readEXIFDateTimeOriginal(path string) (time.Time, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".jpg" && ext != ".jpeg" {
		return time.Time{}, false
	}

	parser := jpegstructure.NewJpegMediaParser()
	intfc, err := parser.ParseFile(path)
	if err != nil {
		return time.Time{}, false
	}
	segments, ok := intfc.(*jpegstructure.SegmentList)
	if !ok {
		return time.Time{}, false
	}
	rootIfd, _, err := segments.Exif()
	if err != nil {
		return time.Time{}, false
	}

	results, err := rootIfd.FindTagWithName("DateTimeOriginal")
	if err != nil || len(results) == 0 {
		return time.Time{}, false
	}
	value, err := results[0].Value()
	if err != nil {
		return time.Time{}, false
	}
	raw, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(exifDateTimeLayout, strings.TrimRight(raw, "\x00"), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// sortFilesByCreationTime applies the creation-time heuristic to each file
// and orders them per §4.7, with filename as the final tie-break.
func sortFilesByCreationTime(files []model.MediaFile) []model.MediaFile {
	sorted := make([]model.MediaFile, len(files))
	copy(sorted, files)
	for i := range sorted {
		sorted[i].CreatedAt = creationTime(sorted[i].Path, sorted[i].ModTime)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return filepath.Base(sorted[i].Path) < filepath.Base(sorted[j].Path)
	})
	return sorted
}
