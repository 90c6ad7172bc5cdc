// Package exiftags extracts the EXIF Label and Subject fields used to
// additionally bind a media item to keyword-matched albums (SPEC_FULL.md
// "Supplemented features"). It shells out to exiftool exactly as the
// teacher's commands/exif.go does; extraction is always best-effort and
// never blocks the primary upload path.
package exiftags

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Tags holds the keyword-relevant metadata for one file.
type Tags struct {
	Path     string
	Label    string
	Subjects []string
}

// Read extracts Label and Subject for a single file. A missing exiftool
// binary, a non-image file, or any parse failure yields a zero Tags and a
// non-nil error; callers treat this as "no keyword match" rather than a
// fatal condition.
func Read(ctx context.Context, path string) (Tags, error) {
	exiftoolPath, err := exec.LookPath("exiftool")
	if err != nil {
		return Tags{}, fmt.Errorf("exiftool not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, exiftoolPath, "-j", "-Label", "-Subject", path)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return Tags{}, ctx.Err()
		}
		return Tags{}, fmt.Errorf("failed to run exiftool on %s: %w", path, err)
	}

	var results []struct {
		SourceFile string `json:"SourceFile"`
		Label      string `json:"Label,omitempty"`
		Subject    any    `json:"Subject,omitempty"` // string or []any, exiftool's choice.
	}
	if err := json.Unmarshal(output, &results); err != nil {
		return Tags{}, fmt.Errorf("failed to unmarshal exiftool output for %s: %w", path, err)
	}
	if len(results) == 0 {
		return Tags{}, fmt.Errorf("exiftool returned no results for %s", path)
	}

	tags := Tags{Path: results[0].SourceFile, Label: results[0].Label}
	switch s := results[0].Subject.(type) {
	case string:
		tags.Subjects = []string{s}
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok {
				tags.Subjects = append(tags.Subjects, str)
			}
		}
	}
	return tags, nil
}

// MatchingAlbums returns the configured album titles whose key matches
// tags.Label or any of tags.Subjects.
func MatchingAlbums(tags Tags, labelAlbums, subjectAlbums []KeyAlbum) []string {
	var titles []string
	for _, ka := range labelAlbums {
		if ka.Key != "" && ka.Key == tags.Label {
			titles = append(titles, ka.Album)
		}
	}
	for _, ka := range subjectAlbums {
		for _, s := range tags.Subjects {
			if ka.Key != "" && ka.Key == s {
				titles = append(titles, ka.Album)
				break
			}
		}
	}
	return titles
}

// KeyAlbum mirrors config.KeyAlbum without importing the config package,
// keeping this package usable independent of configuration loading.
type KeyAlbum struct {
	Key   string
	Album string
}
