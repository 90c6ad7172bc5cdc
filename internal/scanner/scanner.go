// Package scanner walks a local directory tree and produces the list of
// album directories (C3): which directories become cloud albums, and which
// files within them are uploadable.
package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ccfrost/albumsync/internal/model"
)

// platformMetadataDirs are directory-name components whose entire subtree
// is treated as platform metadata, never uploadable (§4.3).
var platformMetadataDirs = map[string]bool{
	"DS_Store":                  true,
	"@eaDir":                    true,
	"$RECYCLE.BIN":              true,
	"System Volume Information": true,
}

// Skippable reports whether name (a file's base name) is excluded from
// upload by §4.3's name rules: dotfiles and picasa.ini (case-insensitive).
func Skippable(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return strings.EqualFold(name, "picasa.ini")
}

// dirNode accumulates files and children while walking, before being
// flattened into the AlbumDirectory list.
type dirNode struct {
	path     string
	title    string // "" for the root
	files    []model.MediaFile
	children []string // child dir paths, in discovery order
}

// Scan walks root depth-first and returns the AlbumDirectory list of §4.3.
// A directory contributes an AlbumDirectory iff it transitively contains at
// least one non-skippable file; the root is always included (with no
// title) even if empty, so callers can tell "nothing to do" from "failed".
func Scan(root string) ([]model.AlbumDirectory, error) {
	root = filepath.Clean(root)
	nodes := map[string]*dirNode{}

	var walk func(dir, title string) error
	walk = func(dir, title string) error {
		nodes[dir] = &dirNode{path: dir, title: title}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if platformMetadataDirs[entry.Name()] {
					continue
				}
				childTitle := entry.Name()
				if title != "" {
					childTitle = title + ": " + entry.Name()
				}
				if err := walk(full, childTitle); err != nil {
					return err
				}
				nodes[dir].children = append(nodes[dir].children, full)
				continue
			}

			if Skippable(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return err
			}
			nodes[dir].files = append(nodes[dir].files, model.MediaFile{
				Path:    full,
				ModTime: info.ModTime(),
			})
		}
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, err
	}

	memo := map[string]bool{}
	var hasContent func(dir string) bool
	hasContent = func(dir string) bool {
		if v, ok := memo[dir]; ok {
			return v
		}
		node := nodes[dir]
		result := len(node.files) > 0
		for _, child := range node.children {
			if hasContent(child) {
				result = true
			}
		}
		memo[dir] = result
		return result
	}

	var dirs []model.AlbumDirectory
	var order func(dir string)
	order = func(dir string) {
		node := nodes[dir]
		if dir == root || hasContent(dir) {
			files := sortFilesByCreationTime(node.files)
			dirs = append(dirs, model.AlbumDirectory{
				Path:       node.path,
				AlbumTitle: node.title,
				Files:      files,
			})
		}
		for _, child := range node.children {
			order(child)
		}
	}
	order(root)

	return dirs, nil
}
