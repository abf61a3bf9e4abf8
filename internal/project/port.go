package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"remixer/internal/framestore"
	"remixer/internal/util"
)

// ErrPortMismatch is returned when a ported descriptor still points at the
// old root.
var ErrPortMismatch = errors.New("ported project still references the old root")

var now = time.Now

// BackupPath returns a fresh backup location for the descriptor of root.
func BackupPath(root string) string {
	return filepath.Join(root, framestore.PortedDir, fmt.Sprintf("project-%d.yaml", now().Unix()))
}

// Backup copies root's descriptor into ported_project_files and returns
// the backup path.
func Backup(root string) (string, error) {
	src := filepath.Join(root, DescriptorName)
	dst := BackupPath(root)
	if err := util.CopyFile(src, dst); err != nil {
		return "", fmt.Errorf("backup descriptor: %w", err)
	}
	return dst, nil
}

// Port rewrites every occurrence of oldRoot in the descriptor found under
// newRoot, after backing the original up. The rewritten descriptor is
// loaded back and checked; any path field left under oldRoot is an
// ErrPortMismatch.
func Port(oldRoot, newRoot string) (*Descriptor, error) {
	oldRoot = filepath.Clean(oldRoot)
	newRoot = filepath.Clean(newRoot)
	path := filepath.Join(newRoot, DescriptorName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if _, err := Backup(newRoot); err != nil {
		return nil, err
	}
	rewritten := strings.ReplaceAll(string(data), oldRoot, newRoot)
	d, err := Parse(path, []byte(rewritten))
	if err != nil {
		return nil, err
	}
	if err := checkPorted(d, oldRoot, newRoot); err != nil {
		return nil, err
	}
	if err := util.WriteFileAtomic(path, []byte(rewritten), 0o644); err != nil {
		return nil, fmt.Errorf("save ported descriptor: %w", err)
	}
	return d, nil
}

func under(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func checkPorted(d *Descriptor, oldRoot, newRoot string) error {
	if filepath.Clean(d.ProjectPath) != newRoot {
		return fmt.Errorf("%w: project_path is %s", ErrPortMismatch, d.ProjectPath)
	}
	fields := d.PathFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fields[k]
		if v == "" || k == "source_video" || k == "source_audio" || k == "output_filepath" {
			continue
		}
		if under(v, oldRoot) && !under(v, newRoot) {
			return fmt.Errorf("%w: %s is %s", ErrPortMismatch, k, v)
		}
	}
	for _, th := range d.Thumbnails {
		if th != "" && under(th, oldRoot) && !under(th, newRoot) {
			return fmt.Errorf("%w: thumbnail %s", ErrPortMismatch, th)
		}
	}
	return nil
}
