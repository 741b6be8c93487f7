package node

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// readFileByPath reads a file through a rooted fs.FS so that a config
// value can never smuggle path traversal into the node's reads.
func readFileByPath(path string) ([]byte, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}
	return fs.ReadFile(os.DirFS(dir), name)
}
