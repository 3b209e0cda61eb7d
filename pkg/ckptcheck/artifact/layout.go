package artifact

import (
	"path/filepath"
	"strconv"
)

// GlobalLevel is the level whose artifacts live on the global file system.
const GlobalLevel = 4

// Layout describes where a checkpoint library places its artifacts.
type Layout struct {
	CkptDir   string
	GlobalDir string
	MetaDir   string
	ExecID    string

	// NodeSize is the number of processes per node and GlobalSize the
	// number of processes in the job, heads included.
	NodeSize   int
	GlobalSize int

	Level int
}

// Nodes returns the number of node directories.
func (l Layout) Nodes() int {
	if l.NodeSize <= 0 {
		return 0
	}
	return l.GlobalSize / l.NodeSize
}

// LocalDir returns the directory of level on node.
func (l Layout) LocalDir(node, level int) string {
	return filepath.Join(l.CkptDir, "node"+strconv.Itoa(node), l.ExecID, "l"+strconv.Itoa(level))
}

// GlobalLevelDir returns the directory of level-4 artifacts.
func (l Layout) GlobalLevelDir() string {
	return filepath.Join(l.GlobalDir, l.ExecID, "l"+strconv.Itoa(GlobalLevel))
}

// MetaLevelDir returns the metadata directory of level.
func (l Layout) MetaLevelDir(level int) string {
	return filepath.Join(l.MetaDir, l.ExecID, "l"+strconv.Itoa(level))
}

// Dirs returns the directories holding the artifacts of l.Level.
func (l Layout) Dirs() []string {
	if l.Level == GlobalLevel {
		return []string{l.GlobalLevelDir()}
	}
	dirs := make([]string, 0, l.Nodes())
	for node := 0; node < l.Nodes(); node++ {
		dirs = append(dirs, l.LocalDir(node, l.Level))
	}
	return dirs
}
