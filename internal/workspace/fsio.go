package workspace

import (
	"os"
)

// Hooks for filesystem operations
// used for testing
var (
	Open       = os.Open
	OpenFile   = os.OpenFile
	Stat       = os.Stat
	Lstat      = os.Lstat
	ReadDir    = os.ReadDir
	Remove     = os.Remove
	RemoveAll  = os.RemoveAll
	Rename     = os.Rename
	MkdirAll   = os.MkdirAll
	IsNotExist = os.IsNotExist
)
