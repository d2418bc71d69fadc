package sys

import (
	"log/slog"
	"os"
)

// DCreate is the debug-mode counterpart to RCreate. It performs the same
// operation while additionally emitting a debug log entry.
func DCreate(sysFile File, name string) (FileHandle, error) {
	slog.Default().Debug("sys: Create", "name", name)
	return RCreate(sysFile, name)
}

// DOpen is the debug-mode counterpart to ROpen. It performs the same
// operation while additionally emitting a debug log entry.
func DOpen(sysFile File, name string) (FileHandle, error) {
	slog.Default().Debug("sys: Open", "name", name)
	return ROpen(sysFile, name)
}

// DOpenFile is the debug-mode counterpart to ROpenFile. It performs the same
// operation while additionally emitting a debug log entry.
func DOpenFile(sysFile File, name string, flag int, perm os.FileMode) (FileHandle, error) {
	slog.Default().Debug("sys: OpenFile", "name", name, "flag", flag, "perm", perm)
	return ROpenFile(sysFile, name, flag, perm)
}
