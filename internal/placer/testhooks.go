package placer

// SetRenameForTests overrides the rename used to move staged files.
func SetRenameForTests(fn func(oldpath, newpath string) error) func() {
	previous := renameFile
	renameFile = fn
	return func() {
		renameFile = previous
	}
}
