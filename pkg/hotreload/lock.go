package hotreload

import (
	"os"

	"github.com/forgebuild/forge/pkg/builderr"
)

// SessionLock is a lock file whose presence means a live-coding session
// owns the target. forge live-coding holds it while the command runs and
// forge hot-reload refuses to run while it exists; forge build does not
// check it.
type SessionLock struct {
	path string
	file *os.File
}

// AcquireForSession creates path exclusively, failing if a session
// already holds it. Call Release when the session ends.
func AcquireForSession(path string) (*SessionLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, builderr.Newf(builderr.LiveCodingConflict,
				"a live-coding session already owns %s", path)
		}
		return nil, builderr.Wrap(err, path, "failed to acquire live-coding session lock")
	}
	return &SessionLock{path: path, file: f}, nil
}

// CheckNoSession returns a LiveCodingConflict error if path exists,
// without taking ownership of it. forge hot-reload calls this before
// proceeding; forge build does not.
func CheckNoSession(path string) error {
	if _, err := os.Stat(path); err == nil {
		return builderr.Newf(builderr.LiveCodingConflict,
			"a live-coding session owns %s; regular builds are blocked until it ends", path)
	}
	return nil
}

// Release removes the lock file, ending the session.
func (l *SessionLock) Release() error {
	if err := l.file.Close(); err != nil {
		return builderr.Wrap(err, l.path, "failed to close live-coding session lock")
	}
	if err := os.Remove(l.path); err != nil {
		return builderr.Wrap(err, l.path, "failed to release live-coding session lock")
	}
	return nil
}
