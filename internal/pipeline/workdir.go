package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// acquireWorkDir creates a fresh root/<videoID> directory, removing anything
// left over from an earlier attempt. The returned release func removes it
// again and only logs a failure.
func acquireWorkDir(root, videoID string, log *logrus.Entry) (string, func(), error) {
	if videoID == "" || videoID == "." || videoID == ".." || filepath.Base(videoID) != videoID {
		return "", nil, fmt.Errorf("video id %q is not usable as a directory name", videoID)
	}
	dir := filepath.Join(root, videoID)

	if err := os.RemoveAll(dir); err != nil {
		return "", nil, fmt.Errorf("remove stale work dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}

	release := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Warn("Failed to clean up work dir")
			return
		}
		log.WithField("dir", dir).Debug("Work dir removed")
	}
	return dir, release, nil
}
