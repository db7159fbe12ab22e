package rdiff

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/radovskyb/watcher"
)

/// SignatureWatcher keeps signature files next to their basis files up to
/// date. It polls rootDir, regenerates filename+suffix whenever a regular
/// file is created or written, and deletes signatures whose basis was
/// removed or renamed away.
type SignatureWatcher struct {
	fs        Filesystem
	rootDir   string
	generator *SignatureGenerator
	suffix    string
	logger    *log.Logger
	watcher   *watcher.Watcher
}

// NewSignatureWatcher watches rootDir; fs must resolve names relative to
// rootDir (see NewActualFilesystem).
func NewSignatureWatcher(
	fs Filesystem,
	rootDir string,
	generator *SignatureGenerator,
	suffix string,
	logger *log.Logger,
) *SignatureWatcher {
	return &SignatureWatcher{
		fs:        fs,
		rootDir:   rootDir,
		generator: generator,
		suffix:    suffix,
		logger:    logger,
		watcher:   watcher.New(),
	}
}

// HandleEvent regenerates the signature of filename if it is a regular
// basis file. It reports whether a signature was written.
func (sw *SignatureWatcher) HandleEvent(filename string) (bool, error) {
	if strings.HasSuffix(filename, sw.suffix) {
		return false, nil
	}
	if !sw.fs.IsPath(filename) || sw.fs.IsDir(filename) {
		return false, nil
	}
	if err := SignFile(sw.fs, sw.generator, filename, filename+sw.suffix); err != nil {
		return false, err
	}
	return true, nil
}

// HandleRemove deletes the signature of filename once filename is gone.
// It reports whether a signature was deleted.
func (sw *SignatureWatcher) HandleRemove(filename string) (bool, error) {
	if strings.HasSuffix(filename, sw.suffix) || sw.fs.IsPath(filename) {
		return false, nil
	}
	sigFilename := filename + sw.suffix
	if !sw.fs.IsPath(sigFilename) {
		return false, nil
	}
	if err := sw.fs.Delete(sigFilename); err != nil {
		return false, errors.Wrapf(err, "cannot delete %v", sigFilename)
	}
	return true, nil
}

/// Reconcile signs every basis file and prunes signatures without a basis.
/// A rename moves a basis without telling which signature went stale (an
/// atomic save renames a temporary file over the basis), so renames are
/// handled by a full pass.
func (sw *SignatureWatcher) Reconcile() error {
	signed, err := SignAll(sw.fs, sw.generator, sw.suffix)
	if err != nil {
		return err
	}
	pruned, err := PruneSignatures(sw.fs, sw.suffix)
	if err != nil {
		return err
	}
	sw.logger.Info("signatures reconciled", "signed", len(signed), "pruned", len(pruned))
	return nil
}

func (sw *SignatureWatcher) handle(event watcher.Event) {
	filename := sw.relative(event.Path)
	sw.logger.Debug("change", "op", event.Op, "file", filename)

	switch event.Op {
	case watcher.Create, watcher.Write:
		if event.IsDir() {
			return
		}
		written, err := sw.HandleEvent(filename)
		if err != nil {
			sw.logger.Error("cannot update signature", "file", filename, "err", err)
			return
		}
		if written {
			sw.logger.Info("signature updated", "file", filename+sw.suffix)
		}

	case watcher.Remove:
		deleted, err := sw.HandleRemove(filename)
		if err != nil {
			sw.logger.Error("cannot delete signature", "file", filename, "err", err)
			return
		}
		if deleted {
			sw.logger.Info("signature deleted", "file", filename+sw.suffix)
		}

	case watcher.Rename, watcher.Move:
		if err := sw.Reconcile(); err != nil {
			sw.logger.Error("cannot reconcile signatures", "err", err)
		}
	}
}

func (sw *SignatureWatcher) relative(path string) string {
	rel, err := filepath.Rel(sw.rootDir, path)
	if err != nil {
		return path
	}
	return rel
}

// closeOnDone closes the watcher once ctx is done. Close does nothing until
// Start is running, so it is retried every interval until the watcher
// reports Closed or Watch has returned.
func (sw *SignatureWatcher) closeOnDone(
	ctx context.Context,
	stopped <-chan struct{},
	interval time.Duration,
) {
	select {
	case <-ctx.Done():
	case <-stopped:
		return
	}
	for {
		sw.watcher.Close()
		select {
		case <-sw.watcher.Closed:
			return
		case <-stopped:
			return
		case <-time.After(interval):
		}
	}
}

// Watch blocks until ctx is done or the watcher fails.
func (sw *SignatureWatcher) Watch(ctx context.Context, interval time.Duration) error {
	if sw.suffix == "" {
		return errors.New("signature suffix must not be empty")
	}
	if interval < time.Millisecond {
		return errors.Errorf("poll interval %v is too short", interval)
	}
	sw.watcher.IgnoreHiddenFiles(true)
	sw.watcher.FilterOps(
		watcher.Create,
		watcher.Write,
		watcher.Remove,
		watcher.Rename,
		watcher.Move,
	)
	if err := sw.watcher.AddRecursive(sw.rootDir); err != nil {
		return errors.Wrapf(err, "cannot watch %v", sw.rootDir)
	}

	stopped := make(chan struct{})
	defer close(stopped)
	started := make(chan error, 1)
	go func() {
		started <- sw.watcher.Start(interval)
	}()
	// Close blocks until the polling loop picks it up, so it must not run
	// on the goroutine draining the event channel.
	go sw.closeOnDone(ctx, stopped, interval)

	sw.logger.Info("watching", "dir", sw.rootDir, "interval", interval)
	for {
		select {
		case event := <-sw.watcher.Event:
			sw.handle(event)

		case err := <-sw.watcher.Error:
			sw.logger.Warn("watcher error", "err", err)

		case <-sw.watcher.Closed:
			sw.logger.Info("watcher closed", "dir", sw.rootDir)
			return nil

		case err := <-started:
			if err != nil {
				return errors.Wrap(err, "cannot start watcher")
			}
			return nil
		}
	}
}
