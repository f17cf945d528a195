package denylist

import (
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay lets editors finish writing before the file is re-read.
const reloadDelay = 100 * time.Millisecond

// fileList is an IP list read from disk and reloaded whenever the file changes.
type fileList struct {
	path       string
	name       string
	listType   listType
	format     feedFormat
	prefixes   *prefixSet
	watcher    *fsnotify.Watcher
	lastUpdate time.Time
	mu         sync.RWMutex
	done       chan struct{}
	closeOnce  sync.Once
}

// fileConfig holds configuration for a file-based list.
type fileConfig struct {
	Path    string     // absolute or relative path to file
	Name    string     // name for metrics (defaults to filename)
	Type    listType   // allow or deny (default: deny)
	Format  feedFormat // ip or url (default: ip)
	BaseDir string     // base directory for relative paths
}

func newFileList(cfg fileConfig) (*fileList, error) {
	path := cfg.Path
	if !filepath.IsAbs(path) && cfg.BaseDir != "" {
		path = filepath.Join(cfg.BaseDir, path)
	}

	name := cfg.Name
	if name == "" {
		name = filepath.Base(path)
	}

	lt := cfg.Type
	if lt == "" {
		lt = listTypeDeny
	}

	format := cfg.Format
	if format == "" {
		format = formatIP
	}

	fl := &fileList{
		path:     path,
		name:     name,
		listType: lt,
		format:   format,
		prefixes: newPrefixSet(),
		done:     make(chan struct{}),
	}

	if err := fl.load(); err != nil {
		return nil, err
	}
	log.Infof("list file %s: loaded %d entries", fl.name, fl.Size())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fl.watcher = watcher

	// Watch the directory: editors and config management often replace the
	// file through a rename, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go fl.watchLoop()

	return fl, nil
}

func (fl *fileList) load() error {
	f, err := os.Open(fl.path)
	if err != nil {
		return err
	}
	defer f.Close()

	prefixes, err := parse(fl.format, f)
	if err != nil {
		return err
	}
	n := fl.prefixes.replace(prefixes)

	now := time.Now()
	fl.mu.Lock()
	fl.lastUpdate = now
	fl.mu.Unlock()

	observeLoad(fl.name, fl.listType, sourceFile, n, now.Unix())
	return nil
}

func (fl *fileList) watchLoop() {
	filename := filepath.Base(fl.path)

	for {
		select {
		case <-fl.done:
			return
		case event, ok := <-fl.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			time.Sleep(reloadDelay)
			if err := fl.load(); err != nil {
				log.Warnf("list file %s: reload failed: %v", fl.name, err)
			} else {
				log.Infof("list file %s: reloaded, %d entries", fl.name, fl.Size())
			}
		case err, ok := <-fl.watcher.Errors:
			if ok && err != nil {
				log.Warnf("list file %s: watcher error: %v", fl.name, err)
			}
		}
	}
}

// Check implements checker.
func (fl *fileList) Check(ip netip.Addr) CheckResult {
	if fl.prefixes.contains(ip) {
		return CheckResult{Matched: true, Name: fl.name}
	}
	return CheckResult{}
}

func (fl *fileList) Name() string   { return fl.name }
func (fl *fileList) Type() listType { return fl.listType }
func (fl *fileList) Size() int      { return fl.prefixes.size() }

// LastUpdate returns when the file was last loaded.
func (fl *fileList) LastUpdate() time.Time {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.lastUpdate
}

// Close implements io.Closer. Safe to call multiple times.
func (fl *fileList) Close() error {
	var err error
	fl.closeOnce.Do(func() {
		close(fl.done)
		if fl.watcher != nil {
			err = fl.watcher.Close()
		}
	})
	return err
}
