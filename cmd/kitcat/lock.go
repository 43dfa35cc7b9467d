package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kk-code-lab/kitcat/internal/app"
)

const (
	lockFilename        = ".kitcat.lock"
	heartbeatInterval   = 5 * time.Second
	heartbeatStaleAfter = 15 * time.Second
	lockFileMode        = 0o644
	lockTempSuffix      = ".tmp"
)

type lockHeartbeat struct {
	PID         int       `json:"pid"`
	Op          string    `json:"op"`
	StartedAt   time.Time `json:"started_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
	Version     string    `json:"version"`
}

type lockStatus struct {
	ModTime time.Time
	Fresh   bool
	Data    lockHeartbeat
	HasData bool
}

// dirLock marks a directory as being written by this process. A lock whose
// heartbeat is older than heartbeatStaleAfter is considered abandoned.
type dirLock struct {
	path     string
	op       string
	started  time.Time
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func lockPath(dir string) string {
	return filepath.Join(dir, lockFilename)
}

func readLockStatus(dir string) (lockStatus, error) {
	path := lockPath(dir)
	info, err := os.Stat(path)
	if err != nil {
		return lockStatus{}, err
	}
	status := lockStatus{
		ModTime: info.ModTime(),
		Fresh:   time.Since(info.ModTime()) <= heartbeatStaleAfter,
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &status.Data); err == nil {
			status.HasData = true
		}
	}
	return status, nil
}

func acquireDirLock(dir, op string) (*dirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := lockPath(dir)
	if status, err := readLockStatus(dir); err == nil {
		if status.Fresh {
			return nil, lockConflict(dir, status)
		}
		_ = os.Remove(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := claimLockFile(dir); err != nil {
		return nil, err
	}
	l := &dirLock{
		path:     path,
		op:       op,
		started:  time.Now().UTC(),
		interval: heartbeatInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := l.beat(); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	go l.loop()
	return l, nil
}

// claimLockFile creates the lock file exclusively. Losing the race to another
// process is reported as ErrDirLocked whatever state its lock file is in.
func claimLockFile(dir string) error {
	f, err := os.OpenFile(lockPath(dir), os.O_WRONLY|os.O_CREATE|os.O_EXCL, lockFileMode)
	if errors.Is(err, os.ErrExist) {
		if status, serr := readLockStatus(dir); serr == nil {
			return lockConflict(dir, status)
		}
		return fmt.Errorf("%w: %s: %w", ErrDirLocked, dir, err)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

func (l *dirLock) loop() {
	ticker := time.NewTicker(l.interval)
	defer func() {
		ticker.Stop()
		close(l.done)
	}()
	for {
		select {
		case <-ticker.C:
			_ = l.beat()
		case <-l.stop:
			return
		}
	}
}

func (l *dirLock) beat() error {
	data, err := json.Marshal(lockHeartbeat{
		PID:         os.Getpid(),
		Op:          l.op,
		StartedAt:   l.started,
		HeartbeatAt: time.Now().UTC(),
		Version:     app.Version,
	})
	if err != nil {
		return err
	}
	tmp := l.path + lockTempSuffix
	if err := os.WriteFile(tmp, data, lockFileMode); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

// Release stops the heartbeat and removes the lock file.
func (l *dirLock) Release() {
	if l == nil {
		return
	}
	close(l.stop)
	<-l.done
	_ = os.Remove(l.path)
}

func lockConflict(dir string, status lockStatus) error {
	if status.HasData {
		return fmt.Errorf("%w: %s (pid=%d op=%s heartbeat=%s)", ErrDirLocked, dir,
			status.Data.PID, status.Data.Op, status.ModTime.UTC().Format(time.RFC3339))
	}
	return fmt.Errorf("%w: %s (lock updated %s)", ErrDirLocked, dir, status.ModTime.UTC().Format(time.RFC3339))
}
