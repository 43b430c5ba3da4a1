// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package locking enforces the single-daemon invariant through a PID file.
// A stale file left by a crashed daemon is detected and reclaimed.
package locking

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning means another live daemon holds the PID file
var ErrAlreadyRunning = errors.New("daemon already running")

// PIDLock is a filesystem lock keyed on the daemon's process id
type PIDLock struct {
	path string
}

// NewPIDLock creates a lock over the given PID file path
func NewPIDLock(path string) *PIDLock {
	return &PIDLock{path: path}
}

// Acquire claims the PID file for the current process. If the file names a
// process that is still alive, Acquire fails with ErrAlreadyRunning wrapped
// with the offending pid. A stale file is overwritten.
func (l *PIDLock) Acquire() error {
	if pid, ok := l.readPID(); ok {
		if processAlive(pid) {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
	}

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(l.path, []byte(pid+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file if this process still owns it
func (l *PIDLock) Release() {
	if pid, ok := l.readPID(); ok && pid != os.Getpid() {
		return
	}
	os.Remove(l.path)
}

// readPID parses the current PID file, reporting false when the file is
// missing or unreadable
func (l *PIDLock) readPID() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive probes a pid with signal 0
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
