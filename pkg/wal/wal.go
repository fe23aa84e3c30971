// Package wal implements a minimal append-only write-ahead log manager.
// The buffer pool flushes the log before writing any dirty page to disk.
package wal

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/icza/backscanner"
)

// LogManager appends records to a log file, one per line, each prefixed with
// its log sequence number. Reopening a log recovers the last LSN handed out.
type LogManager struct {
	logFile *os.File   // The log file where the write-ahead log is stored.
	lastLSN int64      // The most recently appended log sequence number.
	mtx     sync.Mutex // A mutex used for allowing safe concurrent use of this struct.
}

// NewLogManager returns a log manager appending to the specified log file,
// creating it if needed. Returns an error instead if the log file couldn't
// be opened or its tail couldn't be read.
func NewLogManager(logFilename string) (*LogManager, error) {
	logFile, err := os.OpenFile(logFilename, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}
	lastLSN, err := recoverLastLSN(logFile)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	return &LogManager{logFile: logFile, lastLSN: lastLSN}, nil
}

// Append writes a record to the end of the log and returns its LSN.
// The record is buffered by the OS until Flush is called.
func (lm *LogManager) Append(payload string) (int64, error) {
	lm.mtx.Lock()
	defer lm.mtx.Unlock()
	lsn := lm.lastLSN + 1
	_, err := fmt.Fprintf(lm.logFile, "%d|%s\n", lsn, payload)
	if err != nil {
		return 0, fmt.Errorf("error writing log record: %w", err)
	}
	lm.lastLSN = lsn
	return lsn, nil
}

// Flush forces all appended records to stable storage.
func (lm *LogManager) Flush() error {
	lm.mtx.Lock()
	defer lm.mtx.Unlock()
	return lm.logFile.Sync()
}

// LastLSN returns the LSN of the most recently appended record.
func (lm *LogManager) LastLSN() int64 {
	lm.mtx.Lock()
	defer lm.mtx.Unlock()
	return lm.lastLSN
}

// Close flushes and closes the log file.
func (lm *LogManager) Close() error {
	lm.mtx.Lock()
	defer lm.mtx.Unlock()
	if err := lm.logFile.Sync(); err != nil {
		return err
	}
	return lm.logFile.Close()
}

// recoverLastLSN scans the log file backwards for the most recent record and
// returns its LSN, or 0 if the log is empty.
func recoverLastLSN(logFile *os.File) (int64, error) {
	fstats, err := logFile.Stat()
	if err != nil {
		return 0, err
	}
	scanner := backscanner.New(logFile, int(fstats.Size()))
	for {
		line, _, err := scanner.Line()
		if err != nil {
			if err == io.EOF {
				return 0, nil
			}
			return 0, err
		}
		if line == "" {
			continue
		}
		sep := strings.IndexByte(line, '|')
		if sep == -1 {
			return 0, fmt.Errorf("malformed log record %q", line)
		}
		lsn, err := strconv.ParseInt(line[:sep], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed log record %q: %w", line, err)
		}
		return lsn, nil
	}
}
