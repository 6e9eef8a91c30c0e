package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const maxLineBytes = 1024 * 1024

// DefaultPollInterval is how often Follow checks for appended lines.
const DefaultPollInterval = 250 * time.Millisecond

// Last returns up to limit of the newest entries that match filter, oldest
// first, together with the file offset reading stopped at. A missing file
// yields no entries and offset zero. A non-positive limit returns every match.
func Last(path string, filter Filter, limit int) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}

	var (
		ring  []Entry
		idx   int
		count int
	)
	if limit > 0 {
		ring = make([]Entry, limit)
	}
	scanner := newScanner(file)
	for scanner.Scan() {
		entry := ParseEntry(scanner.Text())
		if entry.Raw == "" || !filter.Match(entry) {
			continue
		}
		if limit <= 0 {
			ring = append(ring, entry)
			count++
			continue
		}
		ring[idx] = entry
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}

	if limit <= 0 || count < limit {
		return ring[:count], offset, nil
	}
	entries := make([]Entry, count)
	for i := range count {
		entries[i] = ring[(idx+i)%limit]
	}
	return entries, offset, nil
}

// Follow polls path from offset and calls emit for each appended entry that
// matches filter. It returns ctx.Err() once ctx is done. A truncated file is
// read again from the start.
func Follow(ctx context.Context, path string, offset int64, filter Filter, interval time.Duration, emit func(Entry)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		next, err := readFrom(path, offset, filter, emit)
		if err != nil {
			return err
		}
		offset = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(Entry)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	// Only whole lines advance the offset; a partially written record is
	// picked up on the next poll.
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		entry := ParseEntry(line[:len(line)-1])
		if entry.Raw != "" && filter.Match(entry) {
			emit(entry)
		}
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return scanner
}
