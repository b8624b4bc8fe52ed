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

const (
	maxLineBytes = 1 << 20
	pollInterval = 200 * time.Millisecond
)

// Chunk is a batch of complete lines and the byte offset just past them.
type Chunk struct {
	Lines  []string
	Offset int64
}

// Last returns up to n trailing lines of path. A missing file yields an
// empty chunk at offset 0.
func Last(path string, n int) (Chunk, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return Chunk{}, err
	}
	defer file.Close()

	if n <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return Chunk{}, fmt.Errorf("seek log file: %w", err)
		}
		return Chunk{Offset: end}, nil
	}

	ring := make([]string, 0, n)
	offset, err := scanLines(file, func(line string) {
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	})
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Lines: ring, Offset: offset}, nil
}

// Since returns the complete lines written after offset. When none are
// available it polls until wait elapses or ctx ends. A file shorter than
// offset was rotated and is read from the start.
func Since(ctx context.Context, path string, offset int64, wait time.Duration) (Chunk, error) {
	deadline := time.Now().Add(max(wait, 0))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		chunk, err := readFrom(path, offset)
		if err != nil {
			return Chunk{Offset: offset}, err
		}
		if len(chunk.Lines) > 0 || !time.Now().Before(deadline) {
			return chunk, nil
		}
		offset = chunk.Offset
		select {
		case <-ctx.Done():
			return chunk, ctx.Err()
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64) (Chunk, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return Chunk{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Chunk{}, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Chunk{}, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	consumed, err := scanLines(file, func(line string) { lines = append(lines, line) })
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Lines: lines, Offset: offset + consumed}, nil
}

// scanLines feeds every newline-terminated line of r to fn and returns the
// bytes consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			if len(line) > maxLineBytes {
				line = line[:maxLineBytes]
			}
			fn(trimEOL(line))
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}

func trimEOL(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

func open(path string) (*os.File, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}
