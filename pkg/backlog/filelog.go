package backlog

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"rescanvas/pkg/canvaserrors"
)

const frameHeaderSize = 8 // uint32 id length + uint32 doc length

// FileLog is a local append-only implementation of Log, for single-node
// deployments and development. Records are length-prefixed frames in one
// file; an in-memory index maps each id to the offset of its latest
// frame, so Query is latest-wins without scanning.
type FileLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	index  map[string]int64
	size   int64
}

func NewFileLog(dir string) (*FileLog, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty backing log dir")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create backing log directory: %w", err)
	}

	path := filepath.Join(dir, "canvas.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open backing log file: %w", err)
	}

	l := &FileLog{
		file:   file,
		writer: bufio.NewWriter(file),
		index:  make(map[string]int64),
	}
	if err := l.replay(); err != nil {
		_ = file.Close()
		return nil, err
	}
	if _, err := file.Seek(l.size, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("seek backing log tail: %w", err)
	}
	return l, nil
}

// replay rebuilds the latest-offset index from the full log.
func (l *FileLog) replay() error {
	reader := bufio.NewReader(io.NewSectionReader(l.file, 0, 1<<62))
	offset := int64(0)
	for {
		id, frameLen, err := l.readFrameID(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("replay backing log at offset %d: %w", offset, err)
		}
		l.index[id] = offset
		offset += frameLen
	}
	l.size = offset
	return nil
}

func (l *FileLog) readFrameID(r *bufio.Reader) (string, int64, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", 0, err
	}
	idLen := binary.LittleEndian.Uint32(header[0:4])
	docLen := binary.LittleEndian.Uint32(header[4:8])

	id := make([]byte, idLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return "", 0, err
	}
	if _, err := io.CopyN(io.Discard, r, int64(docLen)); err != nil {
		return "", 0, err
	}
	return string(id), frameHeaderSize + int64(idLen) + int64(docLen), nil
}

func (l *FileLog) Commit(_ context.Context, id string, doc []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(id)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(doc)))

	offset := l.size
	for _, chunk := range [][]byte{header[:], []byte(id), doc} {
		if _, err := l.writer.Write(chunk); err != nil {
			l.discardTail()
			return fmt.Errorf("append %s: %v: %w", id, err, canvaserrors.ErrCommitFailed)
		}
	}
	if err := l.writer.Flush(); err != nil {
		l.discardTail()
		return fmt.Errorf("flush %s: %v: %w", id, err, canvaserrors.ErrCommitFailed)
	}
	if err := l.file.Sync(); err != nil {
		l.discardTail()
		return fmt.Errorf("sync %s: %v: %w", id, err, canvaserrors.ErrCommitFailed)
	}

	l.index[id] = offset
	l.size += frameHeaderSize + int64(len(id)) + int64(len(doc))
	return nil
}

// discardTail drops a partially appended frame: buffered bytes are
// thrown away and anything already flushed past the last durable frame
// is truncated, so later appends and replay never see a torn record.
// Caller holds l.mu.
func (l *FileLog) discardTail() {
	l.writer.Reset(l.file)
	if err := l.file.Truncate(l.size); err != nil {
		slog.Warn("Failed to truncate backing log tail", "error", err)
		return
	}
	if _, err := l.file.Seek(l.size, io.SeekStart); err != nil {
		slog.Warn("Failed to seek backing log tail", "error", err)
	}
}

func (l *FileLog) Query(_ context.Context, id string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	offset, ok := l.index[id]
	if !ok {
		return nil, false, nil
	}

	var header [frameHeaderSize]byte
	if _, err := l.file.ReadAt(header[:], offset); err != nil {
		return nil, false, fmt.Errorf("read %s header: %v: %w", id, err, canvaserrors.ErrUpstreamUnavailable)
	}
	idLen := binary.LittleEndian.Uint32(header[0:4])
	docLen := binary.LittleEndian.Uint32(header[4:8])

	doc := make([]byte, docLen)
	if _, err := l.file.ReadAt(doc, offset+frameHeaderSize+int64(idLen)); err != nil {
		return nil, false, fmt.Errorf("read %s doc: %v: %w", id, err, canvaserrors.ErrUpstreamUnavailable)
	}
	return doc, true, nil
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flush backing log: %w", err)
	}
	return l.file.Close()
}
