package sink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
)

// archiveMagic starts every archive, followed by one version byte.
var archiveMagic = []byte("LXRA")

// ErrBadArchive is returned for streams that are not lxring archives.
var ErrBadArchive = errors.New("sink: not an lxring archive")

// ArchiveSink writes entries as zstd-compressed wire frames in one header
// version. Drop summaries are archived like any other entry.
type ArchiveSink struct {
	name    string
	version entry.Version
	closer  io.Closer
	zw      *zstd.Encoder
}

// NewArchiveSink writes an archive of v-shaped frames to w.
func NewArchiveSink(w io.Writer, v entry.Version) (*ArchiveSink, error) {
	if v == 0 {
		v = entry.V2
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("sink: zstd writer: %w", err)
	}
	if _, err := zw.Write(append(archiveMagic[:len(archiveMagic):len(archiveMagic)], byte(v))); err != nil {
		zw.Close()
		return nil, fmt.Errorf("sink: write archive header: %w", err)
	}
	return &ArchiveSink{name: "archive", version: v, zw: zw}, nil
}

// CreateArchive creates or truncates path and archives into it.
func CreateArchive(path string, v entry.Version) (*ArchiveSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", path, err)
	}
	s, err := NewArchiveSink(f, v)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.name = "archive:" + path
	s.closer = f
	return s, nil
}

func (s *ArchiveSink) Write(e *entry.Entry) error {
	frame := *e
	frame.Version = s.version
	b := buffer.EncodeWire(&frame)
	defer buffer.ReleaseWire(b)
	_, err := s.zw.Write(*b)
	return err
}

// Flush ends the current zstd block.
func (s *ArchiveSink) Flush() error {
	return s.zw.Flush()
}

func (s *ArchiveSink) Close() error {
	err := s.zw.Close()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *ArchiveSink) Name() string { return s.name }

// ArchiveReader decodes an archive written by ArchiveSink.
type ArchiveReader struct {
	zr      *zstd.Decoder
	br      *bufio.Reader
	version entry.Version
	hdr     []byte
}

// NewArchiveReader reads the archive header from r.
func NewArchiveReader(r io.Reader) (*ArchiveReader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("sink: zstd reader: %w", err)
	}
	br := bufio.NewReader(zr)
	head := make([]byte, len(archiveMagic)+1)
	if _, err := io.ReadFull(br, head); err != nil {
		zr.Close()
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	if string(head[:len(archiveMagic)]) != string(archiveMagic) {
		zr.Close()
		return nil, ErrBadArchive
	}
	v := entry.Version(head[len(archiveMagic)])
	size := entry.HeaderSize
	switch v {
	case entry.V1:
		size = entry.LegacyHeaderSize
	case entry.V2:
	default:
		zr.Close()
		return nil, fmt.Errorf("%w: header version %d", ErrBadArchive, v)
	}
	return &ArchiveReader{zr: zr, br: br, version: v, hdr: make([]byte, size)}, nil
}

// Version returns the header version of the archived frames.
func (r *ArchiveReader) Version() entry.Version { return r.version }

// Next returns the next archived entry, or io.EOF at the end.
func (r *ArchiveReader) Next() (*entry.Entry, error) {
	if _, err := io.ReadFull(r.br, r.hdr); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated frame", entry.ErrCorrupt)
		}
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(r.hdr[0:2]))
	frame := make([]byte, len(r.hdr)+n)
	copy(frame, r.hdr)
	if _, err := io.ReadFull(r.br, frame[len(r.hdr):]); err != nil {
		return nil, fmt.Errorf("%w: truncated body: %v", entry.ErrCorrupt, err)
	}
	e, _, err := entry.DecodeWire(frame, r.version)
	return e, err
}

// Close releases the decoder.
func (r *ArchiveReader) Close() {
	r.zr.Close()
}
