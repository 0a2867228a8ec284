// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"encoding/binary"
	"os"

	"github.com/go-kratos/kratos/v2/log"

	mmap "github.com/edsrzf/mmap-go"
)

// A File represents a read-only view of a PE image, mapped or loaded in
// memory, parsed far enough to support Authenticode digesting and page-hash
// enumeration: DOS header, NT headers, section table and the certificate
// data directory entry.
type File struct {
	DOSHeader ImageDOSHeader `json:"dos_header,omitempty"`
	NtHeader  ImageNtHeader  `json:"nt_header,omitempty"`
	Sections  []Section      `json:"sections,omitempty"`
	Header    []byte
	data      mmap.MMap
	FileInfo
	size   uint32
	f      *os.File
	opts   *Options
	logger *log.Helper
}

// Options for Parsing.
type Options struct {
	// A custom logger. Defaults to a warn-level stderr logger when nil.
	Logger log.Logger
}

func newLogger(opts *Options) *log.Helper {
	if opts == nil || opts.Logger == nil {
		return log.NewHelper(log.NewFilter(
			log.NewStdLogger(os.Stderr), log.FilterLevel(log.LevelWarn)))
	}
	return log.NewHelper(opts.Logger)
}

// Open memory-maps the named file read-only and parses its PE structure.
// The caller must call Close when done; the mapping is held for the
// lifetime of the File.
func Open(name string, opts *Options) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	file := &File{opts: opts, logger: newLogger(opts)}
	file.data = data
	file.size = uint32(len(file.data))
	file.f = f

	if err := file.parse(); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}

// OpenBytes parses a PE image already resident in memory. There is no file
// descriptor or mapping to release; Close is a no-op.
func OpenBytes(data []byte, opts *Options) (*File, error) {
	file := &File{opts: opts, logger: newLogger(opts)}
	file.data = data
	file.size = uint32(len(file.data))

	if err := file.parse(); err != nil {
		return nil, err
	}
	return file, nil
}

// Close releases the underlying memory mapping, if any.
func (pe *File) Close() error {
	if pe.data != nil {
		_ = pe.data.Unmap()
	}

	if pe.f != nil {
		return pe.f.Close()
	}
	return nil
}

// parse performs the file parsing for a PE binary: DOS header, NT headers
// and section table, in that order (each depends on the one before it).
func (pe *File) parse() error {
	if len(pe.data) < TinyPESize {
		return ErrInvalidPESize
	}

	if err := pe.ParseDOSHeader(); err != nil {
		return err
	}

	if err := pe.ParseNTHeader(); err != nil {
		return err
	}

	return pe.ParseSectionHeader()
}

// CertificateTable returns the RVA (really a file offset, per the PE spec's
// one exception for this directory entry) and size of the certificate data
// directory entry — the WIN_CERTIFICATE table Authenticode digesting must
// exclude from the hash. ok is false when the image declares no such entry.
func (pe *File) CertificateTable() (offset, size uint32, ok bool) {
	var dir DataDirectory
	switch pe.Is64 {
	case true:
		oh, valid := pe.OptionalHeader64()
		if !valid {
			return 0, 0, false
		}
		dir = oh.DataDirectory[ImageDirectoryEntryCertificate]
	case false:
		oh, valid := pe.OptionalHeader32()
		if !valid {
			return 0, 0, false
		}
		dir = oh.DataDirectory[ImageDirectoryEntryCertificate]
	}

	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return 0, 0, false
	}
	return dir.VirtualAddress, dir.Size, true
}

// CheckSumOffset returns the file offset of the optional header's CheckSum
// field — one of the two ranges Authenticode digesting must skip.
func (pe *File) CheckSumOffset() uint32 {
	// CheckSum sits at a fixed offset within both optional header layouts,
	// right after Magic/MajorLinkerVersion/.../SizeOfImage/SizeOfHeaders.
	optionalHeaderOffset := pe.DOSHeader.AddressOfNewEXEHeader + 4 +
		uint32(binary.Size(pe.NtHeader.FileHeader))
	return optionalHeaderOffset + 64
}

// Size returns the total size in bytes of the mapped or loaded image.
func (pe *File) Size() uint32 {
	return pe.size
}

// Data returns the raw bytes of the image. Callers must not retain slices
// across a Close on a memory-mapped File.
func (pe *File) Data() []byte {
	return pe.data
}
