// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package authenticode

import (
	"errors"

	"github.com/maharmstone/nyan/pe"
)

// ErrNoSections is returned when page-hash enumeration is attempted on an
// image with no sections — there is nothing to terminate the sequence
// against (§4.2 step 3 needs a last section to anchor the terminator).
var ErrNoSections = errors.New("authenticode: image has no sections to page-hash")

// PageHash is one (file_offset, digest) entry of a page-hash sequence: the
// synthetic "first hash" header entry, one entry per page-aligned section
// chunk, or the trailing all-zero terminator.
type PageHash struct {
	Offset uint32
	Digest []byte
}

// PageHashes computes the page-hash sequence for file under alg, per §4.2.
// Sections are walked in their on-disk table order — the original source
// this is grounded on indexes the section table directly rather than
// sorting it, unlike the Authenticode digest's §4.1 step 7.
func PageHashes(file *pe.File, alg Algorithm) ([]PageHash, error) {
	if len(file.Sections) == 0 {
		return nil, ErrNoSections
	}

	layout, err := file.Layout()
	if err != nil {
		return nil, err
	}

	firstHash, err := firstHash(file, layout, alg)
	if err != nil {
		return nil, err
	}

	ret := []PageHash{{Offset: 0, Digest: firstHash}}

	data := file.Data()
	pageSize := layout.SectionAlignment

	for _, s := range file.Sections {
		if s.Header.SizeOfRawData == 0 {
			continue
		}
		if s.Header.PointerToRawData+s.Header.SizeOfRawData > file.Size() {
			return nil, pe.ErrSectionOutOfBounds
		}

		for off := uint32(0); off < s.Header.SizeOfRawData; off += pageSize {
			sink, err := newHashSink(alg)
			if err != nil {
				return nil, err
			}

			start := s.Header.PointerToRawData + off
			if off+pageSize <= s.Header.SizeOfRawData {
				sink.write(data[start : start+pageSize])
			} else {
				remaining := s.Header.SizeOfRawData - off
				sink.write(data[start : start+remaining])
				sink.zeroPad(pageSize - remaining)
			}

			ret = append(ret, PageHash{Offset: start, Digest: sink.sum()})
		}
	}

	last := file.Sections[len(file.Sections)-1].Header
	ret = append(ret, PageHash{
		Offset: last.PointerToRawData + last.SizeOfRawData,
		Digest: make([]byte, alg.Size()),
	})

	return ret, nil
}

// firstHash hashes the PE headers region the way §4.2 step 1 requires:
// identical to the Authenticode digest's steps 2-4 and the non-trailing
// half of step 6 (bytes through SizeOfHeaders, skipping CheckSum and the
// whole Certificate directory entry), then zero-padded up to
// SectionAlignment if SizeOfHeaders falls short of it.
func firstHash(file *pe.File, layout pe.Layout, alg Algorithm) ([]byte, error) {
	sink, err := newHashSink(alg)
	if err != nil {
		return nil, err
	}

	data := file.Data()
	checkSumOffset := file.CheckSumOffset()
	sink.write(data[:checkSumOffset])
	sink.write(data[layout.SubsystemOffset:layout.DataDirectoryOffset])

	certIndex := uint32(pe.ImageDirectoryEntryCertificate)
	numDirs := layout.NumberOfRvaAndSizes
	dirsBeforeCert := numDirs
	if dirsBeforeCert > certIndex {
		dirsBeforeCert = certIndex
	}

	const dataDirectorySize = 8
	sink.write(data[layout.DataDirectoryOffset : layout.DataDirectoryOffset+dirsBeforeCert*dataDirectorySize])

	var afterCertOffset uint32
	if numDirs > certIndex {
		afterCertOffset = layout.DataDirectoryOffset + (certIndex+1)*dataDirectorySize
	} else {
		afterCertOffset = layout.DataDirectoryOffset + numDirs*dataDirectorySize
	}

	if layout.SizeOfHeaders < afterCertOffset || uint32(len(data)) < layout.SizeOfHeaders {
		return nil, pe.ErrOutsideBoundary
	}
	sink.write(data[afterCertOffset:layout.SizeOfHeaders])

	if layout.SizeOfHeaders < layout.SectionAlignment {
		sink.zeroPad(layout.SectionAlignment - layout.SizeOfHeaders)
	}

	return sink.sum(), nil
}
