// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package authenticode

import (
	"errors"

	"github.com/maharmstone/nyan/pe"
)

// ErrSectionOutOfBounds mirrors pe.ErrSectionOutOfBounds: a section's raw
// data range runs past the end of the file. ParseSectionHeader already
// rejects this at open time, so this only fires if a caller hands in a
// pe.File whose Sections slice was mutated after parsing.
var ErrSectionOutOfBounds = pe.ErrSectionOutOfBounds

// ErrCertSizeExceedsFile is returned when the certificate directory's
// declared Size is larger than the trailing bytes left after the headers
// and all non-empty sections have been hashed.
var ErrCertSizeExceedsFile = errors.New("authenticode: certificate size exceeds remaining file length")

// Digest computes the Authenticode digest of file under alg, following
// §4.1 exactly: CheckSum and the certificate data-directory entry are
// excluded from the hash, as is the certificate blob itself (if any)
// trailing the image.
func Digest(file *pe.File, alg Algorithm) ([]byte, error) {
	sink, err := newHashSink(alg)
	if err != nil {
		return nil, err
	}

	layout, err := file.Layout()
	if err != nil {
		return nil, err
	}

	data := file.Data()

	// Steps 2-3: everything up to CheckSum, then CheckSum's 4 bytes are
	// skipped and hashing resumes at Subsystem.
	checkSumOffset := file.CheckSumOffset()
	sink.write(data[:checkSumOffset])
	sink.write(data[layout.SubsystemOffset:layout.DataDirectoryOffset])

	// Step 4: data-directory entries strictly before the Certificate
	// entry (index 4), or fewer if NumberOfRvaAndSizes < 5.
	certIndex := uint32(pe.ImageDirectoryEntryCertificate)
	numDirs := layout.NumberOfRvaAndSizes
	dirsBeforeCert := numDirs
	if dirsBeforeCert > certIndex {
		dirsBeforeCert = certIndex
	}

	const dataDirectorySize = 8
	sink.write(data[layout.DataDirectoryOffset : layout.DataDirectoryOffset+dirsBeforeCert*dataDirectorySize])

	// Step 5: skip the Certificate entry (8 bytes) and record cert_size.
	var certSize uint32
	var afterCertOffset uint32
	if numDirs > certIndex {
		certSize = layout.DataDirectory[certIndex].Size
		afterCertOffset = layout.DataDirectoryOffset + (certIndex+1)*dataDirectorySize
	} else {
		afterCertOffset = layout.DataDirectoryOffset + numDirs*dataDirectorySize
	}

	// Step 6: hash from just past the Certificate entry through
	// SizeOfHeaders.
	if layout.SizeOfHeaders < afterCertOffset || uint32(len(data)) < layout.SizeOfHeaders {
		return nil, pe.ErrOutsideBoundary
	}
	sink.write(data[afterCertOffset:layout.SizeOfHeaders])
	bytesHashed := layout.SizeOfHeaders

	// Step 7: sections defensively sorted by PointerToRawData, each
	// non-empty section's raw range hashed in full.
	for _, s := range file.SortedSections() {
		if s.Header.SizeOfRawData == 0 {
			continue
		}
		if s.Header.PointerToRawData+s.Header.SizeOfRawData > file.Size() {
			return nil, ErrSectionOutOfBounds
		}
		sink.write(data[s.Header.PointerToRawData : s.Header.PointerToRawData+s.Header.SizeOfRawData])
		bytesHashed += s.Header.SizeOfRawData
	}

	// Step 8: trailing bytes beyond bytesHashed, excluding the embedded
	// certificate blob.
	if uint32(len(data)) > bytesHashed {
		remaining := uint32(len(data)) - bytesHashed
		if certSize > remaining {
			return nil, ErrCertSizeExceedsFile
		}
		sink.write(data[bytesHashed : bytesHashed+remaining-certSize])
	}

	return sink.sum(), nil
}
