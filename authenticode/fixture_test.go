// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package authenticode_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/maharmstone/nyan/pe"
)

// fixtureSection describes one section to embed in a synthetic PE image
// built by buildPE.
type fixtureSection struct {
	name             string
	pointerToRawData uint32
	sizeOfRawData    uint32
	data             []byte
}

// buildPE assembles a minimal well-formed PE32 image with a certificate
// data directory entry (so Authenticode digesting exercises the skip) and
// the given sections, laid out at their own PointerToRawData regardless of
// declaration order. sectionAlignment lets tests control page-hash chunking
// (§8 seed scenario S3 wants 0x1000).
func buildPE(t *testing.T, sectionAlignment uint32, certOffset, certSize uint32, sections []fixtureSection) []byte {
	t.Helper()

	dos := pe.ImageDOSHeader{Magic: pe.ImageDOSSignature}
	dosSize := uint32(binary.Size(dos))

	fh := pe.ImageFileHeader{
		Machine:          pe.ImageFileHeaderMachineType(0x014c),
		NumberOfSections: uint16(len(sections)),
	}
	fileHeaderSize := uint32(binary.Size(fh))
	optionalHeaderSize := uint32(binary.Size(pe.ImageOptionalHeader32{}))
	fh.SizeOfOptionalHeader = uint16(optionalHeaderSize)
	fh.Characteristics = pe.ImageFileHeaderCharacteristicsType(0x0102)

	ntOffset := dosSize
	dos.AddressOfNewEXEHeader = ntOffset

	secHeaderSize := uint32(binary.Size(pe.ImageSectionHeader{}))
	sectionTableOffset := ntOffset + 4 + fileHeaderSize + optionalHeaderSize
	headersEnd := sectionTableOffset + secHeaderSize*uint32(len(sections))

	oh := pe.ImageOptionalHeader32{
		Magic:               pe.ImageNtOptionalHeader32Magic,
		ImageBase:           0x00400000,
		SectionAlignment:    sectionAlignment,
		FileAlignment:       0x200,
		SizeOfImage:         0x10000,
		SizeOfHeaders:       headersEnd,
		Subsystem:           pe.ImageOptionalHeaderSubsystemType(3),
		NumberOfRvaAndSizes: pe.ImageNumberOfDirectoryEntries,
	}
	if certSize > 0 {
		oh.DataDirectory[pe.ImageDirectoryEntryCertificate] = pe.DataDirectory{
			VirtualAddress: certOffset, Size: certSize,
		}
	}

	buf := new(bytes.Buffer)
	must := func(err error) {
		if err != nil {
			t.Fatalf("building fixture PE: %v", err)
		}
	}

	must(binary.Write(buf, binary.LittleEndian, dos))
	must(binary.Write(buf, binary.LittleEndian, uint32(pe.ImageNTSignature)))
	must(binary.Write(buf, binary.LittleEndian, fh))
	must(binary.Write(buf, binary.LittleEndian, oh))

	for _, s := range sections {
		var name [8]byte
		copy(name[:], s.name)
		must(binary.Write(buf, binary.LittleEndian, pe.ImageSectionHeader{
			Name:             name,
			VirtualSize:      s.sizeOfRawData,
			VirtualAddress:   s.pointerToRawData,
			SizeOfRawData:    s.sizeOfRawData,
			PointerToRawData: s.pointerToRawData,
			Characteristics:  0x40000040,
		}))
	}

	fileSize := uint32(buf.Len())
	for _, s := range sections {
		if end := s.pointerToRawData + s.sizeOfRawData; end > fileSize {
			fileSize = end
		}
	}
	if certOffset+certSize > fileSize {
		fileSize = certOffset + certSize
	}

	image := make([]byte, fileSize)
	copy(image, buf.Bytes())
	for _, s := range sections {
		copy(image[s.pointerToRawData:], s.data)
	}

	return image
}
