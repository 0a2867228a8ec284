// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// sectionSpec describes one section to embed in a synthetic PE image built
// by newMinimalPE. The image requires only a handful of header bytes to
// exercise every code path in this package, so tests build small synthetic
// images rather than carrying large real-world binaries as fixtures.
type sectionSpec struct {
	name             string
	pointerToRawData uint32
	sizeOfRawData    uint32
	virtualAddress   uint32
	virtualSize      uint32
	data             []byte
}

// newMinimalPE assembles a well-formed PE32 (or PE32+, when is64 is set)
// image: a 64-byte DOS header immediately followed by the NT headers and a
// section table, with each section's raw data appended in file-offset
// order. It returns the complete byte buffer.
func newMinimalPE(t *testing.T, is64 bool, sections []sectionSpec) []byte {
	t.Helper()

	dos := ImageDOSHeader{
		Magic:                 ImageDOSSignature,
		AddressOfNewEXEHeader: TinyPESize, // arbitrary, overwritten below
	}
	dosSize := uint32(binary.Size(dos))

	fh := ImageFileHeader{
		Machine:          ImageFileHeaderMachineType(0x014c),
		NumberOfSections: uint16(len(sections)),
	}
	fileHeaderSize := uint32(binary.Size(fh))

	var optionalHeaderSize uint32
	if is64 {
		optionalHeaderSize = uint32(binary.Size(ImageOptionalHeader64{}))
	} else {
		optionalHeaderSize = uint32(binary.Size(ImageOptionalHeader32{}))
	}
	fh.SizeOfOptionalHeader = uint16(optionalHeaderSize)
	fh.Characteristics = ImageFileHeaderCharacteristicsType(0x0102) // EXECUTABLE_IMAGE | 32BIT_MACHINE

	ntOffset := dosSize
	dos.AddressOfNewEXEHeader = ntOffset

	secHeaderSize := uint32(binary.Size(ImageSectionHeader{}))
	sectionTableOffset := ntOffset + 4 + fileHeaderSize + optionalHeaderSize
	headersEnd := sectionTableOffset + secHeaderSize*uint32(len(sections))

	buf := new(bytes.Buffer)
	must := func(err error) {
		if err != nil {
			t.Fatalf("building fixture PE: %v", err)
		}
	}

	must(binary.Write(buf, binary.LittleEndian, dos))

	must(binary.Write(buf, binary.LittleEndian, uint32(ImageNTSignature)))
	must(binary.Write(buf, binary.LittleEndian, fh))

	if is64 {
		oh := ImageOptionalHeader64{
			Magic:               ImageNtOptionalHeader64Magic,
			ImageBase:           0x140000000,
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			SizeOfImage:         0x10000,
			SizeOfHeaders:       headersEnd,
			Subsystem:           ImageOptionalHeaderSubsystemType(3),
			NumberOfRvaAndSizes: ImageNumberOfDirectoryEntries,
		}
		must(binary.Write(buf, binary.LittleEndian, oh))
	} else {
		oh := ImageOptionalHeader32{
			Magic:               ImageNtOptionalHeader32Magic,
			ImageBase:           0x00400000,
			SectionAlignment:    0x1000,
			FileAlignment:       0x200,
			SizeOfImage:         0x10000,
			SizeOfHeaders:       headersEnd,
			Subsystem:           ImageOptionalHeaderSubsystemType(3),
			NumberOfRvaAndSizes: ImageNumberOfDirectoryEntries,
		}
		must(binary.Write(buf, binary.LittleEndian, oh))
	}

	for _, s := range sections {
		var name [8]byte
		copy(name[:], s.name)
		must(binary.Write(buf, binary.LittleEndian, ImageSectionHeader{
			Name:             name,
			VirtualSize:      s.virtualSize,
			VirtualAddress:   s.virtualAddress,
			SizeOfRawData:    s.sizeOfRawData,
			PointerToRawData: s.pointerToRawData,
			Characteristics:  0x40000040, // INITIALIZED_DATA | READABLE
		}))
	}

	// Size the final image to fit every section's raw data range, then lay
	// each section's bytes down at its own PointerToRawData regardless of
	// the order sections were declared in — Authenticode digesting must
	// tolerate (and defensively re-sort for) a section table that isn't
	// already in PointerToRawData order.
	fileSize := uint32(buf.Len())
	for _, s := range sections {
		if end := s.pointerToRawData + s.sizeOfRawData; end > fileSize {
			fileSize = end
		}
	}

	image := make([]byte, fileSize)
	copy(image, buf.Bytes())
	for _, s := range sections {
		copy(image[s.pointerToRawData:], s.data)
	}

	return image
}
