// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "testing"

func TestReadUintN(t *testing.T) {
	data := newMinimalPE(t, false, []sectionSpec{
		{name: ".text", pointerToRawData: 0x200, sizeOfRawData: 4, data: []byte{0xef, 0xbe, 0xad, 0xde}},
	})

	file, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed, reason: %v", err)
	}
	defer file.Close()

	if b, err := file.ReadUint8(0x200); err != nil || b != 0xef {
		t.Errorf("ReadUint8 got (%#x, %v), want (0xef, nil)", b, err)
	}
	if v, err := file.ReadUint16(0x200); err != nil || v != 0xbeef {
		t.Errorf("ReadUint16 got (%#x, %v), want (0xbeef, nil)", v, err)
	}
	if v, err := file.ReadUint32(0x200); err != nil || v != 0xdeadbeef {
		t.Errorf("ReadUint32 got (%#x, %v), want (0xdeadbeef, nil)", v, err)
	}

	if _, err := file.ReadUint32(file.Size() - 1); err != ErrOutsideBoundary {
		t.Errorf("ReadUint32 near EOF got %v, want %v", err, ErrOutsideBoundary)
	}
}

func TestReadBytesAtOffsetBounds(t *testing.T) {
	data := newMinimalPE(t, false, nil)

	file, err := OpenBytes(data, nil)
	if err != nil {
		t.Fatalf("OpenBytes failed, reason: %v", err)
	}
	defer file.Close()

	if _, err := file.ReadBytesAtOffset(file.Size(), 1); err != ErrOutsideBoundary {
		t.Errorf("got %v, want %v", err, ErrOutsideBoundary)
	}
	if _, err := file.ReadBytesAtOffset(0, file.Size()); err != nil {
		t.Errorf("reading the whole image failed: %v", err)
	}
}
