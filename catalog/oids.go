// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package catalog builds Microsoft security catalogue (.cat) files: a
// PKCS#7 SignedData envelope wrapping a CTL (Certificate Trust List)
// describing one or more files by their Authenticode digests.
package catalog

import (
	"encoding/asn1"

	"go.mozilla.org/pkcs7"
)

// Microsoft's szOID_CTL and catalogue/SPC OID arc (§6), plus the PKCS#7
// content-type OID pkcs7 keeps unexported. The SHA-1/SHA-256
// digest-algorithm OIDs are reused directly from pkcs7 — the teacher's own
// security.go already imports them (pkcs7.OIDDigestAlgorithmSHA1/256) for
// the same dotted values.
var (
	oidCTL                = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 10, 1}
	oidCatalogList        = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 12, 1, 1}
	oidCatalogListMember  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 12, 1, 2}
	oidCatalogListMember2 = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 12, 1, 3}

	oidCatNameValue   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 12, 2, 1}
	oidCatMemberInfo  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 12, 2, 2}
	oidCatMemberInfo2 = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 12, 2, 3}

	oidSpcIndirectData = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	oidSpcPeImageData  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}
	oidSpcCabData      = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 25}

	oidPageHashesV1 = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 3, 1}
	oidPageHashesV2 = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 3, 2}

	oidOIWSecSHA1 = pkcs7.OIDDigestAlgorithmSHA1
	oidNISTSHA256 = pkcs7.OIDDigestAlgorithmSHA256
	oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
)

// pageHashesGUID is the classId of the SpcSerializedObject moniker linking
// a page-hashes attribute, stored raw as a 16-byte OCTET STRING (§6).
var pageHashesGUID = []byte{
	0xa6, 0xb5, 0x86, 0xd5, 0xb4, 0xa1, 0x24, 0x66,
	0xae, 0x05, 0xa2, 0x17, 0xda, 0x8e, 0x60, 0xd6,
}

// v1MemberInfoGUIDPe is CatMemberInfo.guid for a PE entry in a version-1
// catalogue.
const v1MemberInfoGUIDPe = "{C689AAB8-8E78-11D0-8C47-00C04FC295EE}"

// v1MemberInfoGUIDFlat is CatMemberInfo.guid for a non-PE entry in a
// version-1 catalogue.
const v1MemberInfoGUIDFlat = "{DE351A42-8E59-11D0-8C47-00C04FC295EE}"
