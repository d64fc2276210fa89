package vm

import "encoding/binary"

// MetadataDescriptor records a trailing Solidity CBOR metadata block that
// was detected and stripped from full_code before analysis.
type MetadataDescriptor struct {
	IPFSHash    [34]byte // multihash-encoded IPFS digest of the source metadata
	SolcVersion [3]byte  // compiler version, one byte per component
	TotalLength int      // length of the tail including the 2-byte length suffix
}

const (
	metadataMinTailLen = 43 // smallest declared length L accepted, excluding the 2-byte suffix; the full two-key shape parsed below is 50 bytes
	cborMapHeaderTwo   = 0xA2
	cborByteString34   = 0x58
)

var (
	metadataIPFSKey = []byte("ipfs")
	metadataSolcKey = []byte("solc")
)

// stripMetadata inspects the final two bytes of code as a big-endian
// length L and, if the preceding bytes form a well-formed Solidity CBOR
// metadata tail, returns the runtime code with the tail removed along with
// the decoded descriptor. On any malformation it returns the full code
// unchanged and ok=false: metadata stripping never rejects otherwise-valid
// bytecode, it only opportunistically shrinks the analyzed region.
func stripMetadata(code []byte) (runtime []byte, desc MetadataDescriptor, ok bool) {
	if len(code) < 2 {
		return code, MetadataDescriptor{}, false
	}
	n := len(code)
	length := int(binary.BigEndian.Uint16(code[n-2:]))
	if length < metadataMinTailLen || length > n {
		return code, MetadataDescriptor{}, false
	}
	start := n - 2 - length
	if start < 0 {
		return code, MetadataDescriptor{}, false
	}
	tail := code[start : n-2]

	cursor := 0
	if cursor >= len(tail) || tail[cursor] != cborMapHeaderTwo {
		return code, MetadataDescriptor{}, false
	}
	cursor++

	cursor, ok = matchCBORTextKey(tail, cursor, metadataIPFSKey)
	if !ok {
		return code, MetadataDescriptor{}, false
	}
	if cursor+2 > len(tail) || tail[cursor] != cborByteString34 || tail[cursor+1] != 0x22 {
		return code, MetadataDescriptor{}, false
	}
	cursor += 2
	if cursor+34 > len(tail) {
		return code, MetadataDescriptor{}, false
	}
	var ipfsHash [34]byte
	copy(ipfsHash[:], tail[cursor:cursor+34])
	cursor += 34

	cursor, ok = matchCBORTextKey(tail, cursor, metadataSolcKey)
	if !ok {
		return code, MetadataDescriptor{}, false
	}
	if cursor+3 > len(tail) {
		return code, MetadataDescriptor{}, false
	}
	var solcVersion [3]byte
	copy(solcVersion[:], tail[cursor:cursor+3])
	cursor += 3

	if cursor != len(tail) {
		// Extra bytes inside the declared length: not the fixed two-key shape
		// we recognize, so leave the code untouched rather than guess.
		return code, MetadataDescriptor{}, false
	}

	return code[:start], MetadataDescriptor{
		IPFSHash:    ipfsHash,
		SolcVersion: solcVersion,
		TotalLength: length + 2,
	}, true
}

// matchCBORTextKey expects a CBOR definite-length text string equal to key
// at tail[cursor:] and returns the cursor positioned just past it.
func matchCBORTextKey(tail []byte, cursor int, key []byte) (int, bool) {
	if cursor >= len(tail) {
		return cursor, false
	}
	header := tail[cursor]
	// Major type 3 (text string), length encoded in the low 5 bits for
	// short strings — every key this package recognizes is under 24 bytes.
	if header&0xE0 != 0x60 {
		return cursor, false
	}
	strLen := int(header & 0x1F)
	if strLen != len(key) {
		return cursor, false
	}
	cursor++
	if cursor+strLen > len(tail) {
		return cursor, false
	}
	for i := 0; i < strLen; i++ {
		if tail[cursor+i] != key[i] {
			return cursor, false
		}
	}
	return cursor + strLen, true
}
