package vm

import "testing"

func buildMetadataTail(ipfs [34]byte, solc [3]byte) []byte {
	tail := []byte{cborMapHeaderTwo}
	tail = append(tail, 0x64) // text string, length 4
	tail = append(tail, metadataIPFSKey...)
	tail = append(tail, cborByteString34, 0x22)
	tail = append(tail, ipfs[:]...)
	tail = append(tail, 0x64)
	tail = append(tail, metadataSolcKey...)
	tail = append(tail, solc[:]...)
	length := len(tail)
	tail = append(tail, byte(length>>8), byte(length))
	return tail
}

func TestStripMetadataWellFormed(t *testing.T) {
	var ipfs [34]byte
	for i := range ipfs {
		ipfs[i] = byte(i)
	}
	solc := [3]byte{0, 8, 21}
	tail := buildMetadataTail(ipfs, solc)
	runtime := []byte{byte(STOP)}
	code := append(append([]byte{}, runtime...), tail...)

	got, desc, ok := stripMetadata(code)
	if !ok {
		t.Fatalf("expected metadata to be recognized")
	}
	if len(got) != len(runtime) {
		t.Fatalf("runtime length = %d, want %d", len(got), len(runtime))
	}
	if desc.IPFSHash != ipfs {
		t.Fatalf("ipfs hash mismatch")
	}
	if desc.SolcVersion != solc {
		t.Fatalf("solc version mismatch: got %v", desc.SolcVersion)
	}
	if desc.TotalLength != len(tail) {
		t.Fatalf("total length = %d, want %d", desc.TotalLength, len(tail))
	}
}

func TestStripMetadataAbsent(t *testing.T) {
	code := []byte{byte(PUSH1), 0x01, byte(STOP)}
	got, _, ok := stripMetadata(code)
	if ok {
		t.Fatalf("expected no metadata detected in plain code")
	}
	if string(got) != string(code) {
		t.Fatalf("code should be returned unchanged when no metadata is found")
	}
}

func TestStripMetadataTooShort(t *testing.T) {
	got, _, ok := stripMetadata([]byte{0x00})
	if ok {
		t.Fatalf("expected ok=false for code shorter than the length suffix")
	}
	if len(got) != 1 {
		t.Fatalf("expected unchanged code back")
	}
}

func TestStripMetadataDeclaredLengthExceedsCode(t *testing.T) {
	code := []byte{0x00, 0x00, 0xff, 0xff} // length 65535, far larger than code
	_, _, ok := stripMetadata(code)
	if ok {
		t.Fatalf("expected ok=false when declared length exceeds code size")
	}
}

func TestStripMetadataTruncatedHash(t *testing.T) {
	tail := []byte{cborMapHeaderTwo, 0x64}
	tail = append(tail, metadataIPFSKey...)
	tail = append(tail, cborByteString34, 0x22)
	tail = append(tail, make([]byte, 10)...) // far short of 34 bytes
	length := len(tail)
	tail = append(tail, byte(length>>8), byte(length))

	_, _, ok := stripMetadata(tail)
	if ok {
		t.Fatalf("expected ok=false for a truncated ipfs hash")
	}
}
