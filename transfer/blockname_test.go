package transfer

import "testing"

func TestBlockFileName(t *testing.T) {
	if got := BlockFileName("_0.cfs", 3); got != "_0.cfs_block_3" {
		t.Errorf("got %q", got)
	}
}

func TestParseBlockFileName(t *testing.T) {
	name, idx, ok := ParseBlockFileName("_0.cfs_block_12")
	if !ok || name != "_0.cfs" || idx != 12 {
		t.Errorf("got %q/%d/%v", name, idx, ok)
	}

	// A file whose own name contains the infix still parses by the last
	// occurrence.
	name, idx, ok = ParseBlockFileName("a_block_1_block_2")
	if !ok || name != "a_block_1" || idx != 2 {
		t.Errorf("got %q/%d/%v", name, idx, ok)
	}

	for _, bad := range []string{"_0.cfs", "_0.cfs_block_", "_0.cfs_block_x", "_0.cfs_block_-1"} {
		if _, _, ok := ParseBlockFileName(bad); ok {
			t.Errorf("%q parsed unexpectedly", bad)
		}
	}
}

func TestIsBlockFile(t *testing.T) {
	if !IsBlockFile("seg_block_0") {
		t.Error("want true")
	}
	if IsBlockFile("seg") {
		t.Error("want false")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 16) // compressible
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		encoded, err := encodeBlock(data, c)
		if err != nil {
			t.Fatalf("compression %d: %v", c, err)
		}
		decoded, err := decodeBlock(encoded, c)
		if err != nil {
			t.Fatalf("compression %d: %v", c, err)
		}
		if string(decoded) != string(data) {
			t.Errorf("compression %d: round trip mismatch", c)
		}
	}
}
