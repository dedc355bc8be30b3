package utils

import "testing"

func TestHex4(t *testing.T) {
	for _, tc := range []struct {
		in   uint16
		want string
	}{
		{0x004C, "004C"},
		{0xFFFF, "FFFF"},
		{0, "0000"},
		{0xA1B2, "A1B2"},
	} {
		if got := Hex4(tc.in); got != tc.want {
			t.Errorf("Hex4(%#x) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestBytesToHex(t *testing.T) {
	if got := BytesToHex([]byte{0x02, 0x15, 0xAB}); got != "0215AB" {
		t.Errorf("BytesToHex = %q; want 0215AB", got)
	}
	if got := BytesToHex(nil); got != "" {
		t.Errorf("BytesToHex(nil) = %q; want empty", got)
	}
}

func TestPrintableID(t *testing.T) {
	t.Run("ascii identifier", func(t *testing.T) {
		var id [16]byte
		copy(id[:], "MANU-EPSG-GTI-3A")
		if got := PrintableID(id); got != "MANU-EPSG-GTI-3A" {
			t.Errorf("PrintableID = %q; want MANU-EPSG-GTI-3A", got)
		}
	})

	t.Run("binary identifier", func(t *testing.T) {
		var id [16]byte
		id[0] = 0xE2
		want := "E2000000000000000000000000000000"
		if got := PrintableID(id); got != want {
			t.Errorf("PrintableID = %q; want %q", got, want)
		}
	})
}
