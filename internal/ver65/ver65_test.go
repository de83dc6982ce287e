package ver65

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToVer66Filename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"log file", "Y0000143.L00", "sg0143lz.x00"},
		{"data file", "Y0000143.D01", "sg0143dz.x01"},
		{"capture file", "Z0000143.K00", "sg0143kz.x00"},
		{"ascii upload", "A0000143.L00", "sg0143lu.x00"},
		{"tar from glider", "Y0000143.T00", "sg0143kg.x00"},
		{"tar uncompressed", "A0000143.T00", "sg0143kt.x00"},
		{"no counter suffix", "Y0000143.L", "sg0143lz.x00"},
		{"unknown leading char", "X0000143.L00", ""},
		{"unknown type char", "Y0000143.Q00", ""},
		{"too short", "Y0143", ""},
		{"bad dive digits", "Y000x143.L00", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToVer66Filename(tt.in))
		})
	}
}
