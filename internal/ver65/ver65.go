// Package ver65 translates the version 65 onboard file naming convention
// to the version 66 names the rest of the system expects.
package ver65

import (
	"fmt"
	"log/slog"
	"strconv"
)

// ToVer66Filename translates a version 65 transmitted filename
// (e.g. "Y0000143.L00") to its version 66 equivalent ("sg0143lz.x00").
// It returns "" when the name is not a recognized version 65 file.
func ToVer66Filename(name string) string {
	if len(name) < 10 {
		return ""
	}

	var compressChar byte
	switch name[0] {
	case 'Y', 'Z':
		compressChar = 'z'
	case 'A':
		compressChar = 'u'
	default:
		return ""
	}

	var typeChar byte
	switch name[9] {
	case 'L':
		typeChar = 'l'
	case 'D':
		typeChar = 'd'
	case 'K':
		typeChar = 'k'
	case 'T':
		if name[0] == 'Y' || name[0] == 'X' {
			compressChar = 'g'
		} else {
			compressChar = 't'
		}
		// No way to tell what a T file really holds; k is as good as any.
		typeChar = 'k'
	default:
		slog.Error("unknown version 65 file type", "filename", name)
		return ""
	}

	diveNum, err := strconv.Atoi(name[4:8])
	if err != nil {
		slog.Error("unparseable dive number in version 65 filename", "filename", name)
		return ""
	}

	if len(name) >= 12 {
		if counterNum, err := strconv.Atoi(name[10:12]); err == nil {
			return fmt.Sprintf("sg%04d%c%c.x%02d", diveNum, typeChar, compressChar, counterNum)
		}
	}
	return fmt.Sprintf("sg%04d%c%c.x00", diveNum, typeChar, compressChar)
}
