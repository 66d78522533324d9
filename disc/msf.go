package disc

import (
	"fmt"
	"strconv"
	"strings"
)

// MSF is a Redbook timecode in minutes, seconds and frames (1/75th second).
type MSF struct {
	Minute uint8
	Second uint8
	Frame  uint8
}

// MSFFromSector converts a sector count into a timecode. No pregap
// offset is applied; add PregapSectors for absolute disc time.
func MSFFromSector(sector uint64) MSF {
	frames := sector % SectorsPerSecond
	seconds := sector / SectorsPerSecond
	return MSF{
		Minute: uint8(min(seconds/60, 255)),
		Second: uint8(seconds % 60),
		Frame:  uint8(frames),
	}
}

// Sector converts the timecode back into a sector count.
func (m MSF) Sector() uint64 {
	return (uint64(m.Minute)*60+uint64(m.Second))*SectorsPerSecond + uint64(m.Frame)
}

func (m MSF) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", m.Minute, m.Second, m.Frame)
}

// ParseMSF parses a "mm:ss:ff" or "mm:ss" timecode.
func ParseMSF(s string) (MSF, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return MSF{}, fmt.Errorf("disc: invalid timecode %q", s)
	}
	limits := []int{255, 59, SectorsPerSecond - 1}
	var v [3]uint8
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return MSF{}, fmt.Errorf("disc: invalid timecode %q", s)
		}
		v[i] = uint8(n)
	}
	return MSF{Minute: v[0], Second: v[1], Frame: v[2]}, nil
}
