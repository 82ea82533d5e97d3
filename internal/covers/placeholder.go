package covers

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image/jpeg"
	"strconv"
	"sync"

	"github.com/fogleman/gg"
)

// PlaceholderSize is the default edge length of generated placeholders
const PlaceholderSize = 300

// labelColors are the record label colours a placeholder can get
var labelColors = []string{
	"#c0392b", "#d35400", "#f1c40f", "#27ae60",
	"#16a085", "#2980b9", "#8e44ad", "#7f8c8d",
}

type placeholderKey struct {
	size  int
	color int
}

var placeholders sync.Map // placeholderKey -> []byte

// labelColor picks the label colour of a release
func labelColor(releaseID int64) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(releaseID, 10)))
	return int(h.Sum32() % uint32(len(labelColors)))
}

// Placeholder returns a JPEG of a plain vinyl record, shown in place of
// missing artwork. The same release always gets the same label colour.
func Placeholder(releaseID int64, size int) ([]byte, error) {
	if size <= 0 {
		size = PlaceholderSize
	}
	key := placeholderKey{size: size, color: labelColor(releaseID)}
	if data, ok := placeholders.Load(key); ok {
		return data.([]byte), nil
	}

	data, err := drawRecord(size, labelColors[key.color])
	if err != nil {
		return nil, err
	}
	placeholders.Store(key, data)
	return data, nil
}

func drawRecord(size int, label string) ([]byte, error) {
	s := float64(size)
	c := s / 2

	dc := gg.NewContext(size, size)
	dc.SetHexColor("#1e1e1e")
	dc.Clear()

	// Disc
	dc.DrawCircle(c, c, s*0.46)
	dc.SetRGB(0.05, 0.05, 0.05)
	dc.Fill()

	// Grooves
	dc.SetLineWidth(max(1, s/300))
	dc.SetRGBA(1, 1, 1, 0.08)
	for r := s * 0.2; r < s*0.44; r += s * 0.025 {
		dc.DrawCircle(c, c, r)
		dc.Stroke()
	}

	// Label
	dc.DrawCircle(c, c, s*0.16)
	dc.SetHexColor(label)
	dc.Fill()

	// Spindle hole
	dc.DrawCircle(c, c, max(2, s*0.015))
	dc.SetHexColor("#1e1e1e")
	dc.Fill()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: DefaultJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
