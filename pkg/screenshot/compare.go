package screenshot

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// dimensions reads the pixel size from the encoded header only.
func dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("reading image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func decodeNRGBA(data []byte) (*image.NRGBA, bool, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decoding image: %w", err)
	}

	opaque := false
	if o, ok := img.(interface{ Opaque() bool }); ok {
		opaque = o.Opaque()
	}

	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n, opaque, nil
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out, opaque, nil
}

// difference returns the mean absolute per-channel difference of a and b,
// normalised to [0,1]. Alpha takes part only when either image has
// transparency. Images of different sizes score 1 without being decoded.
func difference(a, b []byte) (float64, error) {
	aw, ah, err := dimensions(a)
	if err != nil {
		return 0, err
	}
	bw, bh, err := dimensions(b)
	if err != nil {
		return 0, err
	}
	if aw != bw || ah != bh {
		return 1, nil
	}
	if aw == 0 || ah == 0 {
		return 0, nil
	}

	imgA, opaqueA, err := decodeNRGBA(a)
	if err != nil {
		return 0, err
	}
	imgB, opaqueB, err := decodeNRGBA(b)
	if err != nil {
		return 0, err
	}

	channels := 4
	if opaqueA && opaqueB {
		channels = 3
	}

	var total uint64
	for y := 0; y < ah; y++ {
		rowA := imgA.Pix[y*imgA.Stride : y*imgA.Stride+aw*4]
		rowB := imgB.Pix[y*imgB.Stride : y*imgB.Stride+aw*4]
		for i := 0; i < len(rowA); i += 4 {
			for c := 0; c < channels; c++ {
				total += uint64(absDiff(rowA[i+c], rowB[i+c]))
			}
		}
	}

	count := uint64(aw) * uint64(ah) * uint64(channels)
	return float64(total) / float64(255*count), nil
}

// differenceImage renders |a-b| per colour channel as an opaque image.
func differenceImage(a, b []byte) (image.Image, error) {
	aw, ah, err := dimensions(a)
	if err != nil {
		return nil, err
	}
	bw, bh, err := dimensions(b)
	if err != nil {
		return nil, err
	}
	if aw != bw || ah != bh {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, aw, ah, bw, bh)
	}

	imgA, _, err := decodeNRGBA(a)
	if err != nil {
		return nil, err
	}
	imgB, _, err := decodeNRGBA(b)
	if err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, aw, ah))
	for y := 0; y < ah; y++ {
		for x := 0; x < aw; x++ {
			i := imgA.PixOffset(x, y)
			j := imgB.PixOffset(x, y)
			k := out.PixOffset(x, y)
			out.Pix[k] = absDiff(imgA.Pix[i], imgB.Pix[j])
			out.Pix[k+1] = absDiff(imgA.Pix[i+1], imgB.Pix[j+1])
			out.Pix[k+2] = absDiff(imgA.Pix[i+2], imgB.Pix[j+2])
			out.Pix[k+3] = 0xff
		}
	}
	return out, nil
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
