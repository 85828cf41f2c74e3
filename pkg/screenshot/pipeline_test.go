package screenshot

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPage(t *testing.T, width, height int) (*browsertest.Driver, *browsertest.Page) {
	t.Helper()
	driver := browsertest.NewDriver()
	b, err := driver.Launch(browser.EngineChromium, browser.LaunchOptions{Headless: true})
	require.NoError(t, err)
	c, err := b.NewContext(browser.ContextOptions{Viewport: &browser.Viewport{Width: width, Height: height}})
	require.NoError(t, err)
	p, err := c.NewPage()
	require.NoError(t, err)
	return driver, p.(*browsertest.Page)
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestCapture_ViewportScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "screenshots")
	pipeline := New(dir)
	_, page := newPage(t, 800, 600)
	require.NoError(t, page.Goto("https://example.test", browser.NavigateOptions{}))

	path, err := pipeline.Capture(context.Background(), page, "s1", Options{Mode: ModeViewport})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "s1.png"), path)

	cached, ok := pipeline.Get("s1")
	require.True(t, ok)
	require.NotEmpty(t, cached.Data)
	assert.Equal(t, 800, cached.Width)
	assert.Equal(t, 600, cached.Height)
	assert.Equal(t, "image/png", cached.MIMEType())

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cached.Data, onDisk)

	_, err = png.DecodeConfig(bytes.NewReader(onDisk))
	assert.NoError(t, err)
}

func TestCapture_UnchangedPageComparesEqual(t *testing.T) {
	pipeline := New(t.TempDir())
	_, page := newPage(t, 320, 240)
	ctx := context.Background()

	_, err := pipeline.Capture(ctx, page, "s1", Options{})
	require.NoError(t, err)
	_, err = pipeline.Capture(ctx, page, "s2", Options{})
	require.NoError(t, err)

	diff, err := pipeline.Compare("s1", "s2")
	require.NoError(t, err)
	assert.Equal(t, 0.0, diff)

	self, err := pipeline.Compare("s1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, self)
}

func TestCapture_Modes(t *testing.T) {
	ctx := context.Background()

	t.Run("full page is taller than viewport", func(t *testing.T) {
		pipeline := New(t.TempDir())
		_, page := newPage(t, 400, 300)
		_, err := pipeline.Capture(ctx, page, "full", Options{Mode: ModeFull})
		require.NoError(t, err)
		img, _ := pipeline.Get("full")
		assert.Equal(t, 400, img.Width)
		assert.Equal(t, 600, img.Height)
	})

	t.Run("element without selector", func(t *testing.T) {
		pipeline := New(t.TempDir())
		_, page := newPage(t, 400, 300)
		_, err := pipeline.Capture(ctx, page, "el", Options{Mode: ModeElement})
		assert.ErrorIs(t, err, ErrSelectorRequired)
		_, ok := pipeline.Get("el")
		assert.False(t, ok)
	})

	t.Run("element selector matches nothing", func(t *testing.T) {
		pipeline := New(t.TempDir())
		_, page := newPage(t, 400, 300)
		_, err := pipeline.Capture(ctx, page, "el", Options{Mode: ModeElement, Selector: "#missing"})
		assert.ErrorIs(t, err, ErrElementNotFound)
	})

	t.Run("element", func(t *testing.T) {
		pipeline := New(t.TempDir())
		_, page := newPage(t, 400, 300)
		page.SetMatches("#hero", 2)
		_, err := pipeline.Capture(ctx, page, "el", Options{Mode: ModeElement, Selector: "#hero"})
		require.NoError(t, err)
		img, _ := pipeline.Get("el")
		assert.Equal(t, 100, img.Width)
		assert.Equal(t, 75, img.Height)
	})

	t.Run("unknown mode", func(t *testing.T) {
		pipeline := New(t.TempDir())
		_, page := newPage(t, 400, 300)
		_, err := pipeline.Capture(ctx, page, "x", Options{Mode: "panorama"})
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})
}

func TestCapture_JPEG(t *testing.T) {
	dir := t.TempDir()
	pipeline := New(dir)
	_, page := newPage(t, 200, 100)
	q := 50

	path, err := pipeline.Capture(context.Background(), page, "photo", Options{Format: FormatJPEG, Quality: &q})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "photo.jpeg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)

	img, _ := pipeline.Get("photo")
	assert.Equal(t, "image/jpeg", img.MIMEType())

	bad := 101
	_, err = pipeline.Capture(context.Background(), page, "photo", Options{Format: FormatJPEG, Quality: &bad})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestCapture_DriverErrorPropagates(t *testing.T) {
	pipeline := New(t.TempDir())
	_, page := newPage(t, 200, 100)
	cause := errors.New("Timeout 30000ms exceeded")
	page.ScreenshotErr = cause

	_, err := pipeline.Capture(context.Background(), page, "s1", Options{})
	assert.Equal(t, cause, err)
	assert.Empty(t, pipeline.Names())
}

func TestCapture_InvalidName(t *testing.T) {
	pipeline := New(t.TempDir())
	_, page := newPage(t, 200, 100)

	for _, name := range []string{"", "..", "../escape", `dir\file`} {
		_, err := pipeline.Capture(context.Background(), page, name, Options{})
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestCapture_Annotations(t *testing.T) {
	ctx := context.Background()
	pipeline := New(t.TempDir())
	_, page := newPage(t, 300, 200)

	_, err := pipeline.Capture(ctx, page, "plain", Options{})
	require.NoError(t, err)

	path, err := pipeline.Capture(ctx, page, "circled", Options{Annotations: []Annotation{
		{X: 150, Y: 100, Text: "here", Style: StyleCircle},
	}})
	require.NoError(t, err)

	img := decodeFile(t, path)
	assert.Equal(t, image.Rect(0, 0, 300, 200), img.Bounds(), "overlay keeps raster size")

	// On the ring, right of centre.
	r, g, b, _ := img.At(180, 100).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(100))
	assert.Less(t, b>>8, uint32(100))

	// Centre of the ring stays untouched.
	assert.Equal(t, color.NRGBAModel.Convert(color.White), color.NRGBAModel.Convert(img.At(150, 100)))

	diff, err := pipeline.Compare("plain", "circled")
	require.NoError(t, err)
	assert.Greater(t, diff, 0.0)
}

func TestCapture_AnnotationStyles(t *testing.T) {
	ctx := context.Background()
	pipeline := New(t.TempDir())
	_, page := newPage(t, 300, 200)

	_, err := pipeline.Capture(ctx, page, "plain", Options{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		ann     Annotation
		x, y    int
		changed bool
	}{
		{"box edge", Annotation{X: 150, Y: 100, Text: "b", Style: StyleBox, Color: "blue"}, 120, 100, true},
		{"arrow shaft", Annotation{X: 150, Y: 100, Text: "a", Style: StyleArrow, Color: "#00ff00"}, 125, 75, true},
		{"unknown style draws nothing", Annotation{X: 150, Y: 100, Text: "?", Style: "star"}, 150, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.Capture(ctx, page, "ann", Options{Annotations: []Annotation{tt.ann}})
			require.NoError(t, err)

			diff, err := pipeline.Compare("plain", "ann")
			require.NoError(t, err)
			if !tt.changed {
				assert.Equal(t, 0.0, diff)
				return
			}
			assert.Greater(t, diff, 0.0)

			cached, _ := pipeline.Get("ann")
			img, _, err := image.Decode(bytes.NewReader(cached.Data))
			require.NoError(t, err)
			assert.NotEqual(t, color.NRGBAModel.Convert(color.White), color.NRGBAModel.Convert(img.At(tt.x, tt.y)))
		})
	}
}

func TestParseColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, parseColor(""))
	assert.Equal(t, color.RGBA{B: 0xff, A: 0xff}, parseColor("Blue"))
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, parseColor("#0f0"))
	assert.Equal(t, color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 0xff}, parseColor("#123456"))
	assert.Equal(t, color.RGBA{R: 0xff, A: 0xff}, parseColor("not-a-colour"))
}

func TestCompare_NotFound(t *testing.T) {
	pipeline := New(t.TempDir())
	_, err := pipeline.Compare("a", "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompare_DimensionMismatchReadsHeaderOnly(t *testing.T) {
	pipeline := New(t.TempDir())

	// Keep only the signature and IHDR chunk: the header is readable, the
	// pixel data is not.
	headerOnly := func(w, h int) []byte {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
		return buf.Bytes()[:33]
	}
	pipeline.images["small"] = Image{Name: "small", Format: FormatPNG, Data: headerOnly(10, 10)}
	pipeline.images["large"] = Image{Name: "large", Format: FormatPNG, Data: headerOnly(20, 10)}

	diff, err := pipeline.Compare("small", "large")
	require.NoError(t, err)
	assert.Equal(t, 1.0, diff)
}

func TestCompare_NormalisedDifference(t *testing.T) {
	encode := func(c color.Color) []byte {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				img.Set(x, y, c)
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		return buf.Bytes()
	}

	pipeline := New(t.TempDir())
	pipeline.images["black"] = Image{Data: encode(color.Black)}
	pipeline.images["white"] = Image{Data: encode(color.White)}
	pipeline.images["red"] = Image{Data: encode(color.RGBA{R: 0xff, A: 0xff})}

	diff, err := pipeline.Compare("black", "white")
	require.NoError(t, err)
	assert.Equal(t, 1.0, diff)

	diff, err = pipeline.Compare("black", "red")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, diff, 1e-9)

	reverse, err := pipeline.Compare("red", "black")
	require.NoError(t, err)
	assert.Equal(t, diff, reverse)
}

func TestDiffImage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pipeline := New(dir)
	driver, page := newPage(t, 64, 48)

	_, err := pipeline.Capture(ctx, page, "before", Options{})
	require.NoError(t, err)
	driver.Fill = color.RGBA{R: 0xff, A: 0xff}
	_, err = pipeline.Capture(ctx, page, "after", Options{})
	require.NoError(t, err)

	path, err := pipeline.DiffImage(ctx, "before", "after", "before-vs-after")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "before-vs-after.png"), path)

	img := decodeFile(t, path)
	assert.Equal(t, color.NRGBA{R: 0, G: 0xff, B: 0xff, A: 0xff}, color.NRGBAModel.Convert(img.At(10, 10)))
	assert.Contains(t, pipeline.Names(), "before-vs-after")

	_, err = pipeline.Capture(ctx, page, "full", Options{Mode: ModeFull})
	require.NoError(t, err)
	_, err = pipeline.DiffImage(ctx, "before", "full", "nope")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCache_CopiesAndClear(t *testing.T) {
	ctx := context.Background()
	pipeline := New(t.TempDir())
	_, page := newPage(t, 32, 32)

	_, err := pipeline.Capture(ctx, page, "b", Options{})
	require.NoError(t, err)
	_, err = pipeline.Capture(ctx, page, "a", Options{})
	require.NoError(t, err)

	all := pipeline.All()
	require.Len(t, all, 2)
	original, _ := pipeline.Get("a")
	img := all["a"]
	img.Data[0] ^= 0xff
	delete(all, "b")

	again, _ := pipeline.Get("a")
	assert.Equal(t, original.Data, again.Data)
	assert.Equal(t, []string{"a", "b"}, pipeline.Names())

	pipeline.Clear()
	assert.Empty(t, pipeline.Names())
	_, ok := pipeline.Get("a")
	assert.False(t, ok)
}

func TestCache_MetadataWithoutData(t *testing.T) {
	ctx := context.Background()
	pipeline := New(t.TempDir())
	_, page := newPage(t, 32, 32)

	_, err := pipeline.Capture(ctx, page, "b", Options{})
	require.NoError(t, err)
	_, err = pipeline.Capture(ctx, page, "a", Options{})
	require.NoError(t, err)

	full, _ := pipeline.Get("a")
	info, ok := pipeline.Info("a")
	require.True(t, ok)
	assert.Nil(t, info.Data)
	assert.Equal(t, len(full.Data), info.Size)
	assert.Equal(t, full.Width, info.Width)
	assert.Equal(t, "image/png", info.MIMEType())

	_, ok = pipeline.Info("missing")
	assert.False(t, ok)

	list := pipeline.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
	for _, img := range list {
		assert.Nil(t, img.Data)
		assert.Positive(t, img.Size)
	}

	// Cached bytes are untouched.
	again, _ := pipeline.Get("a")
	assert.Equal(t, full.Data, again.Data)
}
