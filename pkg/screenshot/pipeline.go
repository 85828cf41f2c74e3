package screenshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/logging"
)

// Capture modes.
const (
	ModeViewport = "viewport"
	ModeFull     = "full"
	ModeElement  = "element"
)

// Encodings.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// DefaultJPEGQuality applies when a JPEG capture names no quality.
const DefaultJPEGQuality = 90

var (
	// ErrNotFound is returned when a name is not in the cache.
	ErrNotFound = errors.New("screenshot not found")

	// ErrSelectorRequired is returned for element captures without a selector.
	ErrSelectorRequired = errors.New("selector is required for element screenshot")

	// ErrElementNotFound is returned when an element capture's selector
	// matches nothing.
	ErrElementNotFound = errors.New("element not found")

	// ErrInvalidName is returned for names that cannot be used as file names.
	ErrInvalidName = errors.New("invalid screenshot name")

	// ErrInvalidOptions is returned for unknown modes or formats and
	// out-of-range quality.
	ErrInvalidOptions = errors.New("invalid screenshot options")

	// ErrDimensionMismatch is returned when a diff image is requested for
	// captures of different sizes.
	ErrDimensionMismatch = errors.New("screenshot dimensions differ")
)

// Options configures one capture.
type Options struct {
	Mode        string
	Selector    string
	Format      string
	Quality     *int
	Annotations []Annotation
}

// Image is one cached capture.
type Image struct {
	Name       string
	Format     string
	Data       []byte
	Size       int
	Path       string
	Width      int
	Height     int
	CapturedAt time.Time
}

// MIMEType returns the media type of the encoded bytes.
func (i Image) MIMEType() string {
	return MIMEType(i.Format)
}

// MIMEType maps a capture format to its media type.
func MIMEType(format string) string {
	if format == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Pipeline captures, annotates, caches and compares screenshots. The
// in-memory cache is authoritative; every entry is also mirrored to
// {dir}/{name}.{format}.
type Pipeline struct {
	dir       string
	persister FilePersister
	log       *logging.Logger

	mu     sync.RWMutex
	images map[string]Image
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPersister replaces the local disk persister.
func WithPersister(fp FilePersister) Option {
	return func(p *Pipeline) { p.persister = fp }
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New creates a pipeline writing into dir.
func New(dir string, opts ...Option) *Pipeline {
	p := &Pipeline{
		dir:       dir,
		persister: &LocalFilePersister{Dir: dir},
		images:    make(map[string]Image),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logging.Discard("screenshot")
	}
	return p
}

// Dir returns the output directory.
func (p *Pipeline) Dir() string {
	return p.dir
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (o *Options) normalize() error {
	if o.Mode == "" {
		o.Mode = ModeViewport
	}
	if o.Format == "" {
		o.Format = FormatPNG
	}

	switch o.Mode {
	case ModeViewport, ModeFull, ModeElement:
	default:
		return fmt.Errorf("%w: unknown mode %q (must be 'full', 'element', or 'viewport')", ErrInvalidOptions, o.Mode)
	}

	switch o.Format {
	case FormatPNG:
		o.Quality = nil
	case FormatJPEG:
		if o.Quality == nil {
			q := DefaultJPEGQuality
			o.Quality = &q
		}
		if *o.Quality < 0 || *o.Quality > 100 {
			return fmt.Errorf("%w: quality %d out of range 0-100", ErrInvalidOptions, *o.Quality)
		}
	default:
		return fmt.Errorf("%w: unknown format %q (must be 'png' or 'jpeg')", ErrInvalidOptions, o.Format)
	}
	return nil
}

// Capture takes a screenshot of page, applies annotations, caches the result
// under name and writes it to disk. It returns the on-disk path.
func (p *Pipeline) Capture(ctx context.Context, page browser.Page, name string, opts Options) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if err := opts.normalize(); err != nil {
		return "", err
	}

	raw, err := p.raster(page, opts)
	if err != nil {
		return "", err
	}

	if len(opts.Annotations) > 0 {
		raw, err = p.annotated(raw, opts)
		if err != nil {
			return "", err
		}
	}

	width, height, err := dimensions(raw)
	if err != nil {
		return "", err
	}

	path, err := p.store(ctx, Image{
		Name:       name,
		Format:     opts.Format,
		Data:       raw,
		Width:      width,
		Height:     height,
		CapturedAt: time.Now(),
	})
	if err != nil {
		return "", err
	}

	p.log.Infof("captured %s (%s, %dx%d, %d bytes, %d annotations)", name, opts.Mode, width, height, len(raw), len(opts.Annotations))
	return path, nil
}

func (p *Pipeline) raster(page browser.Page, opts Options) ([]byte, error) {
	shot := browser.ScreenshotOptions{Format: opts.Format, Quality: opts.Quality}

	switch opts.Mode {
	case ModeFull:
		shot.FullPage = true
		return page.Screenshot(shot)
	case ModeElement:
		if opts.Selector == "" {
			return nil, ErrSelectorRequired
		}
		n, err := page.Count(opts.Selector)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: %q", ErrElementNotFound, opts.Selector)
		}
		return page.ElementScreenshot(opts.Selector, shot)
	default:
		return page.Screenshot(shot)
	}
}

func (p *Pipeline) annotated(raw []byte, opts Options) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding capture for annotation: %w", err)
	}

	out, err := annotate(src, opts.Annotations)
	if err != nil {
		return nil, err
	}
	return encode(out, opts.Format, opts.Quality)
}

func encode(img image.Image, format string, quality *int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		q := DefaultJPEGQuality
		if quality != nil {
			q = *quality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// store mirrors img to disk and caches it. The cache entry is kept even
// when the mirror fails.
func (p *Pipeline) store(ctx context.Context, img Image) (string, error) {
	path, err := p.persister.Persist(ctx, img.Name, img.Format, img.Data)
	img.Path = path
	img.Size = len(img.Data)

	p.mu.Lock()
	p.images[img.Name] = img
	p.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("saving screenshot %q: %w", img.Name, err)
	}
	return path, nil
}

// Compare returns the normalised mean absolute difference of two cached
// captures: 0 for identical pixels, 1 for different dimensions.
func (p *Pipeline) Compare(name1, name2 string) (float64, error) {
	a, b, err := p.pair(name1, name2)
	if err != nil {
		return 0, err
	}
	return difference(a.Data, b.Data)
}

// DiffImage stores a PNG of the per-channel difference of two cached
// captures under outName and returns its path.
func (p *Pipeline) DiffImage(ctx context.Context, name1, name2, outName string) (string, error) {
	if err := validateName(outName); err != nil {
		return "", err
	}
	a, b, err := p.pair(name1, name2)
	if err != nil {
		return "", err
	}

	diff, err := differenceImage(a.Data, b.Data)
	if err != nil {
		return "", err
	}
	data, err := encode(diff, FormatPNG, nil)
	if err != nil {
		return "", err
	}

	bounds := diff.Bounds()
	return p.store(ctx, Image{
		Name:       outName,
		Format:     FormatPNG,
		Data:       data,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: time.Now(),
	})
}

func (p *Pipeline) pair(name1, name2 string) (Image, Image, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	a, ok1 := p.images[name1]
	b, ok2 := p.images[name2]
	switch {
	case !ok1 && !ok2:
		return Image{}, Image{}, fmt.Errorf("%w: %q and %q", ErrNotFound, name1, name2)
	case !ok1:
		return Image{}, Image{}, fmt.Errorf("%w: %q", ErrNotFound, name1)
	case !ok2:
		return Image{}, Image{}, fmt.Errorf("%w: %q", ErrNotFound, name2)
	}
	return a, b, nil
}

// Get returns a cached capture. The returned bytes are a copy.
func (p *Pipeline) Get(name string) (Image, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	img, ok := p.images[name]
	if !ok {
		return Image{}, false
	}
	img.Data = bytes.Clone(img.Data)
	return img, true
}

// Info returns a cached capture's metadata without its bytes.
func (p *Pipeline) Info(name string) (Image, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	img, ok := p.images[name]
	img.Data = nil
	return img, ok
}

// List returns the metadata of every cached capture, sorted by name. Data
// is left empty.
func (p *Pipeline) List() []Image {
	p.mu.RLock()
	out := make([]Image, 0, len(p.images))
	for _, img := range p.images {
		img.Data = nil
		out = append(out, img)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns a copy of the cache.
func (p *Pipeline) All() map[string]Image {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Image, len(p.images))
	for name, img := range p.images {
		img.Data = bytes.Clone(img.Data)
		out[name] = img
	}
	return out
}

// Names lists cached capture names in order.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.images))
	for name := range p.images {
		names = append(names, name)
	}
	p.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Clear empties the cache. Files on disk are kept.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = make(map[string]Image)
}
