// Package imager compresses uploaded images and classifies attached video URLs
package imager

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/config"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Upper bound of decoded source image pixels. Guards against decompression
// bombs.
const maxSourcePixels = 64 << 20

var (
	errTooLarge = errors.New("image dimensions too large")
	errEmpty    = errors.New("empty image")
)

// Options of image compression
type Options struct {
	MaxWidth, MaxHeight uint16
	Quality             uint8
}

// DefaultOptions returns the compression options from the current
// configuration
func DefaultOptions() Options {
	opts := Options{
		MaxWidth:  800,
		MaxHeight: 800,
		Quality:   70,
	}
	if conf := config.Get(); conf != nil {
		if conf.MaxWidth != 0 {
			opts.MaxWidth = conf.MaxWidth
		}
		if conf.MaxHeight != 0 {
			opts.MaxHeight = conf.MaxHeight
		}
		if conf.JPEGQuality != 0 {
			opts.Quality = conf.JPEGQuality
		}
	}
	return opts
}

// Compress decodes a JPEG, PNG, GIF, WEBP or BMP image and encodes it as a
// JPEG fitted within the configured bounds
func Compress(raw []byte) ([]byte, error) {
	return CompressWith(raw, DefaultOptions())
}

// CompressWith is like Compress, but with explicit options
func CompressWith(raw []byte, opts Options) (buf []byte, err error) {
	defer func() {
		if err != nil {
			err = common.ErrMediaUnprocessable("image", err)
		}
	}()

	if len(raw) == 0 {
		err = errEmpty
		return
	}
	conf, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return
	}
	if conf.Width*conf.Height > maxSourcePixels {
		err = errTooLarge
		return
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), int(opts.MaxWidth), int(opts.MaxHeight))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	// JPEG has no alpha channel. Flatten onto white.
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{},
		draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	quality := int(opts.Quality)
	if quality == 0 {
		quality = jpeg.DefaultQuality
	}
	err = jpeg.Encode(&out, dst, &jpeg.Options{Quality: quality})
	if err != nil {
		return
	}

	buf = out.Bytes()
	return
}

// Scale width and height to fit within the bounds, keeping the aspect ratio.
// Never upscales. Zero bounds are unbounded.
func fit(width, height, maxW, maxH int) (int, int) {
	if width <= 0 || height <= 0 {
		return 1, 1
	}
	w, h := width, height
	if maxW > 0 && w > maxW {
		h = h * maxW / w
		w = maxW
	}
	if maxH > 0 && h > maxH {
		w = w * maxH / h
		h = maxH
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// DataURL renders a JPEG buffer as an inline data URL for presentation
func DataURL(buf []byte) string {
	if len(buf) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf)
}
