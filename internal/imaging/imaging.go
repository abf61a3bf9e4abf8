// Package imaging performs the in-process frame transforms: resize+crop for
// the resize stage, downscaling after the upscaler, and still thumbnails.
package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"

	"remixer/internal/util"
)

// Load decodes a PNG or JPEG file.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Save encodes img as PNG, or JPEG when path ends in .jpg/.jpeg.
func Save(path string, img image.Image) error {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(f, img)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// CropOrigin resolves crop offsets for a crop of cropW×cropH inside a
// resizeW×resizeH frame. Negative offsets center the crop; the result is
// clamped so the crop stays inside the frame.
func CropOrigin(resizeW, resizeH, cropW, cropH, offX, offY int) (int, int) {
	if offX < 0 {
		offX = (resizeW - cropW) / 2
	}
	if offY < 0 {
		offY = (resizeH - cropH) / 2
	}
	return clamp(offX, 0, max(resizeW-cropW, 0)), clamp(offY, 0, max(resizeH-cropH, 0))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// ResizeCrop scales img to resizeW×resizeH then crops cropW×cropH at the
// given offsets (see CropOrigin).
func ResizeCrop(img image.Image, resizeW, resizeH, cropW, cropH, offX, offY int) image.Image {
	b := img.Bounds()
	if resizeW != b.Dx() || resizeH != b.Dy() {
		img = resize.Resize(uint(resizeW), uint(resizeH), img, resize.Lanczos3)
	}
	if cropW <= 0 || cropH <= 0 || (cropW >= resizeW && cropH >= resizeH) {
		return img
	}
	x, y := CropOrigin(resizeW, resizeH, cropW, cropH, offX, offY)
	b = img.Bounds()
	r := image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+min(cropW, resizeW), b.Min.Y+y+min(cropH, resizeH))
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for yy := 0; yy < r.Dy(); yy++ {
		for xx := 0; xx < r.Dx(); xx++ {
			dst.Set(xx, yy, img.At(r.Min.X+xx, r.Min.Y+yy))
		}
	}
	return dst
}

// ResizeCropFile applies ResizeCrop to src and writes dst.
func ResizeCropFile(src, dst string, resizeW, resizeH, cropW, cropH, offX, offY int) error {
	img, err := Load(src)
	if err != nil {
		return err
	}
	return Save(dst, ResizeCrop(img, resizeW, resizeH, cropW, cropH, offX, offY))
}

// ScaleFile resizes src to exactly w×h into dst.
func ScaleFile(src, dst string, w, h int) error {
	img, err := Load(src)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		img = resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
	}
	return Save(dst, img)
}

// Thumbnail writes src scaled by factor to dst (JPEG when dst says so).
func Thumbnail(src, dst string, factor float64) error {
	img, err := Load(src)
	if err != nil {
		return err
	}
	if factor > 0 && factor != 1 {
		w := uint(float64(img.Bounds().Dx()) * factor)
		if w < 1 {
			w = 1
		}
		img = resize.Resize(w, 0, img, resize.Bilinear)
	}
	return Save(dst, img)
}

// Size returns the dimensions of an image file without decoding pixels.
func Size(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
