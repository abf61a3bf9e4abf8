package sceneops

import (
	"context"
	"fmt"
	"path/filepath"

	"remixer/internal/encoder"
	"remixer/internal/framestore"
	"remixer/internal/imaging"
	"remixer/internal/project"
)

// Thumbnails renders scene thumbnails into Dir: a still of the middle frame
// for JPG, an animated palette GIF of the whole scene otherwise.
type Thumbnails struct {
	Type    project.ThumbnailType
	Dir     string
	Encoder *encoder.Encoder
	FPS     float64
	GIFFPS  int
	Scale   float64
}

// NewThumbnails configures thumbnails for a project.
func NewThumbnails(d *project.Descriptor, enc *encoder.Encoder, gifFPS int, scale float64) *Thumbnails {
	return &Thumbnails{
		Type:    d.ThumbnailType,
		Dir:     d.Layout().Thumbnails,
		Encoder: enc,
		FPS:     d.ProjectFPS,
		GIFFPS:  gifFPS,
		Scale:   scale,
	}
}

// Path is where the thumbnail of name is written.
func (t *Thumbnails) Path(name string) string {
	ext := ".gif"
	if t.Type == project.ThumbnailJPG {
		ext = ".jpg"
	}
	return filepath.Join(t.Dir, name+ext)
}

// Thumbnail renders the thumbnail of the scene in sceneDir.
func (t *Thumbnails) Thumbnail(ctx context.Context, name, sceneDir string) (string, error) {
	out := t.Path(name)
	if t.Type == project.ThumbnailJPG {
		frames, err := framestore.Frames(sceneDir)
		if err != nil {
			return "", err
		}
		if len(frames) == 0 {
			return "", fmt.Errorf("%w: %s", ErrEmptyScene, sceneDir)
		}
		if err := imaging.Thumbnail(frames[len(frames)/2], out, t.Scale); err != nil {
			return "", fmt.Errorf("thumbnail %s: %w", name, err)
		}
		return out, nil
	}
	if t.Encoder == nil {
		return "", fmt.Errorf("thumbnail %s: no encoder for GIF thumbnails", name)
	}
	return t.Encoder.GIF(ctx, sceneDir, t.FPS, t.GIFFPS, t.Scale, out)
}
