package magick

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

const defaultGravity = "Center"

// The builders below map Options to the argument list passed to convert.
// Every list follows the same order:
//
//	src, flatten/background, -auto-orient, -strip, operation flags,
//	-quality, -background, -interlace, dst
//
// They are pure: the same Options always produce the same slice.

// ConvertArgs builds the arguments for a format conversion.
func ConvertArgs(o Options) ([]string, error) {
	if err := o.Validate(OpConvert); err != nil {
		return nil, err
	}
	o = o.withDefaults(OpConvert)
	args := prelude(o, true)
	return finish(args, o, false), nil
}

// RotateArgs builds the arguments for a rotation by o.Degree.
func RotateArgs(o Options) ([]string, error) {
	if err := o.Validate(OpRotate); err != nil {
		return nil, err
	}
	o = o.withDefaults(OpRotate)
	args := prelude(o, true)
	args = append(args, "-rotate", strconv.FormatFloat(*o.Degree, 'f', -1, 64))
	return finish(args, o, true), nil
}

// ResizeArgs builds the arguments for a resize to Width x Height.
func ResizeArgs(o Options) ([]string, error) {
	if err := o.Validate(OpResize); err != nil {
		return nil, err
	}
	o = o.withDefaults(OpResize)
	geometry := fmt.Sprintf("%dx%d", o.Width, o.Height)
	if o.NeverEnlarge {
		geometry += ">"
	}
	if o.IgnoreAspectRatio {
		geometry += "!"
	}
	args := prelude(o, true)
	args = append(args, "-resize", geometry)
	return finish(args, o, true), nil
}

// CropArgs builds the arguments for a crop of CropWidth x CropHeight at X,Y
// relative to Gravity.
func CropArgs(o Options) ([]string, error) {
	if err := o.Validate(OpCrop); err != nil {
		return nil, err
	}
	o = o.withDefaults(OpCrop)
	args := prelude(o, true)
	args = append(args,
		"-gravity", o.Gravity,
		"-crop", cropGeometry(o.CropWidth, o.CropHeight, o.X, o.Y),
	)
	return finish(args, o, true), nil
}

// RescropArgs builds the arguments for a resize followed by a crop.
// With Fill the resize covers the box (geometry suffix ^) instead of fitting it.
func RescropArgs(o Options) ([]string, error) {
	if err := o.Validate(OpRescrop); err != nil {
		return nil, err
	}
	o = o.withDefaults(OpRescrop)
	resize := fmt.Sprintf("%dx%d", o.Width, o.Height)
	if o.Fill {
		resize += "^"
	}
	args := prelude(o, true)
	args = append(args,
		"-gravity", o.Gravity,
		"-resize", resize,
		"-crop", cropGeometry(o.CropWidth, o.CropHeight, o.X, o.Y),
	)
	return finish(args, o, true), nil
}

// ThumbnailArgs builds the arguments for a thumbnail of Width x Height.
//
// src describes the source image. For a landscape source the thumbnail
// geometry constrains only the height, for a portrait source only the width,
// so the image covers the box before being cropped to it. A square source
// constrains both.
func ThumbnailArgs(o Options, src *ImageInfo) ([]string, error) {
	if err := o.Validate(OpThumbnail); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: missing source info for thumbnail", ErrUnsupportedFile)
	}
	o = o.withDefaults(OpThumbnail)

	resizeWidth := strconv.Itoa(o.Width)
	resizeHeight := strconv.Itoa(o.Height)
	switch {
	case src.Width > src.Height:
		resizeWidth = ""
	case src.Height > src.Width:
		resizeHeight = ""
	}

	// -strip is always part of a thumbnail, so the prelude must not add it again.
	args := prelude(o, false)
	args = append(args,
		"-gravity", o.Gravity,
		"-interpolate", "catrom",
		"-strip",
		"-thumbnail", resizeWidth+"x"+resizeHeight,
		"-crop", cropGeometry(o.Width, o.Height, o.X, o.Y),
	)
	return finish(args, o, true), nil
}

// BuildArgs dispatches to the builder for op. Thumbnail needs source
// information and is not handled here.
func BuildArgs(op Operation, o Options) ([]string, error) {
	switch op {
	case OpConvert:
		return ConvertArgs(o)
	case OpRotate:
		return RotateArgs(o)
	case OpResize:
		return ResizeArgs(o)
	case OpCrop:
		return CropArgs(o)
	case OpRescrop:
		return RescropArgs(o)
	default:
		return nil, fmt.Errorf("no argument builder for operation %q", op)
	}
}

func prelude(o Options, withStrip bool) []string {
	args := []string{o.Src}
	background := normalizeColor(o.Background)
	if o.Flatten {
		args = append(args, "-flatten")
		if background != "" {
			args = append(args, "-background", background)
		}
	} else if background != "" {
		args = append(args, "-background", background, "-flatten")
	}
	if o.AutoOrient {
		args = append(args, "-auto-orient")
	}
	if withStrip && o.Strip {
		args = append(args, "-strip")
	}
	return args
}

func finish(args []string, o Options, trailingBackground bool) []string {
	if o.Quality > 0 {
		args = append(args, "-quality", strconv.Itoa(o.Quality))
	}
	if trailingBackground {
		if background := normalizeColor(o.Background); background != "" {
			args = append(args, "-background", background)
		}
	}
	if o.Interlace != "" {
		args = append(args, "-interlace", o.Interlace)
	}
	return append(args, o.Dst)
}

// cropGeometry renders WxH+X+Y; negative offsets keep their own sign.
func cropGeometry(w, h, x, y int) string {
	return fmt.Sprintf("%dx%d%+d%+d", w, h, x, y)
}

// normalizeColor rewrites #rgb and #rrggbb colours to lower-case #rrggbb.
// Named colours, rgb() forms and anything colorful cannot parse pass through.
func normalizeColor(c string) string {
	c = strings.TrimSpace(c)
	if !strings.HasPrefix(c, "#") || (len(c) != 4 && len(c) != 7) {
		return c
	}
	col, err := colorful.Hex(c)
	if err != nil {
		return c
	}
	return col.Hex()
}
