package compression

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"

	"pdfpress/internal/profile"
)

// Fallback is the in-process compressor used when Ghostscript is
// unavailable or fails. It parses the document with pdfcpu, re-encodes
// embedded JPEG images at the profile's resolution and quality, optionally
// clears metadata, and reassembles the document. Page count, ordering and
// non-image content pass through unchanged.
type Fallback struct {
	logger *slog.Logger
}

// NewFallback creates the in-process compressor.
func NewFallback(logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{logger: logger}
}

// Backend identifies this compressor in processing results.
func (f *Fallback) Backend() Backend {
	return BackendFallback
}

// Compress rewrites inputPath into outputPath entirely in-process.
func (f *Fallback) Compress(ctx context.Context, inputPath, outputPath string, prof profile.Profile, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	defer in.Close()

	pdfCtx, err := api.ReadValidateAndOptimize(in, model.NewDefaultConfiguration())
	if err != nil {
		return classifyParseError(err)
	}
	if pdfCtx.Encrypt != nil {
		return fmt.Errorf("%w: encrypted document", ErrUnsupportedFeature)
	}

	if opts.OptimizeImages {
		reencoded := f.reencodeImages(pdfCtx, prof)
		if reencoded > 0 {
			f.logger.Debug("re-encoded embedded images", "input", inputPath, "count", reencoded)
		}
	}

	if opts.StripMetadata {
		stripInfo(pdfCtx)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	defer out.Close()

	if err := api.WriteContext(pdfCtx, out); err != nil {
		return fmt.Errorf("%w: write document: %v", ErrStorageIO, err)
	}
	return nil
}

// reencodeImages walks the xref table for DCTDecode image streams, decodes
// each, downscales it when it exceeds the profile's dimension cap and
// re-encodes at the profile quality. Images that cannot be decoded, or
// whose re-encoding would grow them, are left untouched. Returns the
// number of streams replaced.
func (f *Fallback) reencodeImages(pdfCtx *model.Context, prof profile.Profile) int {
	masks := maskObjectNumbers(pdfCtx)

	reencoded := 0
	for objNr, entry := range pdfCtx.Table {
		if entry == nil || entry.Free || entry.Compressed || masks[objNr] {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok || !isJPEGImageStream(sd) {
			continue
		}

		replacement, ok := reencodeJPEG(sd.Raw, prof)
		if !ok {
			continue
		}

		sd.Raw = replacement.data
		sd.Content = nil
		length := int64(len(replacement.data))
		sd.StreamLength = &length
		sd.Dict["Length"] = types.Integer(len(replacement.data))
		sd.Dict["Width"] = types.Integer(replacement.width)
		sd.Dict["Height"] = types.Integer(replacement.height)
		sd.Dict["ColorSpace"] = types.Name(replacement.colorSpace)
		sd.Dict["BitsPerComponent"] = types.Integer(8)
		delete(sd.Dict, "DecodeParms")

		entry.Object = sd
		reencoded++
	}
	return reencoded
}

// maskObjectNumbers collects the object numbers of streams referenced as
// an SMask or Mask. Those streams must keep their exact dimensions, so the
// re-encoding walk leaves them alone.
func maskObjectNumbers(pdfCtx *model.Context) map[int]bool {
	masks := map[int]bool{}
	for _, entry := range pdfCtx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		for _, key := range []string{"SMask", "Mask"} {
			if ref, isRef := sd.Dict[key].(types.IndirectRef); isRef {
				masks[int(ref.ObjectNumber)] = true
			}
		}
	}
	return masks
}

// isJPEGImageStream reports whether sd is an image XObject whose single
// filter is DCTDecode. Other encodings (Flate rasters, JPX, CCITT) are
// skipped rather than risk corrupting them, as are images carrying a
// mask: resizing the base image would misalign it.
func isJPEGImageStream(sd types.StreamDict) bool {
	subtype, found := sd.Find("Subtype")
	if !found {
		return false
	}
	if name, isName := subtype.(types.Name); !isName || name != "Image" {
		return false
	}
	if _, found := sd.Find("SMask"); found {
		return false
	}
	if _, found := sd.Find("Mask"); found {
		return false
	}

	filter, found := sd.Find("Filter")
	if !found {
		return false
	}
	name, isName := filter.(types.Name)
	return isName && name == "DCTDecode"
}

type reencodedImage struct {
	data          []byte
	width, height int
	colorSpace    string
}

// reencodeJPEG decodes raw JPEG bytes, downscales past the profile cap and
// re-encodes. Grayscale images stay grayscale; CMYK and other exotic modes
// are left untouched because the encoder would change their component
// count. Returns ok=false when the stream is skipped, decoding fails or
// the result is not smaller than the original.
func reencodeJPEG(raw []byte, prof profile.Profile) (reencodedImage, bool) {
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return reencodedImage{}, false
	}

	switch img.(type) {
	case *image.Gray, *image.YCbCr, *image.RGBA, *image.NRGBA:
	default:
		return reencodedImage{}, false
	}
	_, gray := img.(*image.Gray)

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	maxDim := prof.MaxImageDimension()
	if width > maxDim || height > maxDim {
		ratio := float64(maxDim) / float64(max(width, height))
		newWidth := int(float64(width) * ratio)
		newHeight := int(float64(height) * ratio)
		if newWidth < 1 {
			newWidth = 1
		}
		if newHeight < 1 {
			newHeight = 1
		}
		var scaled draw.Image
		if gray {
			scaled = image.NewGray(image.Rect(0, 0, newWidth, newHeight))
		} else {
			scaled = image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		}
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
		img = scaled
		width, height = newWidth, newHeight
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: prof.ImageQuality}); err != nil {
		return reencodedImage{}, false
	}
	if buf.Len() >= len(raw) {
		return reencodedImage{}, false
	}

	// The encoder emits one component for *image.Gray and three otherwise;
	// the dict must match the stream it now describes.
	colorSpace := "DeviceRGB"
	if gray {
		colorSpace = "DeviceGray"
	}
	return reencodedImage{data: buf.Bytes(), width: width, height: height, colorSpace: colorSpace}, true
}

// stripInfo clears every entry of the document information dictionary.
func stripInfo(pdfCtx *model.Context) {
	if pdfCtx.Info == nil {
		return
	}
	d, err := pdfCtx.DereferenceDict(*pdfCtx.Info)
	if err != nil || d == nil {
		return
	}
	for key := range d {
		delete(d, key)
	}
}

// stripMetadataFile rewrites the document at path with its information
// dictionary cleared. Used as a post-pass after Ghostscript.
func stripMetadataFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}

	pdfCtx, err := api.ReadValidateAndOptimize(in, model.NewDefaultConfiguration())
	in.Close()
	if err != nil {
		return err
	}

	stripInfo(pdfCtx)

	tmp := path + ".strip"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := api.WriteContext(pdfCtx, out); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
