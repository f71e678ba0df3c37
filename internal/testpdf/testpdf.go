// Package testpdf builds minimal but structurally valid PDF documents for
// package tests: correct xref offsets, a real catalog/page tree, and
// optionally a DCTDecode image XObject or an Info dictionary. Not intended
// for production use.
package testpdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
)

type object struct {
	body []byte
}

type builder struct {
	objects []object
	info    int // object number of the Info dict, 0 if absent
}

func (b *builder) add(body string) int {
	b.objects = append(b.objects, object{body: []byte(body)})
	return len(b.objects)
}

func (b *builder) addStream(dict string, stream []byte) int {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<< %s /Length %d >>\nstream\n", dict, len(stream))
	buf.Write(stream)
	buf.WriteString("\nendstream")
	b.objects = append(b.objects, object{body: buf.Bytes()})
	return len(b.objects)
}

func (b *builder) bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(b.objects)+1)
	for i, obj := range b.objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(obj.body)
		buf.WriteString("\nendobj\n")
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(b.objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R", len(b.objects)+1)
	if b.info > 0 {
		fmt.Fprintf(&buf, " /Info %d 0 R", b.info)
	}
	fmt.Fprintf(&buf, " >>\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	return buf.Bytes()
}

func escape(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, "(", `\(`)
	text = strings.ReplaceAll(text, ")", `\)`)
	return text
}

// TextPDF builds a one-page document containing the given text.
func TextPDF(text string) []byte {
	return textPDF(text, "", "")
}

// TextPDFWithInfo builds a one-page text document carrying an Info
// dictionary with the given author and creation date.
func TextPDFWithInfo(text, author, creationDate string) []byte {
	return textPDF(text, author, creationDate)
}

func textPDF(text, author, creationDate string) []byte {
	b := &builder{}
	b.add("<< /Type /Catalog /Pages 2 0 R >>")
	b.add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>")
	stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + escape(text) + ") Tj\nET"
	b.addStream("", []byte(stream))
	b.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	if author != "" || creationDate != "" {
		b.info = b.add(fmt.Sprintf("<< /Author (%s) /Creator (pdfpress-test) /CreationDate (%s) >>", escape(author), escape(creationDate)))
	}
	return b.bytes()
}

// JPEGImagePDF builds a one-page document embedding a real JPEG image
// XObject of the given pixel dimensions, encoded at the given quality.
// Larger dimensions and higher quality yield more compressible content.
func JPEGImagePDF(width, height, quality int) []byte {
	jpegData := EncodeJPEG(width, height, quality)

	b := &builder{}
	b.add("<< /Type /Catalog /Pages 2 0 R >>")
	b.add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 4 0 R >> >> /Contents 5 0 R >>")
	b.addStream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode", width, height), jpegData)
	b.addStream("", []byte("q 400 0 0 400 72 292 cm /Im1 Do Q"))
	return b.bytes()
}

// GrayJPEGImagePDF builds a one-page document embedding a grayscale JPEG
// in a DeviceGray image XObject.
func GrayJPEGImagePDF(width, height, quality int) []byte {
	jpegData := EncodeGrayJPEG(width, height, quality)

	b := &builder{}
	b.add("<< /Type /Catalog /Pages 2 0 R >>")
	b.add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 4 0 R >> >> /Contents 5 0 R >>")
	b.addStream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /DCTDecode", width, height), jpegData)
	b.addStream("", []byte("q 400 0 0 400 72 292 cm /Im1 Do Q"))
	return b.bytes()
}

// SoftMaskedJPEGImagePDF builds a one-page document whose image XObject
// carries an SMask soft mask at the same dimensions.
func SoftMaskedJPEGImagePDF(width, height, quality int) []byte {
	jpegData := EncodeJPEG(width, height, quality)
	maskData := EncodeGrayJPEG(width, height, quality)

	b := &builder{}
	b.add("<< /Type /Catalog /Pages 2 0 R >>")
	b.add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 4 0 R >> >> /Contents 6 0 R >>")
	b.addStream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /SMask 5 0 R", width, height), jpegData)
	b.addStream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /DCTDecode", width, height), maskData)
	b.addStream("", []byte("q 400 0 0 400 72 292 cm /Im1 Do Q"))
	return b.bytes()
}

// EncodeJPEG renders a noisy gradient and encodes it as JPEG. The gradient
// carries enough entropy that re-encoding at a lower quality shrinks it.
func EncodeJPEG(width, height, quality int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: uint8(((x ^ y) * 7) % 256),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// EncodeGrayJPEG renders the same noisy gradient in 8-bit grayscale and
// encodes it as a one-component JPEG.
func EncodeGrayJPEG(width, height, quality int) []byte {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{
				Y: uint8((x*255)/width ^ ((x ^ y) * 7 % 256)),
			})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Corrupt returns bytes that carry the PDF magic header but cannot be
// parsed as a document.
func Corrupt() []byte {
	return []byte("%PDF-1.4\nthis is not a well-formed document body\n%%EOF\n")
}
