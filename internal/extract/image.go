package extract

import (
	"fmt"
	"image"
	"os"

	// Decoders for the accepted raster formats.
	_ "image/jpeg"
	_ "image/png"
)

// darkThreshold is the mean-luminance cutoff below which an image is
// considered white-on-black and inverted before OCR. The OCR engine is
// tuned for dark text on a light background.
const darkThreshold = 127.0

// loadImage decodes a raster image from disk.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// toGray converts an image to 8-bit grayscale.
func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

// meanLuminance returns the mean grayscale value of an image in [0,255].
func meanLuminance(img image.Image) float64 {
	gray := toGray(img)
	bounds := gray.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0
	}

	var sum uint64
	for _, v := range gray.Pix {
		sum += uint64(v)
	}
	return float64(sum) / float64(pixels)
}

// invertGray returns a new grayscale image with every pixel inverted.
func invertGray(gray *image.Gray) *image.Gray {
	inverted := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		inverted.Pix[i] = 255 - v
	}
	return inverted
}

// prepareForOCR applies the luminance-inversion heuristic: a mostly dark
// image (mean luminance < darkThreshold) is converted to grayscale and
// inverted so the OCR engine sees dark text on a light background; a
// light image passes through untouched.
func prepareForOCR(img image.Image) image.Image {
	gray := toGray(img)
	if meanLuminance(gray) < darkThreshold {
		return invertGray(gray)
	}
	return img
}
