// Package imageutil shrinks image attachments to a bounded payload.
// The compressed copy is what gets replayed in chat history and handed
// to memory meta-tasks; full-resolution bytes are only ever sent once.
package imageutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"gemchat/model"
)

const (
	maxIterations = 20
	decayFactor   = 0.7
)

// Compress re-encodes img as JPEG, repeatedly scaling dimensions and
// quality down by 30% per pass until the payload fits targetKB or the
// iteration cap is hit. Payloads already under the target are returned
// unchanged.
func Compress(img *model.ImageData, targetKB int) (*model.ImageData, error) {
	if img == nil {
		return nil, fmt.Errorf("no image data")
	}
	if len(img.Data) <= targetKB*1024 {
		return img, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	quality := 1.0
	width := decoded.Bounds().Dx()
	height := decoded.Bounds().Dy()
	current := img.Data

	for i := 0; i < maxIterations && len(current) > targetKB*1024; i++ {
		quality *= decayFactor
		width = int(float64(width) * decayFactor)
		height = int(float64(height) * decayFactor)
		if width < 1 || height < 1 {
			break
		}

		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), decoded, decoded.Bounds(), draw.Over, nil)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: int(quality * 100)}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		current = buf.Bytes()
	}

	return &model.ImageData{MIMEType: "image/jpeg", Data: current}, nil
}
