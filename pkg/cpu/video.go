package cpu

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/pkg/errors"

	"gochip8/pkg/grid"
)

// FramebufferRGBA decodes the display region into a 64×32 RGBA8888 byte
// slice (length 64*32*4), painting set pixels with fg and clear ones with bg.
func (c *CPU) FramebufferRGBA(fg, bg color.RGBA) []byte {
	return FrameRGBA(c.Display().Packed(), fg, bg)
}

// FrameRGBA converts a packed display region to RGBA8888 pixels.
func FrameRGBA(packed [DisplaySize]byte, fg, bg color.RGBA) []byte {
	pixels := make([]byte, ScreenWidth*ScreenHeight*4)
	for i := 0; i < ScreenWidth*ScreenHeight; i++ {
		x, y := grid.GetGridCoords(i, ScreenWidth)
		col := bg
		if packed[y*bytesPerRow+x/8]&(0x80>>(x%8)) != 0 {
			col = fg
		}
		pixels[i*4+0] = col.R
		pixels[i*4+1] = col.G
		pixels[i*4+2] = col.B
		pixels[i*4+3] = col.A
	}
	return pixels
}

// FramebufferImage returns the display as an *image.RGBA.
func (c *CPU) FramebufferImage(fg, bg color.RGBA) *image.RGBA {
	return &image.RGBA{
		Pix:    c.FramebufferRGBA(fg, bg),
		Stride: ScreenWidth * 4,
		Rect:   image.Rect(0, 0, ScreenWidth, ScreenHeight),
	}
}

// SaveScreenshot encodes the framebuffer as a PNG and writes it to filename.
func (c *CPU) SaveScreenshot(filename string, fg, bg color.RGBA) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "create screenshot")
	}
	defer f.Close()
	if err := png.Encode(f, c.FramebufferImage(fg, bg)); err != nil {
		return errors.Wrap(err, "encode screenshot")
	}
	return nil
}
