package screenshot

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBGRAToRGBA(t *testing.T) {
	data := []byte{
		0x01, 0x02, 0x03, 0x00, 0x10, 0x20, 0x30, 0x00,
		0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x00, 0xff, 0x00,
	}
	img, err := bgraToRGBA(data, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x03, G: 0x02, B: 0x01, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 0x30, G: 0x20, B: 0x10, A: 255}, img.RGBAAt(1, 0))
	assert.Equal(t, color.RGBA{R: 0xcc, G: 0xbb, B: 0xaa, A: 255}, img.RGBAAt(0, 1))
	assert.Equal(t, color.RGBA{R: 0xff, A: 255}, img.RGBAAt(1, 1))

	_, err = bgraToRGBA(data[:8], 2, 2)
	assert.Error(t, err)
}

func TestEncodeToPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.RGBA{R: 9, A: 255})

	b, err := EncodeToPNG(img)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	r, _, _, _ := decoded.At(1, 1).RGBA()
	assert.Equal(t, uint32(9), r>>8)
}
