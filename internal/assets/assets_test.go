package assets

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/vkngwrapper/quadview/internal/config"
)

func checkerboard() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{G: 255, A: 255})
	img.Set(0, 1, color.RGBA{B: 255, A: 255})
	img.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

var checkerboardPixels = []byte{
	255, 0, 0, 255, 0, 255, 0, 255,
	0, 0, 255, 255, 255, 255, 255, 255,
}

func TestDecodeTexturePNG(t *testing.T) {
	texture, err := DecodeTexture(bytes.NewReader(encodePNG(t, checkerboard())))
	require.NoError(t, err)
	require.Equal(t, 2, texture.Width)
	require.Equal(t, 2, texture.Height)
	require.Equal(t, checkerboardPixels, texture.Pixels)
}

func TestDecodeTextureBMP(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, bmp.Encode(buf, checkerboard()))

	texture, err := DecodeTexture(buf)
	require.NoError(t, err)
	require.Equal(t, checkerboardPixels, texture.Pixels)
}

func TestDecodeTextureTranslucent(t *testing.T) {
	img := image.NewNRGBA(image.Rect(5, 5, 6, 7))
	img.Set(5, 6, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	texture, err := DecodeTexture(bytes.NewReader(encodePNG(t, img)))
	require.NoError(t, err)
	require.Equal(t, 1, texture.Width)
	require.Equal(t, 2, texture.Height)
	require.Equal(t, []byte{0, 0, 0, 0, 10, 20, 30, 128}, texture.Pixels)
}

func TestDecodeTextureCorrupt(t *testing.T) {
	_, err := DecodeTexture(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
}

func assetFS(t *testing.T) fstest.MapFS {
	return fstest.MapFS{
		"assets/textures/texture.png": {Data: encodePNG(t, checkerboard())},
		"assets/shaders/vert.spv":     {Data: []byte{0x03, 0x02, 0x23, 0x07}},
		"assets/shaders/frag.spv":     {Data: []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 0, 0}},
		"assets/meshes/square.obj": {Data: []byte(`o square
v -1 -1 0
v 1 -1 0
v 1 1 0
vt 0 0
vt 1 0
vt 1 1
f 1/1 2/2 3/3
`)},
	}
}

func TestLoad(t *testing.T) {
	bundle, err := Load(context.Background(), assetFS(t), config.Default())
	require.NoError(t, err)
	require.Equal(t, checkerboardPixels, bundle.Texture.Pixels)
	require.Len(t, bundle.VertexShader, 4)
	require.Len(t, bundle.FragmentShader, 8)
	require.Len(t, bundle.Mesh.Vertices, 4)
	require.Len(t, bundle.Mesh.Indices, 6)
}

func TestLoadMesh(t *testing.T) {
	cfg := config.Default()
	cfg.Mesh = "meshes/square.obj"

	bundle, err := Load(context.Background(), assetFS(t), cfg)
	require.NoError(t, err)
	require.Len(t, bundle.Mesh.Vertices, 3)
	require.Equal(t, []uint32{0, 1, 2}, bundle.Mesh.Indices)
}

func TestLoadMissingShader(t *testing.T) {
	fsys := assetFS(t)
	delete(fsys, "assets/shaders/frag.spv")

	_, err := Load(context.Background(), fsys, config.Default())
	require.Error(t, err)
	require.True(t, errors.Is(err, fs.ErrNotExist))
	require.Contains(t, err.Error(), "shaders/frag.spv")
}
