// Package assets reads the files the renderer needs before any GPU work:
// the texture, the two shader binaries and, optionally, an OBJ mesh.
package assets

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"path"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/quadview/internal/config"
	"github.com/vkngwrapper/quadview/internal/mesh"
)

// Texture is a decoded image as tightly packed, non-premultiplied RGBA8.
type Texture struct {
	Pixels []byte
	Width  int
	Height int
}

func DecodeTexture(r io.Reader) (Texture, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return Texture{}, errors.Wrap(err, "decode image")
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return Texture{}, errors.Newf("%s image is empty", format)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)

	return Texture{Pixels: dst.Pix, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

func ReadTexture(fsys fs.FS, name string) (Texture, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return Texture{}, errors.Wrapf(err, "open texture %s", name)
	}
	defer f.Close()

	texture, err := DecodeTexture(f)
	if err != nil {
		return Texture{}, errors.Wrapf(err, "texture %s", name)
	}
	return texture, nil
}

// ReadShader returns the raw contents of a compiled shader.
func ReadShader(fsys fs.FS, name string) ([]byte, error) {
	code, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", name)
	}
	return code, nil
}

// ReadMesh loads an OBJ mesh and its optional material library.
func ReadMesh(fsys fs.FS, name, material string) (mesh.Mesh, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return mesh.Mesh{}, errors.Wrapf(err, "open mesh %s", name)
	}
	defer f.Close()

	var mtl io.Reader
	if material != "" {
		mf, err := fsys.Open(material)
		if err != nil {
			return mesh.Mesh{}, errors.Wrapf(err, "open material %s", material)
		}
		defer mf.Close()
		mtl = mf
	}

	m, err := mesh.LoadOBJ(f, mtl)
	if err != nil {
		return mesh.Mesh{}, errors.Wrapf(err, "mesh %s", name)
	}
	return m, nil
}

// Bundle is everything Load reads.
type Bundle struct {
	Texture        Texture
	VertexShader   []byte
	FragmentShader []byte
	Mesh           mesh.Mesh
}

// Load reads every asset named by cfg from fsys concurrently. Paths in cfg are
// relative to cfg.AssetRoot. Without a configured mesh the bundle carries the
// built-in quad.
func Load(ctx context.Context, fsys fs.FS, cfg config.Config) (Bundle, error) {
	root, err := fs.Sub(fsys, path.Clean(cfg.AssetRoot))
	if err != nil {
		return Bundle{}, errors.Wrapf(err, "asset root %s", cfg.AssetRoot)
	}

	var bundle Bundle
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error
		bundle.Texture, err = ReadTexture(root, cfg.Texture)
		return err
	})
	group.Go(func() error {
		var err error
		bundle.VertexShader, err = ReadShader(root, cfg.VertexShader)
		return err
	})
	group.Go(func() error {
		var err error
		bundle.FragmentShader, err = ReadShader(root, cfg.FragmentShader)
		return err
	})
	group.Go(func() error {
		if cfg.Mesh == "" {
			bundle.Mesh = mesh.Quad()
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		bundle.Mesh, err = ReadMesh(root, cfg.Mesh, cfg.Material)
		return err
	})

	if err := group.Wait(); err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}
