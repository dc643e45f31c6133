package mesh

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestQuad(t *testing.T) {
	quad := Quad()
	require.Len(t, quad.Vertices, 4)
	require.Equal(t, []uint32{0, 1, 2, 2, 3, 0}, quad.Indices)
	require.Equal(t, mgl32.Vec3{-0.5, -0.5, 0}, quad.Vertices[0].Position)
	require.Equal(t, mgl32.Vec3{-0.5, 0.5, 0}, quad.Vertices[3].Position)
}

func TestVertexLayout(t *testing.T) {
	require.Equal(t, 32, int(unsafe.Sizeof(Vertex{})))

	bindings := BindingDescriptions()
	require.Len(t, bindings, 1)
	require.Equal(t, 32, bindings[0].Stride)

	attributes := AttributeDescriptions()
	require.Len(t, attributes, 3)
	require.Equal(t, 0, attributes[0].Offset)
	require.Equal(t, 12, attributes[1].Offset)
	require.Equal(t, 24, attributes[2].Offset)
}

func TestVertexData(t *testing.T) {
	data, err := Quad().VertexData()
	require.NoError(t, err)
	require.Len(t, data, 4*32)

	// Second vertex, color green.
	green := math.Float32frombits(binary.LittleEndian.Uint32(data[32+16:]))
	require.Equal(t, float32(1), green)
}

func TestIndexDataWidth(t *testing.T) {
	indexType, data, err := Quad().IndexData()
	require.NoError(t, err)
	require.Equal(t, core1_0.IndexTypeUInt16, indexType)
	require.Len(t, data, 12)
	require.Equal(t, uint16(2), binary.LittleEndian.Uint16(data[6:]))

	big := Mesh{Vertices: make([]Vertex, math.MaxUint16+2), Indices: []uint32{0, 1, math.MaxUint16 + 1}}
	indexType, data, err = big.IndexData()
	require.NoError(t, err)
	require.Equal(t, core1_0.IndexTypeUInt32, indexType)
	require.Len(t, data, 12)
	require.Equal(t, uint32(math.MaxUint16+1), binary.LittleEndian.Uint32(data[8:]))
}

const squareOBJ = `o square
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
f 1/1 2/2 3/3 4/4
`

func TestLoadOBJ(t *testing.T) {
	m, err := LoadOBJ(strings.NewReader(squareOBJ), nil)
	require.NoError(t, err)

	// One quad face becomes a two-triangle fan over four shared vertices.
	require.Len(t, m.Vertices, 4)
	require.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)
	require.Equal(t, mgl32.Vec3{1, 1, 0}, m.Vertices[2].Position)
	require.Equal(t, mgl32.Vec2{1, 0}, m.Vertices[2].TexCoord)
	require.Equal(t, mgl32.Vec3{1, 1, 1}, m.Vertices[0].Color)
}

func TestLoadOBJWithoutFaces(t *testing.T) {
	_, err := LoadOBJ(strings.NewReader("o empty\nv 0 0 0\n"), nil)
	require.Error(t, err)
}
