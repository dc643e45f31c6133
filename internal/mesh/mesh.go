package mesh

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

func BindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func AttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Quad is the built-in textured quad in the z=0 plane.
func Quad() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}, TexCoord: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 1}},
			{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{1, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

// VertexData encodes the vertices in the layout described by
// AttributeDescriptions.
func (m Mesh) VertexData() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, m.Vertices); err != nil {
		return nil, errors.Wrap(err, "encode vertices")
	}
	return buf.Bytes(), nil
}

// IndexData encodes the indices with 16-bit indices when every vertex is
// addressable by one, 32-bit otherwise.
func (m Mesh) IndexData() (core1_0.IndexType, []byte, error) {
	buf := &bytes.Buffer{}

	if len(m.Vertices) <= math.MaxUint16+1 {
		indices := make([]uint16, len(m.Indices))
		for i, index := range m.Indices {
			indices[i] = uint16(index)
		}
		if err := binary.Write(buf, common.ByteOrder, indices); err != nil {
			return 0, nil, errors.Wrap(err, "encode indices")
		}
		return core1_0.IndexTypeUInt16, buf.Bytes(), nil
	}

	if err := binary.Write(buf, common.ByteOrder, m.Indices); err != nil {
		return 0, nil, errors.Wrap(err, "encode indices")
	}
	return core1_0.IndexTypeUInt32, buf.Bytes(), nil
}

// LoadOBJ decodes a Wavefront OBJ mesh. material may be nil. Faces are
// triangulated as fans and vertices are shared by position index.
func LoadOBJ(mesh io.Reader, material io.Reader) (Mesh, error) {
	if material == nil {
		material = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(mesh, material)
	if err != nil {
		return Mesh{}, errors.Wrap(err, "decode obj")
	}

	var m Mesh
	uniqueVertices := make(map[int]uint32)

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				m.addVertex(decoder, uniqueVertices, face, 0)
				m.addVertex(decoder, uniqueVertices, face, i-1)
				m.addVertex(decoder, uniqueVertices, face, i)
			}
		}
	}

	if len(m.Indices) == 0 {
		return Mesh{}, errors.New("obj contains no faces")
	}
	return m, nil
}

func (m *Mesh) addVertex(decoder *obj.Decoder, uniqueVertices map[int]uint32, face obj.Face, faceIndex int) {
	vertInd := face.Vertices[faceIndex]
	index, vertexExists := uniqueVertices[vertInd]

	if !vertexExists {
		vert := Vertex{Position: mgl32.Vec3{
			decoder.Vertices[vertInd*3],
			decoder.Vertices[vertInd*3+1],
			decoder.Vertices[vertInd*3+2],
		}, Color: mgl32.Vec3{1, 1, 1}}

		if faceIndex < len(face.Uvs) {
			uvInd := face.Uvs[faceIndex]
			if uvInd >= 0 && uvInd*2+1 < len(decoder.Uvs) {
				vert.TexCoord = mgl32.Vec2{
					decoder.Uvs[uvInd*2],
					1.0 - decoder.Uvs[uvInd*2+1],
				}
			}
		}

		index = uint32(len(m.Vertices))
		m.Vertices = append(m.Vertices, vert)
		uniqueVertices[vertInd] = index
	}

	m.Indices = append(m.Indices, index)
}
