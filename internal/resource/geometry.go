package resource

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/quadview/internal/gpu"
	"github.com/vkngwrapper/quadview/internal/mesh"
)

// Geometry is a mesh resident in device-local vertex and index buffers.
type Geometry struct {
	Vertices   gpu.Buffer
	Indices    gpu.Buffer
	IndexType  core1_0.IndexType
	IndexCount int
}

func UploadGeometry(u *Uploader, m mesh.Mesh) (*Geometry, error) {
	vertexData, err := m.VertexData()
	if err != nil {
		return nil, err
	}
	indexType, indexData, err := m.IndexData()
	if err != nil {
		return nil, err
	}

	vertices, err := u.UploadBuffer(vertexData, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return nil, err
	}

	indices, err := u.UploadBuffer(indexData, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		vertices.Destroy()
		return nil, err
	}

	return &Geometry{
		Vertices:   vertices,
		Indices:    indices,
		IndexType:  indexType,
		IndexCount: len(m.Indices),
	}, nil
}

func (g *Geometry) Destroy() {
	g.Indices.Destroy()
	g.Vertices.Destroy()
}
