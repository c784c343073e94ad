package light

import (
	"fmt"

	"github.com/achilleasa/lightbvh/log"
	"github.com/achilleasa/lightbvh/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Flags describing what changed in a collection since the last frame.
type UpdateFlags uint32

const (
	LightIntensityChanged UpdateFlags = 1 << iota
	LightTransformChanged
	LightTopologyChanged

	// Set whenever any of the above is set.
	LightCollectionChanged = LightIntensityChanged | LightTransformChanged | LightTopologyChanged
)

// Returns true if any of the bits in mask are set.
func (f UpdateFlags) IsSet(mask UpdateFlags) bool {
	return f&mask != 0
}

// A Collection supplies the active emissive triangles of a scene.
type Collection interface {
	// Get a snapshot of the active triangles. Callers must not retain or
	// modify the returned slice.
	ActiveTriangles() []Triangle

	// Get the changes recorded since the last frame.
	Updates() UpdateFlags

	// Get a counter that increases every time emitters are added or removed.
	TopologyGeneration() uint64
}

// A handle to a mesh registered with a MeshCollection.
type MeshID uuid.UUID

func (id MeshID) String() string {
	return uuid.UUID(id).String()
}

// An emissive mesh in local space.
type Mesh struct {
	Name string

	// Triangle vertices in local space.
	Triangles [][3]types.Vec3

	// Emitted radiance and a scaler applied on top of it.
	Radiance types.Vec3
	Scale    float32
}

type meshInstance struct {
	id        MeshID
	mesh      Mesh
	transform mgl32.Mat4
}

// MeshCollection tracks a set of emissive meshes with per-mesh transforms and
// intensities. Mesh triangles are flattened in registration order, so the
// active triangle order only changes when meshes are added or removed.
type MeshCollection struct {
	logger log.Logger

	meshes     []*meshInstance
	generation uint64
	updates    UpdateFlags

	// Cached world-space triangles; rebuilt lazily.
	triangles []Triangle
	dirty     bool
}

// Create an empty collection.
func NewMeshCollection() *MeshCollection {
	return &MeshCollection{
		logger: log.New("light collection"),
		dirty:  true,
	}
}

// Register a mesh with an identity transform and return its handle.
func (c *MeshCollection) AddMesh(mesh Mesh) MeshID {
	if mesh.Scale == 0 {
		mesh.Scale = 1
	}

	inst := &meshInstance{
		id:        MeshID(uuid.New()),
		mesh:      mesh,
		transform: mgl32.Ident4(),
	}
	c.meshes = append(c.meshes, inst)
	c.markTopologyChanged()

	c.logger.Debugf("added emissive mesh %q (%s) with %d triangles", mesh.Name, inst.id, len(mesh.Triangles))
	return inst.id
}

// Remove a mesh from the collection.
func (c *MeshCollection) RemoveMesh(id MeshID) error {
	for idx, inst := range c.meshes {
		if inst.id == id {
			c.meshes = append(c.meshes[:idx], c.meshes[idx+1:]...)
			c.markTopologyChanged()
			return nil
		}
	}
	return fmt.Errorf("light collection: unknown mesh %s", id)
}

// Set the local-to-world transform of a mesh.
func (c *MeshCollection) SetTransform(id MeshID, transform mgl32.Mat4) error {
	inst, err := c.lookup(id)
	if err != nil {
		return err
	}
	inst.transform = transform
	c.updates |= LightTransformChanged
	c.dirty = true
	return nil
}

// Set the radiance scaler of a mesh.
func (c *MeshCollection) SetIntensity(id MeshID, scale float32) error {
	inst, err := c.lookup(id)
	if err != nil {
		return err
	}
	inst.mesh.Scale = scale
	c.updates |= LightIntensityChanged
	c.dirty = true
	return nil
}

// Get the number of registered meshes.
func (c *MeshCollection) MeshCount() int {
	return len(c.meshes)
}

// Get the ids of the registered meshes in registration order.
func (c *MeshCollection) MeshIDs() []MeshID {
	ids := make([]MeshID, len(c.meshes))
	for idx, inst := range c.meshes {
		ids[idx] = inst.id
	}
	return ids
}

// Clear the update flags. Should be called once all consumers processed the
// current frame.
func (c *MeshCollection) EndFrame() {
	c.updates = 0
}

// Implements Collection.
func (c *MeshCollection) Updates() UpdateFlags {
	return c.updates
}

// Implements Collection.
func (c *MeshCollection) TopologyGeneration() uint64 {
	return c.generation
}

// Implements Collection. Degenerate (zero-area) triangles are never active;
// triangles whose radiance is zero stay active with zero flux so that intensity
// changes never alter the topology.
func (c *MeshCollection) ActiveTriangles() []Triangle {
	if !c.dirty {
		return c.triangles
	}

	c.triangles = c.triangles[:0]
	for _, inst := range c.meshes {
		radiance := inst.mesh.Radiance.Mul(inst.mesh.Scale)
		for _, local := range inst.mesh.Triangles {
			var world [3]types.Vec3
			for vIdx, v := range local {
				world[vIdx] = transformPoint(inst.transform, v)
			}
			tri := NewTriangle(world[0], world[1], world[2], radiance)
			if tri.Area <= 0 {
				continue
			}
			c.triangles = append(c.triangles, tri)
		}
	}
	c.dirty = false
	return c.triangles
}

func (c *MeshCollection) lookup(id MeshID) (*meshInstance, error) {
	for _, inst := range c.meshes {
		if inst.id == id {
			return inst, nil
		}
	}
	return nil, fmt.Errorf("light collection: unknown mesh %s", id)
}

func (c *MeshCollection) markTopologyChanged() {
	c.generation++
	c.updates |= LightTopologyChanged
	c.dirty = true
}

func transformPoint(m mgl32.Mat4, p types.Vec3) types.Vec3 {
	return types.Vec3(mgl32.TransformCoordinate(mgl32.Vec3(p), m))
}
