package reader

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/lightbvh/asset"
	"github.com/achilleasa/lightbvh/light"
	"github.com/achilleasa/lightbvh/log"
	"github.com/achilleasa/lightbvh/types"
)

type wavefrontMaterial struct {
	Name string

	// Emissive color and scaler.
	Ke       types.Vec3
	KeScaler float32
}

func (m *wavefrontMaterial) isEmissive() bool {
	return m != nil && m.Ke.MaxComponent() > 0
}

// Emissive faces are grouped per (object, material) pair.
type meshKey struct {
	object   string
	material string
}

type wavefrontReader struct {
	logger log.Logger

	matNameToIndex map[string]int
	materials      []*wavefrontMaterial
	curMaterial    *wavefrontMaterial
	curObject      string

	vertexList []types.Vec3

	meshIndex map[meshKey]int
	meshes    []light.Mesh

	// Skipped (non-emissive) faces, used for reporting.
	skippedFaces int

	// An error stack that provides additional error information when
	// scene files include other files (models, mat libs e.t.c)
	errStack []string
}

// Read the emissive geometry of a wavefront scene and return a light collection.
// Only faces whose material defines a non-zero "Ke" entry are kept. Quads are
// split into two triangles.
func ReadCollection(sceneFile string) (*light.MeshCollection, error) {
	res, err := asset.NewResource(sceneFile, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return Read(res)
}

// Read emissive geometry from an already opened resource.
func Read(res *asset.Resource) (*light.MeshCollection, error) {
	r := &wavefrontReader{
		logger:         log.New("wavefront reader"),
		matNameToIndex: make(map[string]int),
		meshIndex:      make(map[meshKey]int),
		curObject:      "default",
	}

	r.logger.Noticef(`parsing emissive geometry from "%s"`, res.Path())
	start := time.Now()

	if err := r.parse(res); err != nil {
		return nil, err
	}

	collection := light.NewMeshCollection()
	triCount := 0
	for _, mesh := range r.meshes {
		collection.AddMesh(mesh)
		triCount += len(mesh.Triangles)
	}
	collection.EndFrame()

	r.logger.Noticef(
		"parsed %d emissive meshes (%d triangles, %d non-emissive faces skipped) in %d ms",
		len(r.meshes), triCount, r.skippedFaces, time.Since(start).Nanoseconds()/1e6,
	)
	return collection, nil
}

func (r *wavefrontReader) parse(res *asset.Resource) error {
	lineNum := 0

	// Included object files use 1-based indices relative to their own
	// vertex list.
	relVertexOffset := len(r.vertexList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, err.Error())
			}

			if lineTokens[0] == "call" {
				err = r.parse(incRes)
			} else {
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "usemtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matIndex, exists := r.matNameToIndex[lineTokens[1]]
			if !exists {
				return r.emitError(res.Path(), lineNum, `undefined material with name "%s"`, lineTokens[1])
			}
			r.curMaterial = r.materials[matIndex]
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}
			r.curObject = lineTokens[1]
		case "f":
			if err := r.parseFace(lineTokens, relVertexOffset); err != nil {
				return r.emitError(res.Path(), lineNum, err.Error())
			}
		}
	}

	return scanner.Err()
}

// Parse a triangle or quad face. Faces using a non-emissive material are
// validated but otherwise ignored.
func (r *wavefrontReader) parseFace(lineTokens []string, relVertexOffset int) error {
	if len(lineTokens) < 4 || len(lineTokens) > 5 {
		return fmt.Errorf(`unsupported syntax for "f"; expected 3 arguments for triangular face or 4 arguments for a quad face; got %d. Select the triangulation option in your exporter`, len(lineTokens)-1)
	}

	var vertices [4]types.Vec3
	for arg := 0; arg < len(lineTokens)-1; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")
		if vTokens[0] == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err := selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		vertices[arg] = r.vertexList[vOffset]
	}

	if !r.curMaterial.isEmissive() {
		r.skippedFaces++
		return nil
	}

	key := meshKey{object: r.curObject, material: r.curMaterial.Name}
	meshIdx, exists := r.meshIndex[key]
	if !exists {
		scale := r.curMaterial.KeScaler
		if scale == 0 {
			scale = 1
		}
		r.meshes = append(r.meshes, light.Mesh{
			Name:     key.object + "/" + key.material,
			Radiance: r.curMaterial.Ke,
			Scale:    scale,
		})
		meshIdx = len(r.meshes) - 1
		r.meshIndex[key] = meshIdx
	}

	mesh := &r.meshes[meshIdx]
	mesh.Triangles = append(mesh.Triangles, [3]types.Vec3{vertices[0], vertices[1], vertices[2]})
	if len(lineTokens) == 5 {
		mesh.Triangles = append(mesh.Triangles, [3]types.Vec3{vertices[0], vertices[2], vertices[3]})
	}
	return nil
}

// Parse a wavefront material library. Only the emissive properties are retained.
func (r *wavefrontReader) parseMaterials(res *asset.Resource) error {
	lineNum := 0
	var err error
	var curMaterial *wavefrontMaterial

	r.logger.Infof(`parsing material library "%s"`, res.Path())

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		if lineTokens[0] == "newmtl" {
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName := lineTokens[1]
			if _, exists := r.matNameToIndex[matName]; exists {
				return r.emitError(res.Path(), lineNum, `material "%s" already defined`, matName)
			}

			curMaterial = &wavefrontMaterial{Name: matName}
			r.materials = append(r.materials, curMaterial)
			r.matNameToIndex[matName] = len(r.materials) - 1
			continue
		}

		if curMaterial == nil {
			return r.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
		}

		switch lineTokens[0] {
		case "Ke":
			curMaterial.Ke, err = parseVec3(lineTokens)
		case "KeScaler":
			curMaterial.KeScaler, err = parseFloat32(lineTokens)
		case "include":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}
			baseIndex, exists := r.matNameToIndex[lineTokens[1]]
			if !exists {
				return r.emitError(res.Path(), lineNum, `could not include unknown material "%s"`, lineTokens[1])
			}
			name := curMaterial.Name
			*curMaterial = *r.materials[baseIndex]
			curMaterial.Name = name
		}

		if err != nil {
			return r.emitError(res.Path(), lineNum, err.Error())
		}
	}

	return scanner.Err()
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)
	return fmt.Errorf("%s", strings.Trim(
		fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
		"\n",
	))
}

func (r *wavefrontReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

func (r *wavefrontReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Given an index for a face coord calculate the proper offset into the coord
// list. Negative indices reference elements from the end of the list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}
	return float32(val), nil
}

func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
