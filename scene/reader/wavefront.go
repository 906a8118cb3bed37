// Package reader loads triangle meshes from wavefront obj files.
package reader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/clbvh/log"
	"github.com/achilleasa/clbvh/scene"
	"github.com/achilleasa/clbvh/types"
)

// A face corner; indices into the position, uv and normal lists. Missing uv
// or normal indices are set to -1.
type faceCorner struct {
	position int
	uv       int
	normal   int
}

type wavefrontReader struct {
	logger log.Logger

	// The mesh being built.
	mesh *scene.Mesh

	// A map of material names to material index.
	matNameToIndex map[string]uint32

	// Currently selected material index.
	curMaterial uint32

	// List of vertices, normals and uv coords.
	vertexList []types.Vec3
	normalList []types.Vec3
	uvList     []types.Vec2

	// Mesh vertex index for each distinct face corner.
	cornerToVertex map[faceCorner]uint32
}

func newWavefrontReader() *wavefrontReader {
	return &wavefrontReader{
		logger:         log.New("wavefront reader"),
		mesh:           &scene.Mesh{},
		matNameToIndex: make(map[string]uint32),
		cornerToVertex: make(map[faceCorner]uint32),
	}
}

// Read a mesh from a wavefront obj file.
func ReadMesh(path string) (*scene.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadMeshFrom(path, f)
}

// Read a mesh from a stream containing wavefront obj data. The name is only
// used for error messages. Polygonal faces are triangulated as fans and each
// usemtl directive selects a material index in order of first appearance.
func ReadMeshFrom(name string, source io.Reader) (*scene.Mesh, error) {
	r := newWavefrontReader()
	start := time.Now()

	if err := r.parse(name, source); err != nil {
		return nil, err
	}

	r.logger.Debugf(
		"parsed %s in %s: %d vertices, %d triangles, %d materials",
		name, time.Since(start), len(r.mesh.Vertices), len(r.mesh.Triangles), len(r.matNameToIndex),
	)
	return r.mesh, nil
}

// Generate an error message annotated with the file name and line.
func (r *wavefrontReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	return fmt.Errorf("[%s: %d] error: %s", file, line, fmt.Sprintf(msgFormat, args...))
}

func (r *wavefrontReader) parse(name string, source io.Reader) error {
	lineNum := 0

	scanner := bufio.NewScanner(source)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(name, lineNum, "unsupported syntax for 'usemtl'; expected 1 argument; got %d", len(lineTokens)-1)
			}

			matIndex, exists := r.matNameToIndex[lineTokens[1]]
			if !exists {
				matIndex = uint32(len(r.matNameToIndex))
				r.matNameToIndex[lineTokens[1]] = matIndex
			}
			r.curMaterial = matIndex
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(name, lineNum, "%s", err)
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(name, lineNum, "%s", err)
			}
			r.normalList = append(r.normalList, v)
		case "vt":
			v, err := parseVec2(lineTokens)
			if err != nil {
				return r.emitError(name, lineNum, "%s", err)
			}
			r.uvList = append(r.uvList, v)
		case "f":
			if err := r.parseFace(lineTokens); err != nil {
				return r.emitError(name, lineNum, "%s", err)
			}
		}
	}

	return scanner.Err()
}

// Parse face definition. Each face argument is comprised of 1, 2 or 3
// indices separated by a slash character. The following formats are
// supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate an offset off the end
// of the coord list. Faces with more than 3 vertices are split into a fan.
func (r *wavefrontReader) parseFace(lineTokens []string) error {
	if len(lineTokens) < 4 {
		return fmt.Errorf("unsupported syntax for 'f'; expected at least 3 arguments; got %d", len(lineTokens)-1)
	}

	corners := make([]uint32, len(lineTokens)-1)
	expIndices := 0
	for arg := range corners {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		if vTokens[0] == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		corner := faceCorner{uv: -1, normal: -1}
		var err error
		if corner.position, err = selectFaceCoordIndex(vTokens[0], len(r.vertexList)); err != nil {
			return fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		if len(vTokens) > 1 && vTokens[1] != "" {
			if corner.uv, err = selectFaceCoordIndex(vTokens[1], len(r.uvList)); err != nil {
				return fmt.Errorf("could not parse tex coord for face argument %d: %s", arg, err.Error())
			}
		}
		if len(vTokens) > 2 && vTokens[2] != "" {
			if corner.normal, err = selectFaceCoordIndex(vTokens[2], len(r.normalList)); err != nil {
				return fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
		}

		corners[arg] = r.vertexFor(corner)
	}

	for i := 1; i+1 < len(corners); i++ {
		r.mesh.Triangles = append(r.mesh.Triangles, scene.Triangle{corners[0], corners[i], corners[i+1]})
		r.mesh.Materials = append(r.mesh.Materials, r.curMaterial)
	}
	return nil
}

// Get the mesh vertex for a face corner, creating it on first use.
func (r *wavefrontReader) vertexFor(corner faceCorner) uint32 {
	if index, exists := r.cornerToVertex[corner]; exists {
		return index
	}

	v := scene.Vertex{Position: r.vertexList[corner.position].Vec4(1)}
	if corner.uv >= 0 {
		v.UV = r.uvList[corner.uv]
	}
	if corner.normal >= 0 {
		v.Normal = r.normalList[corner.normal].Vec4(0)
	}

	index := uint32(len(r.mesh.Vertices))
	r.mesh.Vertices = append(r.mesh.Vertices, v)
	r.cornerToVertex[corner] = index
	return index
}

// Convert a 1-based face coord index to a list offset. Negative indices
// reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = int(index - 1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf("unsupported syntax for '%s'; expected 3 arguments; got %d", lineTokens[0], len(lineTokens)-1)
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

// Parse a Vec2 row.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf("unsupported syntax for '%s'; expected 2 arguments; got %d", lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
