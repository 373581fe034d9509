package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/terraprint/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// STL format errors.
var (
	ErrInvalidSTL   = errors.New("invalid STL data")
	ErrTruncatedSTL = errors.New("truncated STL data")
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50 // normal + 3 vertices as float32, uint16 attribute
)

// WriteSTL writes m as binary STL. Each facet carries its unit normal.
func WriteSTL(w io.Writer, m *mesh.Mesh) error {
	header := make([]byte, stlHeaderSize+4)
	copy(header, "terraprint "+m.Name)
	binary.LittleEndian.PutUint32(header[stlHeaderSize:], uint32(len(m.Faces)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	var rec [stlTriangleSize]byte
	for i, f := range m.Faces {
		n := m.UnitNormal(i)
		putVec(rec[0:12], n)
		putVec(rec[12:24], m.Vertices[f[0]])
		putVec(rec[24:36], m.Vertices[f[1]])
		putVec(rec[36:48], m.Vertices[f[2]])
		binary.LittleEndian.PutUint16(rec[48:50], 0)
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}
	return nil
}

func putVec(b []byte, v r3.Vec) {
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(float32(v.Z)))
}

func getVec(b []byte) r3.Vec {
	return r3.Vec{
		X: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))),
		Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))),
		Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:12]))),
	}
}

// ParseSTL parses binary or ASCII STL. Facets are returned as a triangle
// soup: every facet gets three fresh vertices. Run mesh.Repair to weld them.
func ParseSTL(data []byte) (*mesh.Mesh, error) {
	if len(data) >= stlHeaderSize+4 {
		count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
		if uint64(len(data)) == stlHeaderSize+4+uint64(count)*stlTriangleSize {
			return parseBinarySTL(data, int(count))
		}
	}
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		return parseASCIISTL(data)
	}
	if len(data) < stlHeaderSize+4 {
		return nil, ErrTruncatedSTL
	}
	return nil, fmt.Errorf("%w: size %d does not match triangle count", ErrTruncatedSTL, len(data))
}

func parseBinarySTL(data []byte, count int) (*mesh.Mesh, error) {
	name := strings.TrimSpace(strings.TrimRight(string(data[:stlHeaderSize]), "\x00"))
	name = strings.TrimPrefix(name, "terraprint ")

	m := &mesh.Mesh{
		Name:     name,
		Vertices: make([]r3.Vec, 0, 3*count),
		Faces:    make([]mesh.Face, 0, count),
	}
	off := stlHeaderSize + 4
	for range count {
		rec := data[off : off+stlTriangleSize]
		base := len(m.Vertices)
		m.Vertices = append(m.Vertices, getVec(rec[12:24]), getVec(rec[24:36]), getVec(rec[36:48]))
		m.Faces = append(m.Faces, mesh.Face{base, base + 1, base + 2})
		off += stlTriangleSize
	}
	return m, nil
}

func parseASCIISTL(data []byte) (*mesh.Mesh, error) {
	m := &mesh.Mesh{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	var pending []r3.Vec
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "solid":
			if len(fields) > 1 {
				m.Name = strings.Join(fields[1:], " ")
			}
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("%w: line %d: malformed vertex", ErrInvalidSTL, line)
			}
			var v [3]float64
			for k := range 3 {
				f, err := strconv.ParseFloat(fields[k+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidSTL, line, err)
				}
				v[k] = f
			}
			pending = append(pending, r3.Vec{X: v[0], Y: v[1], Z: v[2]})
		case "endloop":
			if len(pending) != 3 {
				return nil, fmt.Errorf("%w: line %d: facet has %d vertices", ErrInvalidSTL, line, len(pending))
			}
			base := len(m.Vertices)
			m.Vertices = append(m.Vertices, pending...)
			m.Faces = append(m.Faces, mesh.Face{base, base + 1, base + 2})
			pending = pending[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSTL, err)
	}
	if len(pending) != 0 {
		return nil, fmt.Errorf("%w: unterminated facet", ErrTruncatedSTL)
	}
	return m, nil
}

// LoadSTL reads and parses an STL file from disk.
func LoadSTL(path string) (*mesh.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading STL file: %w", err)
	}
	return ParseSTL(data)
}
