// Package formats reads and writes triangle mesh files for 3D printing:
// binary STL, Wavefront OBJ, 3MF and AMF.
package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Faultbox/terraprint/pkg/mesh"
)

// ErrUnknownFormat is returned for a format tag outside the supported set.
var ErrUnknownFormat = errors.New("unknown mesh format")

// Format identifies a mesh file format.
type Format string

// Supported formats.
const (
	STL     Format = "stl"
	OBJ     Format = "obj"
	ThreeMF Format = "3mf"
	AMF     Format = "amf"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{STL, ThreeMF, AMF, OBJ}
}

// ParseFormat converts a tag such as "STL" or ".3mf" to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	switch f {
	case STL, OBJ, ThreeMF, AMF:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// SupportsColor reports whether the format can carry per-vertex colors.
func (f Format) SupportsColor() bool {
	return f == OBJ || f == ThreeMF || f == AMF
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// Write encodes m to w in format f. Meshes whose color array does not
// match the vertex count are rejected.
func Write(w io.Writer, m *mesh.Mesh, f Format) error {
	if err := m.Validate(); err != nil {
		return err
	}
	switch f {
	case STL:
		return WriteSTL(w, m)
	case OBJ:
		return WriteOBJ(w, m)
	case ThreeMF:
		return Write3MF(w, m)
	case AMF:
		return WriteAMF(w, m)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

// WriteFile writes m to path in format f.
func WriteFile(path string, m *mesh.Mesh, f Format) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	bw := bufio.NewWriter(file)
	if err := Write(bw, m, f); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}
