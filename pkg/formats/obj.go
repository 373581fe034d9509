package formats

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/Faultbox/terraprint/pkg/mesh"
)

// WriteOBJ writes m as Wavefront OBJ. Vertex colors, when present, are
// appended to each "v" line as 0-1 floats.
func WriteOBJ(w io.Writer, m *mesh.Mesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# terraprint\no %s\n", objName(m.Name))

	for i, v := range m.Vertices {
		bw.WriteString("v ")
		bw.WriteString(formatFloat(v.X))
		bw.WriteByte(' ')
		bw.WriteString(formatFloat(v.Y))
		bw.WriteByte(' ')
		bw.WriteString(formatFloat(v.Z))
		if m.Colors != nil {
			c := m.Colors[i]
			fmt.Fprintf(bw, " %.4f %.4f %.4f", float64(c.R)/255, float64(c.G)/255, float64(c.B)/255)
		}
		bw.WriteByte('\n')
	}
	for _, f := range m.Faces {
		fmt.Fprintf(bw, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}
	return bw.Flush()
}

func objName(name string) string {
	if name == "" {
		return "terrain"
	}
	return name
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
