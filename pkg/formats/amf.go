package formats

import (
	"encoding/xml"
	"io"

	"github.com/Faultbox/terraprint/pkg/mesh"
)

// AMFDocument is the AMF document structure.
type AMFDocument struct {
	XMLName xml.Name    `xml:"amf"`
	Unit    string      `xml:"unit,attr"`
	Version string      `xml:"version,attr"`
	Objects []AMFObject `xml:"object"`
}

// AMFObject is a single mesh object.
type AMFObject struct {
	ID       int           `xml:"id,attr"`
	Metadata []AMFMetadata `xml:"metadata"`
	Mesh     AMFMesh       `xml:"mesh"`
}

// AMFMetadata is a typed key/value annotation.
type AMFMetadata struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// AMFMesh holds the shared vertex list and one volume of triangles.
type AMFMesh struct {
	Vertices []AMFVertex `xml:"vertices>vertex"`
	Volume   AMFVolume   `xml:"volume"`
}

// AMFVertex is a vertex with an optional color.
type AMFVertex struct {
	Coordinates AMFCoordinates `xml:"coordinates"`
	Color       *AMFColor      `xml:"color,omitempty"`
}

// AMFCoordinates is a position in millimeters.
type AMFCoordinates struct {
	X float64 `xml:"x"`
	Y float64 `xml:"y"`
	Z float64 `xml:"z"`
}

// AMFColor holds 0-1 channel values.
type AMFColor struct {
	R float64 `xml:"r"`
	G float64 `xml:"g"`
	B float64 `xml:"b"`
	A float64 `xml:"a"`
}

// AMFVolume lists triangles by vertex index.
type AMFVolume struct {
	Triangles []AMFTriangle `xml:"triangle"`
}

// AMFTriangle references three vertices.
type AMFTriangle struct {
	V1 int `xml:"v1"`
	V2 int `xml:"v2"`
	V3 int `xml:"v3"`
}

// WriteAMF writes m as an AMF document in millimeters.
func WriteAMF(w io.Writer, m *mesh.Mesh) error {
	obj := AMFObject{ID: 0}
	if m.Name != "" {
		obj.Metadata = []AMFMetadata{{Type: "name", Value: m.Name}}
	}
	obj.Mesh.Vertices = make([]AMFVertex, len(m.Vertices))
	for i, v := range m.Vertices {
		vert := AMFVertex{Coordinates: AMFCoordinates{X: v.X, Y: v.Y, Z: v.Z}}
		if m.Colors != nil {
			c := m.Colors[i]
			vert.Color = &AMFColor{
				R: float64(c.R) / 255,
				G: float64(c.G) / 255,
				B: float64(c.B) / 255,
				A: float64(c.A) / 255,
			}
		}
		obj.Mesh.Vertices[i] = vert
	}
	obj.Mesh.Volume.Triangles = make([]AMFTriangle, len(m.Faces))
	for i, f := range m.Faces {
		obj.Mesh.Volume.Triangles[i] = AMFTriangle{V1: f[0], V2: f[1], V3: f[2]}
	}

	doc := AMFDocument{Unit: "millimeter", Version: "1.1", Objects: []AMFObject{obj}}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", " ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Flush()
}
