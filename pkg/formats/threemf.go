package formats

import (
	"archive/zip"
	"encoding/xml"
	"image/color"
	"io"

	"github.com/Faultbox/terraprint/pkg/mesh"
)

// 3MF package part names and namespaces.
const (
	threeMFModelPath     = "3D/3dmodel.model"
	threeMFCoreNS        = "http://schemas.microsoft.com/3dmanufacturing/core/2015/02"
	threeMFMaterialNS    = "http://schemas.microsoft.com/3dmanufacturing/material/2015/02"
	threeMFRelType       = "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel"
	threeMFModelMIME     = "application/vnd.ms-package.3dmanufacturing-3dmodel+xml"
	opcRelationshipsMIME = "application/vnd.openxmlformats-package.relationships+xml"
)

const threeMFContentTypes = `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="` + opcRelationshipsMIME + `"/>
  <Default Extension="model" ContentType="` + threeMFModelMIME + `"/>
</Types>
`

const threeMFRels = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Target="/` + threeMFModelPath + `" Id="rel0" Type="` + threeMFRelType + `"/>
</Relationships>
`

// Model3MF is the 3D/3dmodel.model document.
type Model3MF struct {
	XMLName   xml.Name     `xml:"model"`
	Xmlns     string       `xml:"xmlns,attr"`
	XmlnsM    string       `xml:"xmlns:m,attr,omitempty"`
	Unit      string       `xml:"unit,attr"`
	Resources Resources3MF `xml:"resources"`
	Build     Build3MF     `xml:"build"`
}

// Resources3MF holds the color group and the mesh object.
type Resources3MF struct {
	ColorGroup *ColorGroup3MF `xml:"m:colorgroup,omitempty"`
	Objects    []Object3MF    `xml:"object"`
}

// ColorGroup3MF is a materials-extension color table.
type ColorGroup3MF struct {
	ID     int        `xml:"id,attr"`
	Colors []Color3MF `xml:"m:color"`
}

// Color3MF is one #RRGGBBAA entry.
type Color3MF struct {
	Color string `xml:"color,attr"`
}

// Object3MF is a mesh object.
type Object3MF struct {
	ID     int     `xml:"id,attr"`
	Type   string  `xml:"type,attr"`
	Name   string  `xml:"name,attr,omitempty"`
	PID    int     `xml:"pid,attr,omitempty"`
	PIndex *int    `xml:"pindex,attr,omitempty"`
	Mesh   Mesh3MF `xml:"mesh"`
}

// Mesh3MF lists vertices and triangles.
type Mesh3MF struct {
	Vertices  []Vertex3MF   `xml:"vertices>vertex"`
	Triangles []Triangle3MF `xml:"triangles>triangle"`
}

// Vertex3MF is a vertex position in model units.
type Vertex3MF struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
	Z float64 `xml:"z,attr"`
}

// Triangle3MF references three vertices and, with colors, three color
// group entries.
type Triangle3MF struct {
	V1 int  `xml:"v1,attr"`
	V2 int  `xml:"v2,attr"`
	V3 int  `xml:"v3,attr"`
	P1 *int `xml:"p1,attr,omitempty"`
	P2 *int `xml:"p2,attr,omitempty"`
	P3 *int `xml:"p3,attr,omitempty"`
}

// Build3MF places objects on the plate.
type Build3MF struct {
	Items []Item3MF `xml:"item"`
}

// Item3MF references an object.
type Item3MF struct {
	ObjectID int `xml:"objectid,attr"`
}

// Write3MF writes m as a 3MF package. Vertex colors become a color group
// with per-corner references on every triangle.
func Write3MF(w io.Writer, m *mesh.Mesh) error {
	model := build3MFModel(m)

	zw := zip.NewWriter(w)
	if err := writeZipString(zw, "[Content_Types].xml", threeMFContentTypes); err != nil {
		return err
	}
	if err := writeZipString(zw, "_rels/.rels", threeMFRels); err != nil {
		return err
	}
	part, err := zw.Create(threeMFModelPath)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(part, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(part)
	enc.Indent("", " ")
	if err := enc.Encode(model); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	return zw.Close()
}

func build3MFModel(m *mesh.Mesh) *Model3MF {
	const (
		colorGroupID = 1
		objectID     = 2
	)
	obj := Object3MF{ID: objectID, Type: "model", Name: m.Name}
	obj.Mesh.Vertices = make([]Vertex3MF, len(m.Vertices))
	for i, v := range m.Vertices {
		obj.Mesh.Vertices[i] = Vertex3MF{X: v.X, Y: v.Y, Z: v.Z}
	}

	model := &Model3MF{
		Xmlns: threeMFCoreNS,
		Unit:  "millimeter",
		Build: Build3MF{Items: []Item3MF{{ObjectID: objectID}}},
	}

	// Deduplicate vertex colors into the color group.
	var colorIdx []int
	if m.Colors != nil {
		group := &ColorGroup3MF{ID: colorGroupID}
		seen := make(map[color.RGBA]int)
		colorIdx = make([]int, len(m.Colors))
		for i, c := range m.Colors {
			k, ok := seen[c]
			if !ok {
				k = len(group.Colors)
				seen[c] = k
				group.Colors = append(group.Colors, Color3MF{Color: hexRGBA(c)})
			}
			colorIdx[i] = k
		}
		model.XmlnsM = threeMFMaterialNS
		model.Resources.ColorGroup = group
		obj.PID = colorGroupID
		zero := 0
		obj.PIndex = &zero
	}

	obj.Mesh.Triangles = make([]Triangle3MF, len(m.Faces))
	for i, f := range m.Faces {
		t := Triangle3MF{V1: f[0], V2: f[1], V3: f[2]}
		if colorIdx != nil {
			p1, p2, p3 := colorIdx[f[0]], colorIdx[f[1]], colorIdx[f[2]]
			t.P1, t.P2, t.P3 = &p1, &p2, &p3
		}
		obj.Mesh.Triangles[i] = t
	}
	model.Resources.Objects = []Object3MF{obj}
	return model
}

func hexRGBA(c color.RGBA) string {
	const digits = "0123456789ABCDEF"
	b := []byte{'#', 0, 0, 0, 0, 0, 0, 0, 0}
	for i, v := range []uint8{c.R, c.G, c.B, c.A} {
		b[1+2*i] = digits[v>>4]
		b[2+2*i] = digits[v&0x0f]
	}
	return string(b)
}

func writeZipString(zw *zip.Writer, name, content string) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(f, content)
	return err
}
