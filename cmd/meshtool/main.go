// meshtool is a CLI utility for inspecting and repairing STL meshes.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Faultbox/terraprint/pkg/formats"
	"github.com/Faultbox/terraprint/pkg/mesh"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "check":
		cmdCheck(args)
	case "repair", "fix":
		cmdRepair(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshtool - STL mesh utility

Usage:
  meshtool <command> [options]

Commands:
  info <file.stl>                Show counts, bounds and volume
  check <file.stl>               Check watertightness and winding
  repair <file.stl> [output]     Weld, clean and close a mesh

Examples:
  meshtool info terrain.stl
  meshtool check terrain_output/terrain_layer01.stl
  meshtool repair -tolerance 0.001 -format 3mf terrain.stl fixed.3mf`)
}

func load(path string) *mesh.Mesh {
	m, err := formats.LoadSTL(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return m
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool info <file.stl>")
		os.Exit(1)
	}

	m := load(args[0])
	// STL stores every triangle corner separately; weld for real counts.
	welded, _ := mesh.Repair(m, mesh.DefaultRepairOptions())

	b := welded.Bounds()
	size := b.Size()
	fmt.Printf("File:      %s\n", args[0])
	fmt.Printf("Triangles: %d\n", m.FaceCount())
	fmt.Printf("Vertices:  %d (%d after welding)\n", m.VertexCount(), welded.VertexCount())
	fmt.Printf("Bounds:    (%.2f, %.2f, %.2f) to (%.2f, %.2f, %.2f)\n",
		b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
	fmt.Printf("Size:      %.2f x %.2f x %.2f mm\n", size.X, size.Y, size.Z)
	fmt.Printf("Volume:    %.2f mm3\n", welded.SignedVolume())
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	tolerance := fs.Float64("tolerance", mesh.DefaultMergeTolerance, "Vertex weld tolerance in mm")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool check [-tolerance mm] <file.stl>")
		os.Exit(1)
	}

	m := load(fs.Arg(0))
	// Only weld, so the report reflects the file's own topology.
	welded := mesh.Weld(m, *tolerance)
	topo := mesh.Analyze(welded)

	fmt.Printf("Edges:              %d\n", topo.Edges)
	fmt.Printf("Boundary edges:     %d\n", len(topo.Boundary))
	fmt.Printf("Non-manifold edges: %d\n", len(topo.NonManifold))
	fmt.Printf("Inconsistent edges: %d\n", len(topo.Inconsistent))
	fmt.Printf("Watertight:         %v\n", topo.Watertight())
	fmt.Printf("Winding consistent: %v\n", topo.WindingConsistent())

	if !topo.Watertight() || !topo.WindingConsistent() {
		os.Exit(2)
	}
}

func cmdRepair(args []string) {
	fs := flag.NewFlagSet("repair", flag.ExitOnError)
	tolerance := fs.Float64("tolerance", mesh.DefaultMergeTolerance, "Vertex weld tolerance in mm")
	format := fs.String("format", "", "Output format (default: from output extension, else stl)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool repair [-tolerance mm] [-format fmt] <file.stl> [output]")
		os.Exit(1)
	}

	input := fs.Arg(0)
	output := strings.TrimSuffix(input, filepath.Ext(input)) + "_repaired.stl"
	if fs.NArg() > 1 {
		output = fs.Arg(1)
	}

	f, err := outputFormat(*format, output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	m := load(input)
	repaired, report := mesh.Repair(m, mesh.RepairOptions{MergeTolerance: *tolerance})

	if err := formats.WriteFile(output, repaired, f); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", output, err)
		os.Exit(1)
	}

	fmt.Printf("Vertices:      %d -> %d (%d merged)\n", report.VerticesBefore, report.VerticesAfter, report.MergedVertices)
	fmt.Printf("Faces:         %d -> %d (%d removed)\n", report.FacesBefore, report.FacesAfter, report.RemovedFaces)
	fmt.Printf("Holes filled:  %d\n", report.FilledHoles)
	fmt.Printf("Faces flipped: %d\n", report.FlippedFaces)
	fmt.Printf("Watertight:    %v\n", report.Watertight)
	for _, w := range report.Warnings {
		fmt.Printf("Warning:       %v\n", w)
	}
	fmt.Printf("Written to %s\n", output)
}

// outputFormat picks the explicit format, then the output extension, then STL.
func outputFormat(explicit, output string) (formats.Format, error) {
	if explicit != "" {
		return formats.ParseFormat(explicit)
	}
	if f, err := formats.ParseFormat(filepath.Ext(output)); err == nil {
		return f, nil
	}
	return formats.STL, nil
}
