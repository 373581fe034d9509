package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/terraprint/internal/logger"
	"github.com/Faultbox/terraprint/internal/zones"
	"github.com/Faultbox/terraprint/pkg/formats"
)

// stem strips a known mesh extension from filename.
func stem(filename string) string {
	ext := filepath.Ext(filename)
	if _, err := formats.ParseFormat(ext); err == nil {
		return strings.TrimSuffix(filename, ext)
	}
	return filename
}

// OutputPath is the single-file output path with the extension of f.
func OutputPath(filename string, f formats.Format) string {
	return stem(filename) + f.Ext()
}

// LayerDir is the directory holding the per-layer files of filename.
func LayerDir(filename string) string {
	return stem(filename) + "_output"
}

// LayerPath is the output path of layer k: <name>_output/<name>_layerNN<ext>.
func LayerPath(filename string, k int, f formats.Format) string {
	name := filepath.Base(stem(filename))
	return filepath.Join(LayerDir(filename), name+"_"+zones.LayerName(k)+f.Ext())
}

// PreviewPath is the PNG preview path for filename.
func PreviewPath(filename string) string {
	return stem(filename) + "_preview.png"
}

// Write exports the result under filename in format f and returns the
// written paths. Layers go into their own directory, base first.
func (r *Result) Write(filename string, f formats.Format) ([]string, error) {
	if r.Strategy != MultiLayer {
		path := OutputPath(filename, f)
		if err := formats.WriteFile(path, r.Solid, f); err != nil {
			return nil, err
		}
		logger.Info("mesh written", zap.String("path", path), zap.Int("faces", r.Solid.FaceCount()))
		return []string{path}, nil
	}

	if err := os.MkdirAll(LayerDir(filename), 0755); err != nil {
		return nil, fmt.Errorf("creating layer directory: %w", err)
	}
	paths := make([]string, 0, len(r.Layers))
	for _, k := range r.LayerIndices() {
		path := LayerPath(filename, k, f)
		if err := formats.WriteFile(path, r.Layers[k], f); err != nil {
			return paths, err
		}
		logger.Info("layer written",
			zap.String("path", path),
			zap.Int("zone", k),
			zap.Int("faces", r.Layers[k].FaceCount()))
		paths = append(paths, path)
	}
	return paths, nil
}
