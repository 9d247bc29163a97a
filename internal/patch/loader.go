package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/Cignor/Collider-sub010/internal/ctxlog"
	"github.com/Cignor/Collider-sub010/internal/pinaddr"
)

// Load reads one patch from the given paths. A path may be a single .hcl
// file or a directory searched recursively, and multiple files merge into
// one document, so a patch can be split by concern. Paths that do not exist
// are skipped; an empty result is a valid, empty patch.
func Load(ctx context.Context, paths ...string) (*Document, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findPatchFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered patch files.", "count", len(files))

	parser := hclparse.NewParser()
	doc := &Document{}
	declaredIn := make(map[string]string)
	transportFile := ""

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse patch file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode patch file %s: %w", file, diags)
		}

		for _, mb := range root.Modules {
			m, err := translateModule(mb, file)
			if err != nil {
				return nil, err
			}
			if prev, dup := declaredIn[m.Name]; dup {
				return nil, fmt.Errorf("%s: module %q already declared in %s", file, m.Name, prev)
			}
			declaredIn[m.Name] = file
			doc.Modules = append(doc.Modules, m)
		}

		for _, cb := range root.Cables {
			c, err := translateCable(cb, file)
			if err != nil {
				return nil, err
			}
			doc.Cables = append(doc.Cables, c)
		}

		if root.Transport != nil {
			if transportFile != "" {
				return nil, fmt.Errorf("%s: transport block already declared in %s", file, transportFile)
			}
			transportFile = file
			doc.Transport = Transport{
				BPM:      root.Transport.BPM,
				Division: root.Transport.Division,
				Playing:  root.Transport.Playing,
				Master:   root.Transport.Master,
			}
		}
	}

	logger.Debug("Patch loading complete.",
		"files", len(files),
		"modules", len(doc.Modules),
		"cables", len(doc.Cables),
	)
	return doc, nil
}

func translateModule(mb *ModuleBlock, file string) (Module, error) {
	if err := pinaddr.ValidName(mb.Name); err != nil {
		return Module{}, fmt.Errorf("%s: module %q: %v", file, mb.Name, err)
	}
	m := Module{
		Type:    mb.Type,
		Name:    mb.Name,
		Params:  make(map[string]float64),
		Options: make(map[string]string),
	}
	if mb.Params == nil {
		return m, nil
	}

	attrs, diags := mb.Params.Body.JustAttributes()
	if diags.HasErrors() {
		return Module{}, fmt.Errorf("%s: module %q params: %w", file, mb.Name, diags)
	}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return Module{}, fmt.Errorf("%s: module %q param %q: %w", file, mb.Name, name, diags)
		}
		switch val.Type() {
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			m.Params[name] = f
		case cty.String:
			m.Options[name] = val.AsString()
		case cty.Bool:
			if val.True() {
				m.Params[name] = 1
			} else {
				m.Params[name] = 0
			}
		default:
			return Module{}, fmt.Errorf("%s: module %q param %q: unsupported type %s",
				file, mb.Name, name, val.Type().FriendlyName())
		}
	}
	return m, nil
}

func translateCable(cb *CableBlock, file string) (Cable, error) {
	from, err := pinaddr.Parse(cb.From)
	if err != nil {
		return Cable{}, fmt.Errorf("%s: cable from: %v", file, err)
	}
	to, err := pinaddr.Parse(cb.To)
	if err != nil {
		return Cable{}, fmt.Errorf("%s: cable to: %v", file, err)
	}
	return Cable{From: from, To: to}, nil
}

// findPatchFiles walks all given paths and returns a deduplicated flat list
// of .hcl files.
func findPatchFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, dup := seen[p]; !dup {
			files = append(files, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
