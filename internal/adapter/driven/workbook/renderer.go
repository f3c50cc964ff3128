// Package workbook renders printable certificates from Excel workbook
// templates. Cells containing {{field}} placeholders are filled from the
// caller's field map.
package workbook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// ContentType is the media type of rendered documents.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var _ driven.TemplateRenderer = (*Renderer)(nil)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

type catalogFile struct {
	Templates []model.TemplateSpec `yaml:"templates"`
}

// LoadCatalog reads the YAML template catalog at path.
func LoadCatalog(path string) ([]model.TemplateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}

	var cat catalogFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse template catalog %s: %w", path, err)
	}
	return cat.Templates, nil
}

// Renderer fills workbook templates stored in a directory.
type Renderer struct {
	dir   string
	specs map[string]model.TemplateSpec
}

// New creates a Renderer for the templates in dir. Every spec needs a unique
// name; File defaults to the name.
func New(dir string, specs []model.TemplateSpec) (*Renderer, error) {
	r := &Renderer{dir: dir, specs: make(map[string]model.TemplateSpec, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("template catalog: entry without a name")
		}
		if _, dup := r.specs[spec.Name]; dup {
			return nil, fmt.Errorf("template catalog: duplicate template %q", spec.Name)
		}
		if spec.File == "" {
			spec.File = spec.Name
		}
		r.specs[spec.Name] = spec
	}
	return r, nil
}

// Open loads the catalog at catalogPath and creates a Renderer for dir.
func Open(dir, catalogPath string) (*Renderer, error) {
	specs, err := LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}
	return New(dir, specs)
}

// Template returns the declaration of the named template.
func (r *Renderer) Template(name string) (model.TemplateSpec, error) {
	spec, ok := r.specs[name]
	if !ok {
		return model.TemplateSpec{}, fmt.Errorf("%w: %s", driven.ErrTemplateNotFound, name)
	}
	return spec, nil
}

// Render replaces every {{field}} placeholder in every sheet of the named
// workbook. Placeholders without a value are left blank.
func (r *Renderer) Render(ctx context.Context, name string, fields map[string]string) ([]byte, string, error) {
	spec, err := r.Template(name)
	if err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	f, err := excelize.OpenFile(r.path(spec))
	if err != nil {
		return nil, "", fmt.Errorf("open template %s: %w", name, err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		if err := fillSheet(f, sheet, fields); err != nil {
			return nil, "", fmt.Errorf("render template %s: %w", name, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("write workbook %s: %w", name, err)
	}
	return buf.Bytes(), ContentType, nil
}

func (r *Renderer) path(spec model.TemplateSpec) string {
	file := spec.File
	if filepath.Ext(file) == "" {
		file += ".xlsx"
	}
	return filepath.Join(r.dir, file)
}

func fillSheet(f *excelize.File, sheet string, fields map[string]string) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			if !strings.Contains(value, "{{") {
				continue
			}
			filled := placeholder.ReplaceAllStringFunc(value, func(m string) string {
				return fields[placeholder.FindStringSubmatch(m)[1]]
			})
			if filled == value {
				continue
			}

			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, filled); err != nil {
				return fmt.Errorf("set cell %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
