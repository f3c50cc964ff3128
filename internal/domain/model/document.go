package model

// TemplateSpec declares a printable document template and the fields that
// must be present before it may be rendered.
type TemplateSpec struct {
	Name           string   `yaml:"name"`
	File           string   `yaml:"file"`
	Title          string   `yaml:"title"`
	RequiredFields []string `yaml:"required_fields"`
}

// Missing returns the required fields absent or empty in fields.
func (t TemplateSpec) Missing(fields map[string]string) []string {
	var missing []string
	for _, name := range t.RequiredFields {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Document is a rendered template. URL is set when the bytes were also
// written to the document store.
type Document struct {
	Name        string
	ContentType string
	Content     []byte
	URL         string
}
