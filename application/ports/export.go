package ports

import "fmt"

// ExportKind names a generated artifact
type ExportKind string

const (
	ExportSpringBoot ExportKind = "spring"
	ExportPostman    ExportKind = "postman"
	ExportFlutter    ExportKind = "flutter"
)

// AllExportKinds lists the supported exports
func AllExportKinds() []ExportKind {
	return []ExportKind{ExportSpringBoot, ExportPostman, ExportFlutter}
}

// ParseExportKind validates an export kind
func ParseExportKind(s string) (ExportKind, error) {
	switch k := ExportKind(s); k {
	case ExportSpringBoot, ExportPostman, ExportFlutter:
		return k, nil
	default:
		return "", fmt.Errorf("unknown export kind %q", s)
	}
}

// FileName is the name the downloaded artifact is saved under
func (k ExportKind) FileName() string {
	switch k {
	case ExportSpringBoot:
		return "springboot_project.zip"
	case ExportPostman:
		return "postman_project.json"
	case ExportFlutter:
		return "flutter_project.zip"
	default:
		return string(k) + ".bin"
	}
}

// Path is the export service path for a diagram id
func (k ExportKind) Path(id string) string {
	return fmt.Sprintf("export/generate-%s/%s", k, id)
}
