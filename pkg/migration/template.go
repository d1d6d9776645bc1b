// Package migration renders dialect-neutral .sql.template files into the
// per-database migrations embedded by the layout store.
package migration

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

const templateSuffix = ".template"

// Dialect holds the column types substituted into a migration template.
type Dialect struct {
	TextType         string
	IntType          string
	TimestampType    string
	CurrentTimestamp string
}

var Dialects = map[string]Dialect{
	"sqlite": {
		TextType:         "TEXT",
		IntType:          "INTEGER",
		TimestampType:    "TIMESTAMP",
		CurrentTimestamp: "CURRENT_TIMESTAMP",
	},
	"postgres": {
		TextType:         "TEXT",
		IntType:          "INTEGER",
		TimestampType:    "TIMESTAMPTZ",
		CurrentTimestamp: "CURRENT_TIMESTAMP",
	},
}

// Render executes the template at templatePath for dbType.
func Render(templatePath, dbType string) ([]byte, error) {
	dialect, ok := Dialects[dbType]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	content, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	tmpl, err := template.New(filepath.Base(templatePath)).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, dialect); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// OutputPath is where the rendered migration for templatePath lives:
// <dir>/<dbType>/<name>.sql next to the template.
func OutputPath(templatePath, dbType string) string {
	name := strings.TrimSuffix(filepath.Base(templatePath), templateSuffix)
	return filepath.Join(filepath.Dir(templatePath), dbType, name)
}

// Generate renders one template for one database and writes it to OutputPath.
func Generate(templatePath, dbType string) (string, error) {
	sql, err := Render(templatePath, dbType)
	if err != nil {
		return "", err
	}

	outputPath := OutputPath(templatePath, dbType)
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, sql, 0o644); err != nil {
		return "", fmt.Errorf("failed to write migration: %w", err)
	}
	return outputPath, nil
}

// Templates lists the .sql.template files in dir, sorted by name.
func Templates(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"+templateSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to find template files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// DatabaseTypes returns the supported dialect names in a stable order.
func DatabaseTypes() []string {
	types := make([]string, 0, len(Dialects))
	for name := range Dialects {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// GenerateAll renders every template in dir for every dialect and returns
// the written paths.
func GenerateAll(dir string) ([]string, error) {
	templates, err := Templates(dir)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, templatePath := range templates {
		for _, dbType := range DatabaseTypes() {
			path, err := Generate(templatePath, dbType)
			if err != nil {
				return written, fmt.Errorf("failed to process template %s for %s: %w", templatePath, dbType, err)
			}
			written = append(written, path)
		}
	}
	return written, nil
}
