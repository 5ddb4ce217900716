package commands

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed all:templates
var templateFS embed.FS

const projectTemplate = "templates/project"

// copyTemplate copies the embedded reference project into targetDir.
// Existing files are kept unless force is set.
func copyTemplate(targetDir string, force bool) ([]string, error) {
	var written []string
	err := fs.WalkDir(templateFS, projectTemplate, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, projectTemplate), "/")
		if rel == "" {
			return nil
		}
		rel = renameSpecialFiles(rel)
		target := filepath.Join(targetDir, filepath.FromSlash(rel))

		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !force {
			if _, err := os.Stat(target); err == nil {
				return nil
			}
		}

		content, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0o600); err != nil {
			return err
		}
		written = append(written, rel)
		return nil
	})
	return written, err
}

// renameSpecialFiles maps embedded names to their on-disk names. Dotfiles
// cannot be embedded reliably, so they are stored without the dot.
func renameSpecialFiles(rel string) string {
	dir, base := path.Split(rel)
	if base == "gitignore" {
		return dir + ".gitignore"
	}
	return rel
}

// listTemplateFiles returns every file of the reference project.
func listTemplateFiles() ([]string, error) {
	var files []string
	err := fs.WalkDir(templateFS, projectTemplate, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel := strings.TrimPrefix(p, projectTemplate+"/")
			files = append(files, renameSpecialFiles(rel))
		}
		return nil
	})
	return files, err
}

// groupTemplateFiles groups files by category for display.
func groupTemplateFiles(files []string) map[string][]string {
	groups := map[string][]string{
		"config":  {},
		"models":  {},
		"reports": {},
		"data":    {},
	}
	for _, f := range files {
		switch {
		case strings.HasPrefix(f, "models/"):
			groups["models"] = append(groups["models"], f)
		case strings.HasPrefix(f, "reports/"):
			groups["reports"] = append(groups["reports"], f)
		case strings.HasPrefix(f, "data/"):
			groups["data"] = append(groups["data"], f)
		default:
			groups["config"] = append(groups["config"], f)
		}
	}
	return groups
}
