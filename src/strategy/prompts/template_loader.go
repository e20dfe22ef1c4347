package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadTemplate 从模板目录加载指定阶段的 prompt 模板
func LoadTemplate(templateDir, stage string) (string, error) {
	templatePath := filepath.Join(templateDir, stage+".tmpl")

	content, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to load template %s: %w", templatePath, err)
	}

	return string(content), nil
}

// ListStages 列出模板目录下所有可覆盖的阶段模板
func ListStages(templateDir string) ([]string, error) {
	if _, err := os.Stat(templateDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("template directory not found: %s", templateDir)
	}

	entries, err := os.ReadDir(templateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory: %w", err)
	}

	var stages []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".tmpl") {
			stages = append(stages, strings.TrimSuffix(entry.Name(), ".tmpl"))
		}
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("no stage templates found in %s", templateDir)
	}

	return stages, nil
}
