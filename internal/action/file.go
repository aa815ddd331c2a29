package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileWrite implements file.write.
type FileWrite struct{}

func (f *FileWrite) Execute(_ context.Context, params map[string]string) (map[string]string, error) {
	path, content, err := fileParams("file.write", params)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("file.write: %w", err)
	}
	return map[string]string{"path": path}, nil
}

func (f *FileWrite) DryRun(params map[string]string) string {
	return fmt.Sprintf("Would write %d bytes to %s", len(params["content"]), params["path"])
}

// FileAppend implements file.append.
type FileAppend struct{}

func (f *FileAppend) Execute(_ context.Context, params map[string]string) (map[string]string, error) {
	path, content, err := fileParams("file.append", params)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file.append: %w", err)
	}
	defer file.Close()
	if _, err := file.WriteString(content); err != nil {
		return nil, fmt.Errorf("file.append: %w", err)
	}
	return map[string]string{"path": path}, nil
}

func (f *FileAppend) DryRun(params map[string]string) string {
	return fmt.Sprintf("Would append %d bytes to %s", len(params["content"]), params["path"])
}

// fileParams checks path and content and creates the parent directory.
func fileParams(name string, params map[string]string) (string, string, error) {
	path := params["path"]
	content := params["content"]
	if path == "" {
		return "", "", fmt.Errorf("%s: missing required param 'path'", name)
	}
	if content == "" {
		return "", "", fmt.Errorf("%s: missing required param 'content'", name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", fmt.Errorf("%s: %w", name, err)
	}
	return path, content, nil
}
