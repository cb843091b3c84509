package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery finds survey exports under a base path.
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

// IsSurveyWorkbook reports whether name looks like a readable survey
// export. Office lock files ("~$survey.xlsx") are not.
func IsSurveyWorkbook(name string) bool {
	if strings.HasPrefix(name, "~$") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".xlsx" || ext == ".xlsm"
}

// FindSurveyWorkbooks lists the workbooks directly inside dir, oldest first.
func (d *Discovery) FindSurveyWorkbooks(dir string) ([]FileInfo, error) {
	fullPath := d.resolve(dir)
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !IsSurveyWorkbook(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(fullPath, entry.Name()),
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// GetLatestFile returns the most recently modified file from a list
func GetLatestFile(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}

	latest := files[0]
	for _, file := range files[1:] {
		if !file.ModTime.Before(latest.ModTime) {
			latest = file
		}
	}
	return latest, true
}

// ResolveSurveyInput turns an input path into a workbook path. A file is
// returned as is; a directory yields its most recently modified workbook.
func (d *Discovery) ResolveSurveyInput(path string) (string, error) {
	full := d.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("survey input %s: %w", full, err)
	}
	if !info.IsDir() {
		return full, nil
	}

	found, err := d.FindSurveyWorkbooks(full)
	if err != nil {
		return "", err
	}
	latest, ok := GetLatestFile(found)
	if !ok {
		return "", fmt.Errorf("no survey workbook (.xlsx, .xlsm) in %s", full)
	}
	return latest.Path, nil
}
