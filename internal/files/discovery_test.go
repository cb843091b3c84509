package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string, mod time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
	return path
}

func TestIsSurveyWorkbook(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"survey.xlsx", true},
		{"SURVEY.XLSM", true},
		{"~$survey.xlsx", false},
		{"survey.xls", false},
		{"survey.csv", false},
		{"notes", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSurveyWorkbook(tt.name))
		})
	}
}

func TestFindSurveyWorkbooks(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	touch(t, dir, "b.xlsx", base.Add(2*time.Hour))
	touch(t, dir, "a.xlsx", base)
	touch(t, dir, "~$a.xlsx", base.Add(3*time.Hour))
	touch(t, dir, "readme.txt", base)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "old.xlsx"), 0o755))

	found, err := NewDiscovery(dir).FindSurveyWorkbooks(".")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a.xlsx", found[0].Name)
	assert.Equal(t, "b.xlsx", found[1].Name)

	_, err = NewDiscovery("").FindSurveyWorkbooks(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestResolveSurveyInput(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	older := touch(t, dir, "week1.xlsx", base)
	newer := touch(t, dir, "week2.xlsx", base.Add(24*time.Hour))

	d := NewDiscovery("")

	got, err := d.ResolveSurveyInput(older)
	require.NoError(t, err)
	assert.Equal(t, older, got, "a file is used as given")

	got, err = d.ResolveSurveyInput(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, got, "a directory yields its newest workbook")

	_, err = d.ResolveSurveyInput(t.TempDir())
	assert.Error(t, err, "empty directory")

	_, err = d.ResolveSurveyInput(filepath.Join(dir, "missing.xlsx"))
	assert.Error(t, err)
}

func TestGetLatestFile(t *testing.T) {
	_, ok := GetLatestFile(nil)
	assert.False(t, ok)

	now := time.Now()
	latest, ok := GetLatestFile([]FileInfo{
		{Name: "a", ModTime: now.Add(-time.Hour)},
		{Name: "b", ModTime: now},
		{Name: "c", ModTime: now.Add(-2 * time.Hour)},
	})
	require.True(t, ok)
	assert.Equal(t, "b", latest.Name)
}
