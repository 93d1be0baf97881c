package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	backups := t.TempDir()
	elsewhere := t.TempDir()
	nested := filepath.Join(backups, "2026")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatal(err)
	}
	sep := string(os.PathSeparator)

	tests := []struct {
		name    string
		path    string
		allowed []string
		wantErr string
	}{
		{"archive in allowed dir", filepath.Join(backups, "a.backup"), []string{backups}, ""},
		{"archive in nested dir", filepath.Join(nested, "a.backup"), []string{backups}, ""},
		{"not yet created dir", filepath.Join(backups, "new", "a.backup"), []string{backups}, ""},
		{"the allowed dir itself", backups, []string{backups}, ""},
		{"redundant separators", backups + sep + sep + "a.backup", []string{backups}, ""},
		{"second allowed dir", filepath.Join(elsewhere, "a.backup"), []string{backups, elsewhere}, ""},
		{"dot-dot escape", filepath.Join(backups, "..", "netwave.db"), []string{backups}, "outside allowed directories"},
		{"nested dot-dot escape", backups + sep + "2026" + sep + ".." + sep + ".." + sep + "x", []string{backups}, "outside allowed directories"},
		{"other dir", filepath.Join(elsewhere, "a.backup"), []string{backups}, "outside allowed directories"},
		{"prefix sibling", backups + "-old" + sep + "a.backup", []string{backups}, "outside allowed directories"},
		{"null byte", filepath.Join(backups, "a\x00.backup"), []string{backups}, "null byte"},
		{"empty path", "", []string{backups}, "empty"},
		{"no allowed dirs", filepath.Join(backups, "a.backup"), nil, "no allowed directories"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.allowed)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidatePath(%q) = %v, want nil", tt.path, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidatePath(%q) = %v, want error containing %q", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}

	backups := t.TempDir()
	outside := t.TempDir()
	real := filepath.Join(backups, "real")
	if err := os.MkdirAll(real, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(backups, "escape")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(real, filepath.Join(backups, "link")); err != nil {
		t.Fatal(err)
	}

	if err := ValidatePath(filepath.Join(backups, "escape", "a.backup"), []string{backups}); err == nil {
		t.Error("symlink leading outside was accepted")
	}
	if err := ValidatePath(filepath.Join(backups, "link", "a.backup"), []string{backups}); err != nil {
		t.Errorf("symlink staying inside was rejected: %v", err)
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/home/user/.netwave/config.yaml", ".../.netwave/config.yaml"},
		{"/a/b/c/d/e.txt", ".../d/e.txt"},
		{"/netwave.db", "netwave.db"},
		{"output/netwave.db", ".../output/netwave.db"},
		{"netwave.db", "netwave.db"},
		{"/home/user/.netwave/", ".../user/.netwave"},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.in); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAllowedBackupDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	dirs, err := AllowedBackupDirs("output")
	if err != nil {
		t.Fatalf("AllowedBackupDirs: %v", err)
	}
	want := []string{
		filepath.Join(home, ".netwave", "backups"),
		filepath.Join("output", "backups"),
	}
	if len(dirs) != 2 || dirs[0] != want[0] || dirs[1] != want[1] {
		t.Errorf("dirs = %v, want %v", dirs, want)
	}

	if dirs, _ := AllowedBackupDirs(""); len(dirs) != 1 {
		t.Errorf("empty output dir gave %v, want only the global dir", dirs)
	}
}
