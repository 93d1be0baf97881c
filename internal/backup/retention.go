package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Info describes one archive file in a backup directory.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`

	// Header is nil when the file's header could not be read.
	Header *Header `json:"header,omitempty"`
}

// RetentionPolicy selects the archives to keep from a newest-first list.
type RetentionPolicy interface {
	Apply(archives []Info) []Info
}

// CountPolicy keeps the MaxCount newest archives.
type CountPolicy struct {
	MaxCount int
}

func (p CountPolicy) Apply(archives []Info) []Info {
	if len(archives) <= p.MaxCount {
		return archives
	}
	return archives[:max(p.MaxCount, 0)]
}

// AgePolicy keeps archives younger than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

func (p AgePolicy) Apply(archives []Info) []Info {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []Info
	for _, a := range archives {
		if a.CreatedAt.After(cutoff) {
			keep = append(keep, a)
		}
	}
	return keep
}

// SizePolicy keeps the newest archives whose combined size fits in
// MaxTotalBytes. The newest archive is always kept.
type SizePolicy struct {
	MaxTotalBytes int64
}

func (p SizePolicy) Apply(archives []Info) []Info {
	var total int64
	for i, a := range archives {
		if i > 0 && total+a.Size > p.MaxTotalBytes {
			return archives[:i]
		}
		total += a.Size
	}
	return archives
}

// AnyPolicy keeps an archive when any of its policies keeps it.
type AnyPolicy []RetentionPolicy

func (p AnyPolicy) Apply(archives []Info) []Info {
	kept := make(map[string]bool)
	for _, policy := range p {
		for _, a := range policy.Apply(archives) {
			kept[a.Path] = true
		}
	}
	return slices.DeleteFunc(slices.Clone(archives), func(a Info) bool { return !kept[a.Path] })
}

// List returns the archives in dir, newest first. A missing directory is
// empty.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var archives []Info
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != FileExt {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		a := Info{
			Path:      filepath.Join(dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(a.Path); err == nil {
			a.Header = h
			a.CreatedAt = h.CreatedAt
		}
		archives = append(archives, a)
	}

	// Generated names embed the timestamp, so name order is age order.
	slices.SortFunc(archives, func(a, b Info) int {
		return strings.Compare(filepath.Base(b.Path), filepath.Base(a.Path))
	})
	return archives, nil
}

// ApplyRetention deletes the archives in dir that policy does not keep and
// returns their paths.
func ApplyRetention(dir string, policy RetentionPolicy) ([]string, error) {
	archives, err := List(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for _, a := range policy.Apply(archives) {
		keep[a.Path] = true
	}

	var deleted []string
	for _, a := range archives {
		if keep[a.Path] {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
		}
		deleted = append(deleted, a.Path)
	}
	return deleted, nil
}

// ParseDuration accepts Go durations ("720h") plus day and week counts
// ("30d", "2w").
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	day := 24 * time.Hour
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(n) * day, nil
	case 'w':
		return time.Duration(n) * 7 * day, nil
	}
	return 0, fmt.Errorf("unknown duration suffix %q in %q", s[len(s)-1:], s)
}

// ParseSize parses "500KB", "100MB", "1GB" or a plain byte count with a B
// suffix.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	units := []struct {
		suffix string
		bytes  int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if num, ok := strings.CutSuffix(s, u.suffix); ok {
			n, err := strconv.ParseInt(num, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size: %q", s)
			}
			return n * u.bytes, nil
		}
	}
	return 0, fmt.Errorf("invalid size: %q (expected suffix: B, KB, MB, GB)", s)
}
