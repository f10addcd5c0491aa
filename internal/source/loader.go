package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timmy/examforge/internal/domain"
)

// LoadResult is the outcome of scanning a directory of question banks.
type LoadResult struct {
	Sets   []*domain.QuestionSet
	Errors []error // per-file parse failures; the remaining files still load
}

// LoadDir parses every file under dir whose name matches pattern (a
// filepath.Match glob, "*" when empty). Hidden files and directories are
// skipped. Files in subdirectories take the directory name as their subject
// when they do not declare one. Set IDs are unique within the result.
func LoadDir(ctx context.Context, dir, pattern string) (*LoadResult, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", dir)
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	res := &LoadResult{}
	seen := make(map[string]int)
	for _, path := range paths {
		set, err := ParseFile(path)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}

		rel, _ := filepath.Rel(dir, path)
		if sub := filepath.Dir(rel); sub != "." && set.Subject == "" {
			set.Subject = filepath.Base(sub)
		}
		if n := seen[set.ID]; n > 0 {
			set.ID = fmt.Sprintf("%s-%d", set.ID, n+1)
		}
		seen[set.ID]++
		res.Sets = append(res.Sets, set)
	}
	return res, nil
}
