// Package gitsource keeps the documentation checkout up to date and reports
// the last commit that touched each file.
package gitsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"docsync/internal/docsync"
)

var (
	// ErrNotInGit is returned when the directory is not inside a git work tree.
	ErrNotInGit = errors.New("not in a git work tree")

	// ErrGitNotAvailable is returned when the git binary is not in PATH.
	ErrGitNotAvailable = errors.New("git binary not available")
)

// DefaultLogTimeout bounds the git log call made during file discovery.
const DefaultLogTimeout = time.Minute

// Repo is a git checkout of the documentation sources.
type Repo struct {
	dir    string
	remote string
	branch string
	logger docsync.Logger
}

// New creates a Repo for dir. remote and branch may be empty, in which case
// git pull uses the tracking configuration of the checkout.
func New(dir, remote, branch string, logger docsync.Logger) *Repo {
	return &Repo{dir: dir, remote: remote, branch: branch, logger: logger}
}

// Dir returns the checkout directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Pull fast-forwards the checkout.
func (r *Repo) Pull(ctx context.Context) error {
	if err := r.check(ctx, r.dir); err != nil {
		return err
	}

	args := []string{"pull", "--ff-only"}
	if r.remote != "" {
		args = append(args, r.remote)
		if r.branch != "" {
			args = append(args, r.branch)
		}
	}

	start := time.Now()
	out, err := run(ctx, r.dir, args...)
	if err != nil {
		return err
	}
	r.logger.Info("git pull finished", "dir", r.dir, "duration", time.Since(start), "output", strings.TrimSpace(string(out)))
	return nil
}

// LastRevisions maps the absolute path of every file below root to the hash
// of the newest commit that touched it. Files outside git history are absent.
func (r *Repo) LastRevisions(root string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultLogTimeout)
	defer cancel()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := r.check(ctx, abs); err != nil {
		return nil, err
	}

	out, err := run(ctx, abs, "-c", "core.quotePath=false",
		"log", "--relative", "--format=commit:%H", "--name-only", "--", ".")
	if err != nil {
		return nil, err
	}
	return parseLog(abs, out), nil
}

// parseLog reads "git log --format=commit:%H --name-only" output. git lists
// commits newest first, so the first hash seen for a file wins.
func parseLog(root string, out []byte) map[string]string {
	revs := make(map[string]string)
	var current string

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "commit:"):
			current = strings.TrimPrefix(line, "commit:")
		case line == "" || current == "":
		default:
			p := filepath.Join(root, filepath.FromSlash(line))
			if _, seen := revs[p]; !seen {
				revs[p] = current
			}
		}
	}
	return revs
}

func (r *Repo) check(ctx context.Context, dir string) error {
	if _, err := exec.LookPath("git"); err != nil {
		return ErrGitNotAvailable
	}
	out, err := run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(string(out)) != "true" {
		return fmt.Errorf("%s: %w", dir, ErrNotInGit)
	}
	return nil
}

func run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("git %s failed: %w\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return out, nil
}
