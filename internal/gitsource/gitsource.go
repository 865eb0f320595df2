// Package gitsource mirrors remote git repositories holding care guides.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Sync clones url into localPath if nothing is there yet, or pulls the
// latest changes if a clone exists.
func Sync(ctx context.Context, url, localPath string) error {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("Cloning repository", "url", url, "path", localPath)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("failed to create parent of %s: %w", localPath, err)
		}
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: url})
		if err != nil {
			_ = os.RemoveAll(localPath)
			return fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
		slog.Info("Clone successful", "url", url)
	case err == nil:
		slog.Debug("Pulling latest changes", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return nil
}

// IsURL reports whether source names a git remote rather than a directory.
func IsURL(source string) bool {
	if strings.HasPrefix(source, "git@") || strings.HasSuffix(source, ".git") {
		return true
	}
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http" || u.Scheme == "ssh" || u.Scheme == "file")
}

// LocalPath maps a repository URL to its clone directory under baseDir,
// e.g. https://github.com/a/b.git -> baseDir/github.com/a/b.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || parsedURL.Scheme == "" {
		// scp-like syntax: git@host:owner/repo.git
		if user, rest, ok := strings.Cut(repoURL, "@"); ok && user != "" {
			if host, repoPath, ok := strings.Cut(rest, ":"); ok && host != "" && repoPath != "" {
				return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(strings.Trim(parsedURL.Path, "/"), ".git")
	if sanitizedPath == "" || strings.Contains(sanitizedPath, "..") {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	host := parsedURL.Host
	if host == "" {
		host = "local"
	}
	return filepath.Join(baseDir, host, sanitizedPath), nil
}
