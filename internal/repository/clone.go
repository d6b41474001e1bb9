// Package repository materialises a scan source on local disk, cloning
// remote git repositories with go-git when needed.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/CosmoTheDev/codesense/models"
)

// Checkout is a source tree ready to scan.
type Checkout struct {
	LocalPath string
	Name      string
	Branch    string
	Commit    string
	tmpDir    bool // true if we created a temp dir and should clean it
}

// CloneManager clones remote sources into temporary directories.
type CloneManager struct {
	// Token is used for HTTPS basic auth when set.
	Token string
}

// NewCloneManager creates a CloneManager.
func NewCloneManager(token string) *CloneManager {
	return &CloneManager{Token: token}
}

// Prepare returns a local checkout of src. Local paths are validated and
// returned as-is; remote sources are shallow-cloned into a temp dir that
// Cleanup removes.
func (cm *CloneManager) Prepare(ctx context.Context, src models.Source) (*Checkout, error) {
	if !src.Remote() {
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", src.Path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("scan path %s is not a directory", abs)
		}
		return &Checkout{LocalPath: abs, Name: filepath.Base(abs)}, nil
	}
	return cm.Clone(ctx, src.CloneURL, src.Branch)
}

// Clone clones the repository at repoURL to a temporary directory.
// branch is optional (defaults to the remote HEAD).
func (cm *CloneManager) Clone(ctx context.Context, repoURL, branch string) (*Checkout, error) {
	tmpDir, err := os.MkdirTemp("", "codesense-clone-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	cloneOpts := &gogit.CloneOptions{
		URL:   repoURL,
		Depth: 1, // shallow clone for speed
	}
	if cm.Token != "" {
		cloneOpts.Auth = &githttp.BasicAuth{
			Username: "codesense",
			Password: cm.Token,
		}
	}
	if branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		cloneOpts.SingleBranch = true
	}

	slog.Debug("Cloning repository", "url", repoURL, "branch", branch, "depth", 1, "dest", tmpDir)

	repo, err := gogit.PlainCloneContext(ctx, tmpDir, false, cloneOpts)
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("cloning %s: %w", repoURL, err)
	}
	head, err := repo.Head()
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	resolvedBranch := head.Name().Short()
	if resolvedBranch == "" {
		resolvedBranch = branch
	}
	slog.Info("Cloned repository", "url", repoURL, "branch", resolvedBranch, "commit", head.Hash().String()[:12])

	return &Checkout{
		LocalPath: tmpDir,
		Name:      RepoName(repoURL),
		Branch:    resolvedBranch,
		Commit:    head.Hash().String(),
		tmpDir:    true,
	}, nil
}

// Cleanup removes the temporary directory created during Clone.
func (cm *CloneManager) Cleanup(co *Checkout) {
	if co == nil || !co.tmpDir {
		return
	}
	if err := os.RemoveAll(co.LocalPath); err != nil {
		slog.Warn("Failed to clean up clone directory", "path", co.LocalPath, "error", err)
	}
}

// RepoName extracts "owner/repo" from a git URL.
// Supports HTTPS (https://github.com/owner/repo.git) and SSH (git@github.com:owner/repo.git).
func RepoName(repoURL string) string {
	u := strings.TrimSuffix(strings.TrimSuffix(repoURL, "/"), ".git")

	if strings.Contains(u, "://") {
		parts := strings.Split(u, "/")
		if len(parts) >= 2 {
			return parts[len(parts)-2] + "/" + parts[len(parts)-1]
		}
	}
	// SSH format: git@github.com:owner/repo
	if idx := strings.Index(u, ":"); idx != -1 {
		return u[idx+1:]
	}
	return filepath.Base(u)
}
