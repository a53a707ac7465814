// Package repository maps requested repository names to bare
// repositories under the shared account's home, creating them on first
// use.
package repository

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"

	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
	"github.com/bravo68web/gitreceive/pkg/logger"
)

// Repository represents a resolved bare repository
type Repository struct {
	// Name is the normalized repository name as requested by the client
	Name string

	// Path is the absolute on-disk path of the bare repository
	Path string
}

// HooksDir returns the repository's hook directory
func (r *Repository) HooksDir() string {
	return filepath.Join(r.Path, "hooks")
}

// Resolver resolves repository names under one account home
type Resolver struct {
	home string
	log  *logger.Logger
}

// NewResolver creates a Resolver rooted at the account home directory
func NewResolver(home string) *Resolver {
	return &Resolver{
		home: home,
		log:  logger.Get().WithFields(logger.Component("repository")),
	}
}

// Resolve normalizes and validates the requested name and ensures a
// bare repository exists at the resolved path, creating it on first
// use. Creation is idempotent: losing a creation race to a concurrent
// session is treated as success.
func (r *Resolver) Resolve(requested string) (*Repository, error) {
	repo, err := r.Locate(requested)
	if err != nil {
		return nil, err
	}

	if _, err := git.PlainOpen(repo.Path); err == nil {
		return repo, nil
	}

	if _, err := git.PlainInit(repo.Path, true); err != nil {
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			// A concurrent session created it first
			return repo, nil
		}
		return nil, apperrors.GitError("init of "+repo.Name, err)
	}

	r.log.Info("created bare repository",
		logger.Repository(repo.Name),
		logger.String("path", repo.Path),
	)
	return repo, nil
}

// Locate resolves the requested name to a path without creating
// anything on disk
func (r *Resolver) Locate(requested string) (*Repository, error) {
	name, err := normalizeName(requested)
	if err != nil {
		return nil, err
	}

	return &Repository{
		Name: name,
		Path: filepath.Join(r.home, name),
	}, nil
}

// normalizeName strips a trailing .git suffix and rejects names that
// would escape the account home
func normalizeName(requested string) (string, error) {
	name := strings.TrimSpace(requested)
	name = strings.TrimSuffix(name, ".git")

	if name == "" {
		return "", apperrors.Usage("empty repository name", apperrors.ErrBadCommand)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "~") {
		return "", apperrors.Usage("absolute repository path rejected", apperrors.ErrPathTraversal)
	}
	for _, part := range strings.Split(name, "/") {
		switch part {
		case "", ".", "..":
			return "", apperrors.Usage("repository name escapes account home", apperrors.ErrPathTraversal)
		}
	}

	return name, nil
}
