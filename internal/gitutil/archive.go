// Package gitutil reads pushed revisions out of a bare repository and
// serializes them for delivery to the receiver program.
package gitutil

import (
	"archive/tar"
	"io"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
)

// TreeArchive is an uncompressed tar rendition of one commit's tree.
// Opening resolves the commit and tree up front so an unreadable
// revision is detected before any receiver is started; writing streams
// file contents without buffering the archive.
type TreeArchive struct {
	tree    *object.Tree
	modTime time.Time
}

// Open resolves the revision inside the repository at repoPath. A
// revision that cannot be resolved to a commit with a readable tree
// indicates repository corruption and fails with CorruptRevision.
func Open(repoPath, rev string) (*TreeArchive, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, apperrors.GitError("open of "+repoPath, err)
	}

	hash := plumbing.NewHash(rev)
	if hash.IsZero() {
		return nil, apperrors.Fatal("revision "+rev+" is not a valid object id", apperrors.ErrCorruptRevision)
	}

	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.CodeFatal, "revision "+rev+" unreadable", apperrors.ErrCorruptRevision)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.CodeFatal, "tree of "+rev+" unreadable", apperrors.ErrCorruptRevision)
	}

	return &TreeArchive{
		tree:    tree,
		modTime: commit.Committer.When,
	}, nil
}

// WriteTar streams the tree as an uncompressed tar archive
func (a *TreeArchive) WriteTar(w io.Writer) error {
	tw := tar.NewWriter(w)

	err := a.tree.Files().ForEach(func(f *object.File) error {
		return a.writeFile(tw, f)
	})
	if err != nil {
		return apperrors.Wrap(err, "archiving tree")
	}

	return tw.Close()
}

// writeFile writes one tree entry to the tar stream
func (a *TreeArchive) writeFile(tw *tar.Writer, f *object.File) error {
	osMode, err := f.Mode.ToOSFileMode()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    f.Name,
		Mode:    int64(osMode.Perm()),
		ModTime: a.modTime,
	}

	if f.Mode == filemode.Symlink {
		target, err := f.Contents()
		if err != nil {
			return err
		}
		header.Typeflag = tar.TypeSymlink
		header.Linkname = target
		return tw.WriteHeader(header)
	}

	header.Typeflag = tar.TypeReg
	header.Size = f.Blob.Size
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	reader, err := f.Blob.Reader()
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(tw, reader)
	return err
}
