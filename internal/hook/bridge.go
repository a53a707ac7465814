package hook

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/bravo68web/gitreceive/internal/gitutil"
	"github.com/bravo68web/gitreceive/internal/identity"
	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
	"github.com/bravo68web/gitreceive/pkg/logger"
)

// RefUpdate is one ref update line as git feeds it to the pre-receive
// hook: "<old-rev> <new-rev> <ref-name>".
type RefUpdate struct {
	OldRev  string
	NewRev  string
	RefName string
}

// Deleted reports whether the update removes the ref
func (u RefUpdate) Deleted() bool {
	return isZeroRev(u.NewRev)
}

// ParseRefUpdates reads ref update lines until end of stream. Lines
// with fewer than three fields are ignored, matching git's contract of
// one well-formed line per updated ref.
func ParseRefUpdates(r io.Reader) ([]RefUpdate, error) {
	var updates []RefUpdate

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		updates = append(updates, RefUpdate{
			OldRev:  fields[0],
			NewRev:  fields[1],
			RefName: fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.IOError("reading ref updates", err)
	}

	return updates, nil
}

// Bridge runs as the pre-receive hook: it packages each pushed
// revision and delivers it to the receiver program, relaying the
// receiver's output back to the pushing client.
type Bridge struct {
	// RepoName is the repository name the client pushed to
	RepoName string

	// RepoPath is the bare repository on disk
	RepoPath string

	// Identity of the pushing key, threaded through the environment
	// by the dispatcher
	Identity identity.Identity

	// ReceiverPath is the external receiver program
	ReceiverPath string

	// OnlyRef, when set, limits delivery to a single ref name
	OnlyRef string

	// Strict rejects the push when the receiver exits non-zero
	Strict bool

	// Output is relayed to the client; git forwards it verbatim as
	// informational text over the wire protocol's side channel
	Output io.Writer

	Log *logger.Logger
}

// Run reads ref updates from input and delivers each relevant one.
// The receiver fires once per updated ref, in input order. A nil
// return accepts the push; any error rejects every ref update.
func (b *Bridge) Run(ctx context.Context, input io.Reader) error {
	log := b.logger()

	updates, err := ParseRefUpdates(input)
	if err != nil {
		return err
	}

	for _, update := range updates {
		if b.OnlyRef != "" && update.RefName != b.OnlyRef {
			log.Debug("skipping ref outside delivery filter",
				logger.Ref(update.RefName),
			)
			continue
		}
		if update.Deleted() {
			fmt.Fprintf(b.Output, "gitreceive: %s deleted, nothing to deliver\n", update.RefName)
			continue
		}

		if err := b.deliver(ctx, update); err != nil {
			if apperrors.IsRecoverable(err) {
				// A missing receiver must not block legitimate pushes
				fmt.Fprintf(b.Output, "gitreceive: %v\n", err)
				log.Warn("receiver unavailable", logger.Error(err), logger.Ref(update.RefName))
				continue
			}
			return err
		}
	}

	return nil
}

// deliver archives the new revision and streams it into one receiver
// invocation. The archive copy and the output relay run concurrently
// so neither the revision nor the receiver output has to fit in
// memory, and the client sees progress while the receiver runs.
func (b *Bridge) deliver(ctx context.Context, update RefUpdate) error {
	log := b.logger()

	archive, err := gitutil.Open(b.RepoPath, update.NewRev)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, b.ReceiverPath,
		b.RepoName,
		update.NewRev,
		b.Identity.Username,
		b.Identity.Fingerprint,
	)
	cmd.Stdout = b.Output
	cmd.Stderr = b.Output

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return apperrors.IOError("opening receiver input", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return apperrors.NewAppError(apperrors.CodeFatal,
			"cannot start receiver "+b.ReceiverPath,
			fmt.Errorf("%w: %v", apperrors.ErrReceiverUnavailable, err))
	}

	// Debug only: stderr reaches the pushing client as remote noise
	log.Debug("delivering push to receiver",
		logger.Repository(b.RepoName),
		logger.Ref(update.RefName),
		logger.Revision(update.NewRev),
		logger.Username(b.Identity.Username),
	)

	streamDone := make(chan error, 1)
	go func() {
		err := archive.WriteTar(stdin)
		stdin.Close()
		streamDone <- err
	}()

	waitErr := cmd.Wait()

	if streamErr := <-streamDone; streamErr != nil {
		if isClosedPipe(streamErr) {
			// The receiver may legitimately exit before consuming the
			// whole archive; a broken pipe here is not a push failure.
			log.Debug("receiver closed input early", logger.Error(streamErr))
		} else {
			// The object store could not produce the pushed content
			fmt.Fprintf(b.Output, "gitreceive: cannot read revision %s: %v\n", update.NewRev, streamErr)
			return apperrors.NewAppError(apperrors.CodeFatal,
				"revision "+update.NewRev+" unreadable during archive",
				fmt.Errorf("%w: %v", apperrors.ErrCorruptRevision, streamErr))
		}
	}

	if waitErr != nil {
		if b.Strict {
			return apperrors.NewAppError(apperrors.CodeFatal,
				"receiver exited non-zero under strict policy",
				fmt.Errorf("%w: %v", apperrors.ErrReceiverRejected, waitErr))
		}
		fmt.Fprintf(b.Output, "gitreceive: receiver exited with error: %v\n", waitErr)
		log.Warn("receiver exited non-zero",
			logger.Repository(b.RepoName),
			logger.Ref(update.RefName),
			logger.Error(waitErr),
		)
	}

	return nil
}

func (b *Bridge) logger() *logger.Logger {
	if b.Log != nil {
		return b.Log
	}
	return logger.Get().WithFields(logger.Component("hook-bridge"))
}

// isClosedPipe reports whether err came from writing to a pipe the
// receiver had already closed
func isClosedPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

// isZeroRev reports whether rev is git's all-zeros null object id
func isZeroRev(rev string) bool {
	if rev == "" {
		return false
	}
	for _, c := range rev {
		if c != '0' {
			return false
		}
	}
	return true
}
