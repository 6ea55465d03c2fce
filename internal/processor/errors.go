package processor

import (
	"errors"

	"github.com/go-while/go-pugbin/internal/parts"
)

var (
	// ErrGroupNotFound means the group has no row in the database.
	ErrGroupNotFound = errors.New("group not found")

	// ErrPrerequisite means Backfill ran on a group Update never bootstrapped.
	ErrPrerequisite = errors.New("group has no first article, run update first")

	// ErrBootstrap means no start article could be found for a new group.
	ErrBootstrap = errors.New("cannot resolve start article for new group")

	// ErrInconsistentSource means the server's newest article is behind the
	// stored last article. The cursor is left alone for the operator.
	ErrInconsistentSource = errors.New("server last article is behind stored watermark")

	// ErrScanEmpty means a batch window came back without any article.
	ErrScanEmpty = errors.New("scan returned no articles")

	// ErrPersist means saving a batch or its watermark failed.
	ErrPersist = errors.New("persist failed")

	// ErrGroupBusy means another Update or Backfill holds the group.
	ErrGroupBusy = errors.New("group is already being processed")

	// ErrPartUnresolved is re-exported so callers need not import parts.
	ErrPartUnresolved = parts.ErrPartUnresolved
)
