package decom

import (
	"context"
	"fmt"
	"time"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// CleanDirectoryAction removes the target's directory service computer
// entry. Cleanup is idempotent: an already-absent entry is a success, not a
// failure.
type CleanDirectoryAction struct {
	directory  domain.DirectoryService
	searchRoot string
	timeout    time.Duration
	out        outcomes
	logger     *logger.Logger
}

// NewCleanDirectoryAction creates the directory cleanup action.
func NewCleanDirectoryAction(
	directory domain.DirectoryService,
	searchRoot string,
	timeout time.Duration,
	clock domain.TimeProvider,
	log *logger.Logger,
) *CleanDirectoryAction {
	return &CleanDirectoryAction{
		directory:  directory,
		searchRoot: searchRoot,
		timeout:    timeout,
		out:        outcomes{phase: domain.PhaseCleanDirectory, clock: clock},
		logger:     log.With("component", "clean_directory_action"),
	}
}

// Phase implements PhaseAction.
func (a *CleanDirectoryAction) Phase() domain.Phase { return domain.PhaseCleanDirectory }

// Execute looks the entry up fresh and deletes it. The lookup is repeated
// here rather than trusting discovery-time state because the entry may have
// been removed since discovery ran.
func (a *CleanDirectoryAction) Execute(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
	findCtx, cancelFind := callTimeout(ctx, a.timeout)
	entry, err := a.directory.FindComputer(findCtx, target.Name(), a.searchRoot)
	cancelFind()
	if err != nil {
		return a.out.failure(describeErr("directory lookup", err))
	}

	if !entry.Found {
		return a.out.success("already clean: no directory entry")
	}

	delCtx, cancelDel := callTimeout(ctx, a.timeout)
	defer cancelDel()

	if err := a.directory.DeleteComputer(delCtx, entry.DistinguishedName); err != nil {
		return a.out.failure(describeErr("directory delete", err))
	}

	a.logger.Info(ctx, "directory entry removed", "target", target.Name(), "dn", entry.DistinguishedName)
	return a.out.success(fmt.Sprintf("removed %s", entry.DistinguishedName))
}
