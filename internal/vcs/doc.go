// Package vcs detects git branch switches and lists the files they touch.
//
// Every git call goes through an Executor, which takes an argument list (no
// shell) and applies a fixed timeout. BranchHandler never fails a check:
// command errors read as "no change", and a diff that cannot be computed is
// reported as a nil file list, which callers treat as "rescan everything".
//
//	h := vcs.NewBranchHandler(root, vcs.NewGitExecutor(5*time.Second), logger)
//	h.OnBranchChange(func(ctx context.Context, res vcs.BranchChangeResult) error {
//	    _, err := mgr.ApplyChangedPaths(ctx, res.ChangedFiles)
//	    return err
//	})
//	h.CheckBranchChange(ctx) // first call records the branch
package vcs
