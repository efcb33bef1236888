package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/sapling"
	"github.com/jward/sapling/internal/store"
	"github.com/jward/sapling/internal/vfs"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a crate and keep the index current as files change",
	Long:  "Indexes the crate, then re-resolves after every batch of file changes. Only the queries an edit affects are re-executed; each batch logs which ones ran.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	dbPath := resolveDBPath(findRepoRoot(targetDir))
	st, err := openIndex(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sess, err := newSession(targetDir, cfg, logger)
	if err != nil {
		return err
	}
	if err := sess.load(); err != nil {
		return fmt.Errorf("loading: %w", err)
	}
	if err := refresh(ctx, sess, st, 0); err != nil {
		return err
	}

	w, err := vfs.NewWatcher(sess.loader, vfs.WithDebounce(cfg.Debounce))
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	batches, err := w.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Watching %s (database: %s)\n", targetDir, dbPath)

	// SIGHUP reloads macro scripts, which the watcher does not track.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case b, ok := <-batches:
			if !ok {
				return nil
			}
			if err := sess.apply(b); err != nil {
				if errors.Is(err, errRootRemoved) {
					return err
				}
				logger.Error("applying changes", "version", b.Version, "error", err)
				continue
			}
			if err := refresh(ctx, sess, st, b.Version); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("re-resolving", "version", b.Version, "error", err)
			}
		case <-hup:
			sess.reloadScripts()
			if err := refresh(ctx, sess, st, 0); err != nil && ctx.Err() == nil {
				logger.Error("re-resolving after script reload", "error", err)
			}
		}
	}
}

// refresh re-resolves the session's unit and rewrites the index. A write
// landing mid-resolve cancels it; the next batch resolves again.
func refresh(ctx context.Context, sess *session, st *store.Store, version uint64) error {
	start := time.Now()
	snap, err := sess.resolve(ctx)
	if errors.Is(err, sapling.ErrCancelled) && ctx.Err() == nil {
		logger.Debug("resolve cancelled by a newer revision", "version", version)
		return nil
	}
	if err != nil {
		return err
	}
	if err := st.ReplaceSnapshot(snap); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	attrs := append([]any{
		"version", version,
		"revision", snap.Metadata["revision"],
		"elapsed", time.Since(start).Round(time.Microsecond),
	}, sess.execs.take()...)
	logger.Info("index updated", attrs...)
	fmt.Fprintf(os.Stderr, "[%d] %d modules, %d bindings, %d diagnostics%s\n",
		version, len(snap.Modules), len(snap.Bindings), len(snap.Diagnostics), summarizeDiagnostics(snap.Diagnostics))
	return nil
}

func summarizeDiagnostics(diags []*store.Diagnostic) string {
	if len(diags) == 0 {
		return ""
	}
	var b strings.Builder
	for i, d := range diags {
		if i == 3 {
			fmt.Fprintf(&b, "\n  ... %d more", len(diags)-3)
			break
		}
		fmt.Fprintf(&b, "\n  %s: %s: %s", d.Severity, d.ModulePath, d.Message)
	}
	return b.String()
}
