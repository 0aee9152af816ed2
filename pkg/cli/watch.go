package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

func newWatchCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "watch",
		Description: "Revalidate a rule set file whenever it changes",
		Flags:       newFlagSet("watch", out),
		out:         out,
	}

	file := cmd.Flags.String("rules", "", "Rule set file to watch")
	delay := cmd.Flags.Duration("delay", 250*time.Millisecond, "Quiet period before revalidating")
	logLevel := cmd.Flags.String("log-level", "info", "Log level")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *file == "" {
			return fmt.Errorf("--rules is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := &RuleWatcher{
			Path:   *file,
			Delay:  *delay,
			Logger: newLogger(out, *logLevel),
		}
		return w.Run(ctx)
	}

	return cmd
}

func newLogger(out io.Writer, level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// RuleWatcher recompiles a rule set file after every change and reports
// whether it is still valid
type RuleWatcher struct {
	Path   string
	Delay  time.Duration
	Logger *logrus.Logger

	// OnReload, when set, receives every successfully compiled model
	OnReload func(*rbac.RuleModel)
	// OnError, when set, receives every load or compile failure
	OnError func(error)
}

// Run validates the file once, then watches its directory until ctx is done.
// The directory is watched rather than the file so that editors replacing
// the file by rename are followed.
func (w *RuleWatcher) Run(ctx context.Context) error {
	if w.Logger == nil {
		w.Logger = logrus.StandardLogger()
	}

	path, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", w.Path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w.reload(path)
	w.Logger.WithField("file", path).Info("Watching rule set for changes")

	timer := time.NewTimer(w.Delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Stopped watching rule set")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.Logger.WithField("op", event.Op.String()).Debug("Rule set changed")
			timer.Reset(w.Delay)
		case <-timer.C:
			w.reload(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.WithError(err).Warn("Watcher error")
		}
	}
}

func (w *RuleWatcher) reload(path string) {
	model, err := rbac.LoadRuleModel(path)
	if err != nil {
		w.Logger.WithError(err).Error("Rule set is invalid")
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}

	w.Logger.WithFields(logrus.Fields{
		"roles": len(model.Roles()),
		"rules": model.RuleCount(),
	}).Info("Rule set is valid")
	if w.OnReload != nil {
		w.OnReload(model)
	}
}
