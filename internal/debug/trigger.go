package debug

import (
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// armSignalTrigger toggles backtrace capture each time the configured
// signal arrives. The returned function disarms the trigger.
func (d *Debugger) armSignalTrigger() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, d.cfg.BacktraceSignal)

	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ch:
				enabled := d.toggleBacktrace()
				d.log.Info("backtrace capture toggled by signal",
					"signal", int(d.cfg.BacktraceSignal),
					"enabled", enabled,
				)
			case <-done:
				signal.Stop(ch)
				return
			}
		}
	}()

	return func() { close(done) }
}

// ArmFileTrigger toggles backtrace capture whenever the given file is
// created or written. It exists as an alternative to the signal trigger
// for environments where delivering real-time signals is awkward. The
// returned function disarms the trigger.
func (d *Debugger) ArmFileTrigger(path string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: the trigger file usually does not exist yet.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})

	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
					enabled := d.toggleBacktrace()
					d.log.Info("backtrace capture toggled by file",
						"path", path,
						"enabled", enabled,
					)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.log.Warn("trigger watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// toggleBacktrace flips the armed state and returns the new value.
// Trigger deliveries are rare, so a load/store pair is sufficient.
func (d *Debugger) toggleBacktrace() bool {
	enabled := !d.backtraceArmed.Load()
	d.backtraceArmed.Store(enabled)
	return enabled
}

// BacktraceArmed reports whether allocation backtraces are currently
// being captured.
func (d *Debugger) BacktraceArmed() bool {
	return d.backtraceArmed.Load()
}
