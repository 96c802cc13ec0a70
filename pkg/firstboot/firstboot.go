// Package firstboot finishes device-specific initialization on the
// first power-up of a flashed device.
//
// A shared image cannot contain per-device state: SSH host keys and
// the machine id must be unique, and the root filesystem must grow to
// whatever card it was written to. The sequence runs from /etc/rc.local
// via /etc/rc.firstboot and removes both hooks once it has succeeded.
//
// Any failing step aborts the run before the self-deactivation step,
// so the whole sequence re-runs on the next boot. Every step is
// therefore written to be safe to repeat.
package firstboot

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"github.com/jodersky/rpi2-mkroot/internal/file"
	"github.com/jodersky/rpi2-mkroot/pkg/board"
	"github.com/jodersky/rpi2-mkroot/pkg/rootfs"
)

type Options struct {
	// Root is the filesystem root the sequence operates on. Anything
	// other than "/" is only useful for tests.
	Root string
	// Marker is the hook script whose existence triggers the run.
	Marker string
	// RcLocal is the startup script invoking the marker.
	RcLocal string
	// LEDDir is the sysfs LED class directory.
	LEDDir string

	SkipResize bool
	SkipSSH    bool
}

// DefaultOptions are the paths used on a real device.
func DefaultOptions() Options {
	return Options{
		Root:    "/",
		Marker:  "/etc/rc.firstboot",
		RcLocal: "/etc/rc.local",
		LEDDir:  "/sys/class/leds",
	}
}

type step struct {
	name string
	skip bool
	// optional steps log failures instead of aborting the sequence.
	optional bool
	run      func() error
}

// Run executes the first-boot sequence. If the marker script is gone
// the sequence already completed on an earlier boot and this is a
// no-op.
func Run(opts Options) error {
	exists, err := file.Exists(opts.Marker)
	if err != nil {
		return err
	}
	if !exists {
		log.Info("First-boot setup already completed, nothing to do.")
		return nil
	}

	b := boardFromManifest(opts.Root)

	steps := []step{
		{
			name:     "signal setup start",
			optional: true,
			run: func() error {
				return setLEDTrigger(opts.LEDDir, b.StatusLED, "timer")
			},
		},
		{
			name: "regenerate ssh host keys",
			skip: opts.SkipSSH,
			run: func() error {
				return regenerateSSHHostKeys(opts.Root)
			},
		},
		{
			name: "expand root filesystem",
			skip: opts.SkipResize,
			run:  expandRootFilesystem,
		},
		{
			name: "regenerate machine id",
			run: func() error {
				return regenerateMachineId(opts.Root)
			},
		},
		{
			name: "rebuild initramfs",
			run:  rebuildInitramfs,
		},
		{
			name: "restart networking",
			run:  restartNetworking,
		},
		{
			name: "deactivate first-boot hook",
			run: func() error {
				return Deactivate(opts.Marker, opts.RcLocal)
			},
		},
		{
			name:     "signal setup finished",
			optional: true,
			run: func() error {
				return setLEDTrigger(opts.LEDDir, b.StatusLED, b.DoneTrigger)
			},
		},
	}

	return runSteps(steps)
}

func runSteps(steps []step) error {
	for _, s := range steps {
		if s.skip {
			log.Infof("%s %s", s.name, color.YellowString("(skipped)"))
			continue
		}

		log.Infof("%s (started)", s.name)
		err := s.run()
		if err != nil {
			if s.optional {
				log.WithError(err).Warnf("%s %s", s.name, color.YellowString("(ignored failure)"))
				continue
			}
			log.Errorf("%s %s", s.name, color.RedString("(failed)"))
			return fmt.Errorf("first-boot step '%s' failed: %w", s.name, err)
		}
		log.Infof("%s %s", s.name, color.GreenString("(done)"))
	}

	return nil
}

// boardFromManifest recovers the board this tree was built for. A
// missing manifest degrades to defaults rather than blocking boot.
func boardFromManifest(root string) board.Board {
	manifest, err := rootfs.ReadManifest(root)
	if err != nil {
		log.WithError(err).Warn("No build manifest, assuming Raspberry Pi 2 defaults")
		b, _ := board.ByName(board.RaspberryPi2)
		return b
	}

	b, err := board.ByName(manifest.Board)
	if err != nil {
		log.WithError(err).Warn("Unknown board in build manifest, assuming Raspberry Pi 2 defaults")
		b, _ = board.ByName(board.RaspberryPi2)
		return b
	}

	return b
}

// Deactivate removes the marker script and strips its invocation from
// the startup script. This is the terminal state transition: once it
// completes, no later boot re-runs the sequence.
func Deactivate(marker, rcLocal string) error {
	err := os.Remove(marker)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", marker, err)
	}

	info, err := os.Stat(rcLocal)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	lines, err := file.ReadLines(rcLocal)
	if err != nil {
		return err
	}

	kept := lines[:0]
	for _, line := range lines {
		if invokesMarker(line, marker) {
			continue
		}
		kept = append(kept, line)
	}

	return file.WriteLines(kept, rcLocal, info.Mode().Perm())
}

func invokesMarker(line, marker string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return trimmed == marker || strings.HasPrefix(trimmed, marker+" ")
}
