package firstboot

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// setLEDTrigger writes a kernel LED trigger through sysfs. "timer"
// blinks the LED while setup runs, the board's done trigger restores
// normal behavior afterwards.
//
// Headless devices have no other way to report progress, but a missing
// LED must never block setup, so callers treat failures as advisory.
func setLEDTrigger(ledDir, led, trigger string) error {
	if led == "" {
		return nil
	}

	path := filepath.Join(ledDir, led, "trigger")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			log.Debugf("LED %s not present, skipping signal", led)
			return nil
		}
		return err
	}

	err := os.WriteFile(path, []byte(trigger), 0o644)
	if err != nil {
		return fmt.Errorf("failed to set trigger of LED %s: %w", led, err)
	}

	log.WithField("led", led).Debugf("Set LED trigger to %s", trigger)
	return nil
}
