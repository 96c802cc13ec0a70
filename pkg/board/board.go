// Package board defines the single-board computers supported by the
// rootfs and image builders.
//
// A board bundles everything that differs between targets: the Debian
// architecture, the kernel and bootloader packages, where the boot
// partition is mounted, and the boot payload the firmware expects.
// Adding a board is a matter of adding a catalog entry.
package board

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed assets/raspberrypi2/config.txt
var raspberryPi2ConfigTxt []byte

//go:embed assets/cubieboard5/boot.cmd
var cubieboard5BootCmd []byte

const (
	RaspberryPi2 = "raspberrypi2"
	Cubieboard5  = "cubieboard5"
)

type Board struct {
	Name string
	// Arch is the Debian architecture of the board's CPU.
	Arch string
	// BootMount is where the FAT boot partition is mounted on the
	// running device. The Raspberry Pi firmware convention is
	// /boot/firmware; u-boot boards read from /boot.
	BootMount string
	Console   string

	// StatusLED is the sysfs name of the LED used by the first-boot
	// sequence; DoneTrigger is the trigger it is handed back to once
	// setup finishes.
	StatusLED   string
	DoneTrigger string

	KernelPackages     []string
	BootloaderPackages []string
	ExtraPackages      []string

	// ConfigTxt is the firmware boot configuration (Raspberry Pi only).
	ConfigTxt []byte
	// BootCmd is the u-boot script source (u-boot boards only); the
	// rootfs build compiles it to boot.scr with mkimage.
	BootCmd []byte
}

// UsesUBoot reports whether the board boots through a compiled u-boot
// script rather than firmware-read configuration.
func (b Board) UsesUBoot() bool {
	return len(b.BootCmd) != 0
}

// DefaultHostname returns the hostname used when none is given.
func (b Board) DefaultHostname() string {
	return "debian-" + b.Name
}

// Packages returns the full package set installed inside the chroot.
func (b Board) Packages() []string {
	var pkgs []string
	pkgs = append(pkgs, b.KernelPackages...)
	pkgs = append(pkgs, b.BootloaderPackages...)
	pkgs = append(pkgs, b.ExtraPackages...)
	return pkgs
}

var catalog = map[string]Board{
	RaspberryPi2: {
		Name:        RaspberryPi2,
		Arch:        "armhf",
		BootMount:   "/boot/firmware",
		Console:     "ttyAMA0",
		StatusLED:   "led0",
		DoneTrigger: "mmc0",
		KernelPackages: []string{
			"linux-image-armmp",
		},
		BootloaderPackages: []string{
			"raspi-firmware",
			"firmware-brcm80211",
		},
		ExtraPackages: commonPackages,
		ConfigTxt:     raspberryPi2ConfigTxt,
	},
	Cubieboard5: {
		Name:        Cubieboard5,
		Arch:        "armhf",
		BootMount:   "/boot",
		Console:     "ttyS0",
		StatusLED:   "cubieboard5:green:usr",
		DoneTrigger: "heartbeat",
		KernelPackages: []string{
			"linux-image-armmp-lpae",
		},
		BootloaderPackages: []string{
			"u-boot-sunxi",
			"u-boot-tools",
		},
		ExtraPackages: commonPackages,
		BootCmd:       cubieboard5BootCmd,
	},
}

var commonPackages = []string{
	"openssh-server",
	"dbus",
	"ifupdown",
	"isc-dhcp-client",
	"ca-certificates",
	"initramfs-tools",
	// partprobe, needed on first boot: BLKRRPART returns EBUSY while
	// the root partition being grown is mounted.
	"parted",
	"e2fsprogs",
}

// Names returns the supported board names, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByName looks a board up by its catalog name.
func ByName(name string) (Board, error) {
	b, ok := catalog[name]
	if !ok {
		return Board{}, fmt.Errorf("unsupported board %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return b, nil
}
