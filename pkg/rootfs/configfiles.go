package rootfs

import (
	"fmt"
	"strings"

	"github.com/jodersky/rpi2-mkroot/pkg/board"
)

// The files emitted here are a compatibility contract with the board's
// bootloader and kernel: the exact mount points, device nodes and apt
// components are what the flashed device expects at first boot.

func fstab(b board.Board) string {
	var sb strings.Builder
	sb.WriteString("# /etc/fstab: static file system information.\n")
	sb.WriteString("#\n")
	sb.WriteString("# <file system>  <mount point>  <type>  <options>  <dump>  <pass>\n")
	sb.WriteString("/dev/mmcblk0p2  /  ext4  errors=remount-ro  0  1\n")
	fmt.Fprintf(&sb, "/dev/mmcblk0p1  %s  vfat  defaults  0  2\n", b.BootMount)
	sb.WriteString("proc  /proc  proc  defaults  0  0\n")
	return sb.String()
}

func hosts(hostname string) string {
	var sb strings.Builder
	sb.WriteString("127.0.0.1\tlocalhost\n")
	fmt.Fprintf(&sb, "127.0.1.1\t%s\n", hostname)
	sb.WriteString("\n")
	sb.WriteString("::1\tlocalhost ip6-localhost ip6-loopback\n")
	sb.WriteString("ff02::1\tip6-allnodes\n")
	sb.WriteString("ff02::2\tip6-allrouters\n")
	return sb.String()
}

func sourcesList(release, mirror string) string {
	const components = "main contrib non-free non-free-firmware"

	var sb strings.Builder
	fmt.Fprintf(&sb, "deb %s %s %s\n", mirror, release, components)
	fmt.Fprintf(&sb, "deb %s %s-updates %s\n", mirror, release, components)
	fmt.Fprintf(&sb, "deb http://security.debian.org/debian-security %s-security %s\n", release, components)
	return sb.String()
}

func interfacesEth0() string {
	return `auto eth0
allow-hotplug eth0
iface eth0 inet dhcp
`
}
