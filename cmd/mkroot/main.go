// mkroot builds minimal Debian root filesystems and SD card images for
// ARM single-board computers, and performs one-time device setup when
// run on the device itself.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	log "github.com/sirupsen/logrus"

	"github.com/jodersky/rpi2-mkroot/internal/config"
	"github.com/jodersky/rpi2-mkroot/pkg/board"
	"github.com/jodersky/rpi2-mkroot/pkg/diskutils"
	"github.com/jodersky/rpi2-mkroot/pkg/firstboot"
	"github.com/jodersky/rpi2-mkroot/pkg/image"
	"github.com/jodersky/rpi2-mkroot/pkg/rootfs"
)

type rootfsCmd struct {
	Target string `arg:"" help:"Directory to create the root filesystem tree in."`

	Board           string `help:"Target board, see 'mkroot boards'."`
	Release         string `help:"Debian release to bootstrap."`
	Mirror          string `help:"Debian mirror URL."`
	Hostname        string `help:"Hostname of the device. Defaults to debian-<board>."`
	SSHKey          string `help:"Public key file installed as an authorized key for root." type:"existingfile"`
	Password        string `help:"Root password to set."`
	NoDebootstrap   bool   `help:"Reuse an existing debootstrapped tree and only re-run provisioning."`
	FirstbootBinary string `help:"ARM build of mkroot to embed for the first-boot hook." type:"existingfile"`
}

func (c *rootfsCmd) Run(cfg *config.Config) error {
	err := requireRoot("building a rootfs")
	if err != nil {
		return err
	}

	b, err := board.ByName(fallback(c.Board, cfg.Rootfs.Board))
	if err != nil {
		return err
	}

	return rootfs.Build(rootfs.Options{
		Board:           b,
		Target:          c.Target,
		Hostname:        fallback(c.Hostname, cfg.Rootfs.Hostname),
		Release:         fallback(c.Release, cfg.Rootfs.Release),
		Mirror:          fallback(c.Mirror, cfg.Rootfs.Mirror),
		SSHKey:          fallback(c.SSHKey, cfg.Rootfs.SSHKey),
		Password:        fallback(c.Password, cfg.Rootfs.Password),
		SkipDebootstrap: c.NoDebootstrap,
		FirstbootBinary: c.FirstbootBinary,
	})
}

type imageCmd struct {
	RootfsDir string `arg:"" help:"Root filesystem tree built by 'mkroot rootfs'." type:"existingdir"`
	Target    string `arg:"" help:"Image file to create. Must not exist yet."`

	BootSize string `help:"Boot partition size, e.g. 100MiB."`
	Compress bool   `help:"Additionally write an xz-compressed copy of the image."`
}

func (c *imageCmd) Run(cfg *config.Config) error {
	err := requireRoot("building an image")
	if err != nil {
		return err
	}

	bootSize, err := diskutils.SizeAndUnitToBytes(fallback(c.BootSize, cfg.Image.BootSize))
	if err != nil {
		return fmt.Errorf("invalid boot partition size: %w", err)
	}

	return image.Build(image.Options{
		Target:    c.Target,
		RootfsDir: c.RootfsDir,
		BootSize:  bootSize,
		Compress:  c.Compress || cfg.Image.Compress,
	})
}

type firstbootCmd struct {
	Run firstbootRunCmd `cmd:"" help:"Run the one-time device setup sequence. Invoked from /etc/rc.firstboot on boot."`
}

type firstbootRunCmd struct {
	Marker     string `default:"/etc/rc.firstboot" help:"Hook script whose existence triggers the run."`
	RcLocal    string `default:"/etc/rc.local" help:"Startup script the hook is stripped from."`
	SkipResize bool   `help:"Do not expand the root filesystem."`
	SkipSSH    bool   `help:"Do not regenerate ssh host keys."`
}

func (c *firstbootRunCmd) Run(cfg *config.Config) error {
	err := requireRoot("first-boot setup")
	if err != nil {
		return err
	}

	opts := firstboot.DefaultOptions()
	opts.Marker = c.Marker
	opts.RcLocal = c.RcLocal
	opts.SkipResize = c.SkipResize
	opts.SkipSSH = c.SkipSSH
	return firstboot.Run(opts)
}

type boardsCmd struct{}

func (c *boardsCmd) Run(cfg *config.Config) error {
	for _, name := range board.Names() {
		fmt.Println(name)
	}
	return nil
}

type cli struct {
	Verbose bool   `short:"v" help:"Enable verbose logging."`
	Config  string `short:"c" help:"YAML config file with build settings." type:"existingfile"`

	Rootfs    rootfsCmd    `cmd:"" help:"Bootstrap and provision a Debian root filesystem tree."`
	Image     imageCmd     `cmd:"" help:"Package a root filesystem tree into a partitioned SD card image."`
	Firstboot firstbootCmd `cmd:"" help:"On-device first-boot operations."`
	Boards    boardsCmd    `cmd:"" help:"List supported boards."`
}

func fallback(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

// requireRoot rejects early instead of failing halfway through a
// debootstrap or a mount with a confusing permission error.
func requireRoot(operation string) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("%s requires root privileges", operation)
	}
	return nil
}

func main() {
	var cli cli
	ctx := kong.Parse(&cli,
		kong.Name("mkroot"),
		kong.Description("Build Debian root filesystems and SD card images for ARM single-board computers."),
		kong.UsageOnError(),
	)

	if cli.Verbose {
		log.SetLevel(log.TraceLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	cfg, err := config.Load(cli.Config)
	ctx.FatalIfErrorf(err)

	err = ctx.Run(cfg)
	ctx.FatalIfErrorf(err)
}
