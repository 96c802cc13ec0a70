// Package shell wraps exec.Command for script-like usage.
//
// Every build step in this repository is ultimately a sequence of calls
// into mature system utilities (debootstrap, sfdisk, mkfs, rsync, ...).
// The wrapper captures combined output and only surfaces it when a
// command fails, so a successful build stays quiet.
package shell

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

type CommandRunner struct {
	name  string
	args  []string
	stdin string
	dir   string
	env   []string
}

func Cmd(name string, arg ...string) *CommandRunner {
	return &CommandRunner{
		name: name,
		args: arg,
	}
}

// WithStdin feeds input to the command, used for utilities that take a
// script on standard input (sfdisk, chpasswd).
func (c *CommandRunner) WithStdin(input string) *CommandRunner {
	c.stdin = input
	return c
}

func (c *CommandRunner) WithDir(dir string) *CommandRunner {
	c.dir = dir
	return c
}

// WithEnv appends "KEY=value" entries to the inherited environment.
func (c *CommandRunner) WithEnv(env ...string) *CommandRunner {
	c.env = append(c.env, env...)
	return c
}

func (c *CommandRunner) String() string {
	return fmt.Sprintf("%s %s", c.name, strings.Join(c.args, " "))
}

// Run waits for the command to finish and returns an error if it fails
// to start or exits non-zero. Output is captured and logged on failure.
func (c *CommandRunner) Run() error {
	var output bytes.Buffer
	cmd := exec.Command(c.name, c.args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.Dir = c.dir
	if len(c.env) != 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}
	if c.stdin != "" {
		cmd.Stdin = strings.NewReader(c.stdin)
	}

	log.Tracef("Running command: %s", c)

	err := cmd.Run()
	if err != nil {
		log.Errorf("Process '%s' failed. Command output:\n%s", c, output.String())
		return fmt.Errorf("process '%s' failed: %v", c.name, err)
	}

	return nil
}

// Output runs the command and returns its trimmed standard output.
// Standard error is captured separately and included in the error.
func (c *CommandRunner) Output() (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(c.name, c.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = c.dir
	if len(c.env) != 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}
	if c.stdin != "" {
		cmd.Stdin = strings.NewReader(c.stdin)
	}

	log.Tracef("Running command: %s", c)

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("process '%s' failed: %v:\n%s", c.name, err, stderr.String())
	}

	return strings.TrimSpace(stdout.String()), nil
}

func Run(name string, arg ...string) error {
	return Cmd(name, arg...).Run()
}

func Output(name string, arg ...string) (string, error) {
	return Cmd(name, arg...).Output()
}

// RunGroup runs the commands in order, stopping at the first failure.
func RunGroup(commands ...*CommandRunner) error {
	for _, command := range commands {
		err := command.Run()
		if err != nil {
			return err
		}
	}

	return nil
}

// Available reports whether an executable can be found in PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
