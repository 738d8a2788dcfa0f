package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/howeyc/gopass"

	"github.com/rflorenc/pan-deduper/internal/config"
)

// console is the operator's terminal.
type console struct {
	in       *bufio.Reader
	out      io.Writer
	errOut   io.Writer
	password func(prompt string) (string, error)
}

func newConsole(in, out *os.File) *console {
	return &console{
		in:     bufio.NewReader(in),
		out:    out,
		errOut: os.Stderr,
		password: func(prompt string) (string, error) {
			p, err := gopass.GetPasswdPrompt(prompt, true, in, out)
			return string(p), err
		},
	}
}

func (c *console) println(s string) {
	fmt.Fprintln(c.out, s)
}

func (c *console) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ask repeats question until the answer is yes or no. End of input is no.
func (c *console) ask(question string) bool {
	if !strings.HasSuffix(question, ": ") {
		question += " (y/n): "
	}
	for {
		answer, err := c.readLine(question)
		if err != nil {
			return false
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		c.println("Please answer y or n")
	}
}

// credentials prompts for whatever the settings lack to log in to Panorama.
func (c *console) credentials(cfg *config.Config) error {
	if cfg.XMLFile != "" || cfg.Panorama.APIKey != "" {
		return nil
	}
	if cfg.Panorama.Host == "" {
		host, err := c.readLine("Panorama IP or FQDN: ")
		if err != nil {
			return fmt.Errorf("reading host: %w", err)
		}
		cfg.Panorama.Host = host
	}
	if cfg.Panorama.Username == "" {
		user, err := c.readLine("Username: ")
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		cfg.Panorama.Username = user
	}
	if cfg.Panorama.Password == "" {
		pass, err := c.password("Password: ")
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		cfg.Panorama.Password = pass
	}
	return nil
}
