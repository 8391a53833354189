package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"habitTrackerAPI/internal/client"
	"habitTrackerAPI/internal/config"
	"habitTrackerAPI/internal/habit"
	"habitTrackerAPI/internal/habitsync"
)

var ErrNotLoggedIn = errors.New("not logged in; run `habitctl login` first")

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	faintStyle = lipgloss.NewStyle().Faint(true)
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

// TokenStore persists session tokens between invocations.
type TokenStore interface {
	Load(apiURL, email string) (string, error)
	Save(apiURL, email, token string) error
	Delete(apiURL, email string) error
}

// KeyringTokens stores tokens in the OS keyring.
type KeyringTokens struct{}

func (KeyringTokens) Load(apiURL, email string) (string, error) {
	return config.LoadToken(apiURL, email)
}

func (KeyringTokens) Save(apiURL, email, token string) error {
	return config.SaveToken(apiURL, email, token)
}

func (KeyringTokens) Delete(apiURL, email string) error {
	return config.DeleteToken(apiURL, email)
}

// Context is handed to every command's Run method.
type Context struct {
	Ctx     context.Context
	Config  *config.Client
	Client  *client.Client
	Tracker *habitsync.Tracker
	Tokens  TokenStore
	In      io.Reader
	Out     io.Writer

	in *bufio.Reader
}

func (c *Context) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) requireSession() error {
	if c.Client.Token() == "" {
		return ErrNotLoggedIn
	}
	return nil
}

// prompt reads one line from In. Used for passwords not given as flags.
func (c *Context) prompt(label string) (string, error) {
	if c.in == nil {
		c.in = bufio.NewReader(c.In)
	}
	c.printf("%s: ", label)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// secret reads a password without echo when In is a terminal and falls
// back to a plain line otherwise.
func (c *Context) secret(label string) (string, error) {
	f, ok := c.In.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return c.prompt(label)
	}
	c.printf("%s: ", label)
	pw, err := readPassword(int(f.Fd()))
	c.printf("\n")
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return string(pw), nil
}

// load refreshes local state, keeping whatever is cached on failure.
func (c *Context) load() error {
	if err := c.requireSession(); err != nil {
		return err
	}
	return c.Tracker.Load(c.Ctx)
}

// resolveHabit finds a habit by id, id prefix or case-insensitive name.
func (c *Context) resolveHabit(ref string) (habit.Habit, error) {
	ref = strings.TrimSpace(ref)
	if h, ok := c.Tracker.Habit(ref); ok {
		return h, nil
	}
	var matches []habit.Habit
	for _, h := range c.Tracker.Habits() {
		if strings.EqualFold(h.Name, ref) || (len(ref) >= 4 && strings.HasPrefix(h.ID, ref)) {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return habit.Habit{}, fmt.Errorf("no habit matches %q", ref)
	case 1:
		return matches[0], nil
	}
	return habit.Habit{}, fmt.Errorf("%q matches %d habits; use the id", ref, len(matches))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dots(done []bool) string {
	var b strings.Builder
	for _, d := range done {
		if d {
			b.WriteString(doneStyle.Render("●"))
		} else {
			b.WriteString(faintStyle.Render("○"))
		}
	}
	return b.String()
}
