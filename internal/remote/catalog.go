package remote

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const argPlaceholder = "{arg}"

// DefaultReplLogPath is the PostgreSQL log scanned by the repl_logs command.
const DefaultReplLogPath = "/var/log/postgresql/postgresql-15-main.log"

var packageName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9.+:~-]{0,127}$`)

// Command is a catalog entry. Template runs when no argument is given.
// WithArg, when set, runs instead for a single argument, substituted for
// {arg} after validation and quoting.
type Command struct {
	Template string
	WithArg  string
}

// Catalog maps command names to their templates.
type Catalog map[string]Command

// DefaultCatalog returns the diagnostic commands the bot exposes.
func DefaultCatalog(replLogPath string) Catalog {
	if replLogPath == "" {
		replLogPath = DefaultReplLogPath
	}
	return Catalog{
		"release":   {Template: "uname -r"},
		"processor": {Template: "uname -p"},
		"hostname":  {Template: "uname -n"},
		"kernel":    {Template: "uname -v"},
		"uptime":    {Template: "uptime -p"},
		"df":        {Template: "df -h"},
		"free":      {Template: "free -m"},
		"mpstat":    {Template: "mpstat -A"},
		"who":       {Template: "who"},
		"last":      {Template: "last"},
		"critical":  {Template: "journalctl --priority=crit | tail -n 5"},
		"ps":        {Template: "ps -a"},
		"ss":        {Template: "ss -tlpn"},
		"packages": {
			Template: `dpkg-query -f '${binary:Package}\n' -W`,
			WithArg:  "apt show " + argPlaceholder,
		},
		"services":  {Template: "systemctl list-units --type=service"},
		"repl_logs": {Template: "cat " + quote(replLogPath)},
	}
}

// Names returns the catalog's command names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render returns the shell command for name and args.
func (c Catalog) Render(name string, args ...string) (string, error) {
	cmd, ok := c[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	switch {
	case len(args) == 0:
		return cmd.Template, nil
	case len(args) == 1 && cmd.WithArg != "":
		if !packageName.MatchString(args[0]) {
			return "", fmt.Errorf("%w: %q", ErrInvalidArgument, args[0])
		}
		return strings.ReplaceAll(cmd.WithArg, argPlaceholder, quote(args[0])), nil
	default:
		return "", fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrInvalidArgument, name, arity(cmd), len(args))
	}
}

func arity(cmd Command) int {
	if cmd.WithArg != "" {
		return 1
	}
	return 0
}

// quote wraps s in single quotes for a POSIX shell.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
