package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/sys/unix"
)

const (
	padLeft  = "        "
	minwidth = 79
)

// PrintHelp writes the flag reference for the binary called name, with usage
// text wrapped to the terminal width.
func PrintHelp(w io.Writer, name, about string) {
	fmt.Fprintln(w, name)
	if about != "" {
		fmt.Fprintln(w, helpBlock(about))
	}
	fmt.Fprintln(w, "FLAGS")
	defaults := flagDefaults()
	var sb strings.Builder
	for _, def := range flagDefs {
		sb.WriteString("    --" + def.name)
		if d := defaults[def.field]; d != "" {
			sb.WriteString("=" + d)
		}
		if def.placeholder[0] == '<' {
			sb.WriteString(" " + def.placeholder)
		} else {
			sb.WriteString(" (" + def.placeholder + ")")
		}
		sb.WriteString("\n" + helpBlock(def.usage) + "\n\n")
	}
	sb.WriteString("    --version\n" + helpBlock("print version info") + "\n\n")
	sb.WriteString("    --help\n" + helpBlock("print this help") + "\n\n")
	sb.WriteString("Every setting can also be given as " + EnvPrefix + "<NAME> in the environment, e.g. " + EnvPrefix + "METRICS_PORT.\n")
	io.WriteString(w, sb.String())
}

func flagDefaults() map[string]string {
	d := Default()
	return map[string]string{
		"host":         d.Host,
		"port":         d.Port.String(),
		"metrics_port": d.MetricsPort.String(),
		"log_level":    d.LogLevel.String(),
		"log_format":   string(d.LogFormat),
	}
}

func termWidth() int {
	ws, err := unix.IoctlGetWinsize(unix.Stdin, unix.TIOCGWINSZ)
	if err != nil {
		return -1
	}
	return int(ws.Col)
}

func helpBlock(str string) string {
	tw := termWidth()
	if tw < minwidth {
		return padLeft + str
	}
	blockWidth := tw - len(padLeft)*3
	if blockWidth < minwidth {
		blockWidth = minwidth
	}
	return padLeft + strings.ReplaceAll(wordwrap.WrapString(str, uint(blockWidth)), "\n", "\n"+padLeft)
}
