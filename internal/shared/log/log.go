package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Output is where module loggers write. Tests swap it for io.Discard.
var Output io.Writer = os.Stderr

func New(module string) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:           Output,
		TimeFormat:    "15:04",
		PartsOrder:    []string{"time", "level", "module", "message"},
		FieldsExclude: []string{"module"},
	}

	out.FormatPartValueByName = func(i any, s string) string {
		if s == "module" && i != nil {
			return strings.ToUpper(fmt.Sprintf("%s", i))
		}
		return ""
	}

	out.FormatFieldName = func(i any) string {
		return fmt.Sprintf("\n         \033[30m- \033[36m%s: \033[0m", i)
	}

	out.FormatErrFieldName = func(i any) string {
		return fmt.Sprintf("\n         \033[30m- \033[31m%s: \033[0m", i)
	}

	return zerolog.New(out).
		With().
		Timestamp().
		Str("module", module).
		Logger()
}

// SetLevel sets the global level from a name such as "debug" or "warn".
// An empty name leaves the level untouched.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", name, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// Nop returns a logger that discards everything.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
