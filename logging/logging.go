package logging

import (
	"io"
	"os"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"
)

// Setup configures the global logrus logger. Unknown levels fall back to
// info and are reported once the formatter is in place.
func Setup(level string, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)
	log.SetFormatter(&nested.Formatter{
		FieldsOrder:     []string{"module", "method"},
		TimestampFormat: time.DateTime,
		HideKeys:        true,
		NoColors:        out != os.Stderr && out != os.Stdout,
	})

	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		log.Warnf("unknown log level %q, using info", level)
		return
	}
	log.SetLevel(parsed)
}
