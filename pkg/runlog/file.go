package runlog

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ignatij/marketflow/pkg/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FileLog is the human-readable daily task summary log. Each event is one
// timestamped line appended to the file.
type FileLog struct {
	out    io.WriteCloser
	logger *logrus.Logger
}

// OpenFileLog opens path in append mode, creating parent directories as needed.
func OpenFileLog(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create run log dir for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open run log %s", path)
	}
	return NewFileLog(f), nil
}

// NewFileLog writes events to out.
func NewFileLog(out io.WriteCloser) *FileLog {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableColors:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return &FileLog{out: out, logger: l}
}

func (f *FileLog) Append(e models.RunEvent) {
	fields := logrus.Fields{
		"run_date": e.RunDate,
		"kind":     string(e.Kind),
	}
	if e.RunID != "" {
		fields["run_id"] = e.RunID
	}
	if e.Stage != "" {
		fields["stage"] = e.Stage
	}
	if e.Task != "" {
		fields["task"] = e.Task
	}
	entry := f.logger.WithFields(fields)
	if !e.LoggedAt.IsZero() {
		entry = entry.WithTime(e.LoggedAt)
	}

	msg := describe(e)
	switch e.Kind {
	case models.FailureEventKind:
		entry.Error(msg)
	case models.SkipEventKind:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}

func (f *FileLog) Close() error {
	return f.out.Close()
}

func describe(e models.RunEvent) string {
	var subject string
	switch {
	case e.Task != "":
		subject = "task " + e.Task
	case e.Stage != "":
		subject = "stage " + e.Stage
	default:
		subject = "run"
	}
	msg := subject + " " + strings.ToLower(string(e.Kind))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
