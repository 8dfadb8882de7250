package airbrake

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const outcomeTimeLayout = "2006-01-02 15:04:05.000"

// OutcomeLogger records how a delivery ended. Nil arguments are ignored.
type OutcomeLogger interface {
	LogResponse(resp *Response)
	LogError(err error)
}

// outcomeFileMu serializes appends from every FileOutcomeLogger in the process
var outcomeFileMu sync.Mutex

// FileOutcomeLogger appends one tab-separated line per outcome. The file is
// opened and closed for every line.
type FileOutcomeLogger struct {
	path string
	now  func() time.Time
}

// NewFileOutcomeLogger resolves a relative path against baseDir
func NewFileOutcomeLogger(path, baseDir string) *FileOutcomeLogger {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return &FileOutcomeLogger{path: path, now: time.Now}
}

// Path returns the resolved log file path
func (l *FileOutcomeLogger) Path() string {
	return l.path
}

func (l *FileOutcomeLogger) LogResponse(resp *Response) {
	if resp == nil {
		return
	}
	l.appendLine(resp.Status.String(), resp.ID, resp.URL)
}

func (l *FileOutcomeLogger) LogError(err error) {
	if err == nil {
		return
	}
	l.appendLine(fmt.Sprintf("%T", err), err.Error())
}

func (l *FileOutcomeLogger) appendLine(fields ...string) {
	line := l.now().Format(outcomeTimeLayout) + "\t" + strings.Join(sanitizeFields(fields), "\t") + "\n"

	outcomeFileMu.Lock()
	defer outcomeFileMu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	_, _ = f.WriteString(line)
	_ = f.Close()
}

// sanitizeFields keeps every record on a single line
func sanitizeFields(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(f)
	}
	return out
}

// ZapOutcomeLogger writes outcomes to a zap logger
type ZapOutcomeLogger struct {
	logger *zap.Logger
}

func NewZapOutcomeLogger(logger *zap.Logger) *ZapOutcomeLogger {
	return &ZapOutcomeLogger{logger: logger}
}

func (l *ZapOutcomeLogger) LogResponse(resp *Response) {
	if resp == nil {
		return
	}
	l.logger.Info("Notice delivered",
		zap.Stringer("status", resp.Status),
		zap.String("id", resp.ID),
		zap.String("url", resp.URL))
}

func (l *ZapOutcomeLogger) LogError(err error) {
	if err == nil {
		return
	}
	l.logger.Error("Notice delivery failed", zap.Error(err))
}
