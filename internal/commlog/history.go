package commlog

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ParseHistoryLog reads the onboard shell history, which records each
// command as an epoch stamp line "#+1152287322" followed by the command
// itself. The returned lines render the command with its wall-clock time
// so they can be merged into the comm.log archive with MergeRawLines.
func ParseHistoryLog(path string, log *slog.Logger) ([]RawLine, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	var history []RawLine
	lineCount := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		if !utf8.ValidString(raw) {
			log.Debug("could not decode history line - skipping", "file", path)
			continue
		}
		lineCount++
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "#+") {
			epoch, err := strconv.ParseFloat(raw[2:], 64)
			if err != nil {
				log.Warn("could not process history line - skipping",
					"file", path, "line_num", lineCount)
				continue
			}
			history = append(history, RawLine{TS: time.Unix(int64(epoch), 0).UTC()})
			continue
		}
		// The command for the preceding stamp line.
		if n := len(history); n > 0 {
			ts := history[n-1].TS
			history[n-1].Text = fmt.Sprintf("%s (%s)", ts.Format(legacyTimeLayout), raw)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history log: %w", err)
	}
	return history, nil
}
