// Package transcript parses raw SMTP reply lines into a structured
// SmtpReply, returning the raw lines so the session runner can record
// them in its wire-order transcript, and handling the multi-line replies
// real MX hosts send (continuation lines use "250-", the final line uses
// "250 ").
package transcript

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"validator-worker/internal/verdict"
)

var enhancedCodePattern = regexp.MustCompile(`^\d\.\d\.\d$`)

// ReadReply reads a full (possibly multi-line) SMTP reply from r. A
// reply ends on the first line whose 4th character is a space, or on
// any line shorter than 4 characters.
func ReadReply(r *bufio.Reader) (verdict.SmtpReply, []string, error) {
	var lines []string

	for {
		line, err := r.ReadString('\n')
		if line == "" && err != nil {
			return verdict.SmtpReply{Code: -1}, lines, err
		}
		line = strings.TrimRight(line, "\r\n")
		lines = append(lines, line)

		if len(line) < 4 || line[3] == ' ' {
			break
		}
		if err != nil {
			break
		}
	}

	return parseLines(lines), lines, nil
}

// parseLines builds an SmtpReply from the raw lines of one reply. The
// reply code comes from the first three digits of the last line; the
// enhanced status code, if present, is the second whitespace-separated
// token of the last line.
func parseLines(lines []string) verdict.SmtpReply {
	if len(lines) == 0 {
		return verdict.SmtpReply{Code: -1}
	}

	last := lines[len(lines)-1]
	code := -1
	if len(last) >= 3 {
		if n, err := strconv.Atoi(last[:3]); err == nil {
			code = n
		}
	}

	enhanced := ""
	fields := strings.Fields(last)
	if len(fields) >= 2 && enhancedCodePattern.MatchString(fields[1]) {
		enhanced = fields[1]
	}

	return verdict.SmtpReply{
		Code:     code,
		Enhanced: enhanced,
		Text:     strings.Join(lines, "\n"),
	}
}
