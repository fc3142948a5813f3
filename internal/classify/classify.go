// Package classify maps an SMTP reply (code, enhanced status code,
// text) to a recipient status and a short diagnostic tag, with
// enhanced-status-code precedence checked ahead of plain code ranges
// and text-substring fallbacks for cases a bare code can't disambiguate.
package classify

import (
	"strings"

	"validator-worker/internal/verdict"
)

// Classify checks, in order: enhanced status code, then code-based
// rules, then text fallbacks, defaulting to UnknownFailure/Unclassified.
func Classify(code int, enhanced string, text string) (verdict.RecipientStatus, string) {
	lower := strings.ToLower(text)

	if status, tag, ok := classifyEnhanced(enhanced); ok {
		return status, tagOrTextOverride(code, tag, lower)
	}

	return classifyCode(code, lower)
}

func classifyEnhanced(enhanced string) (verdict.RecipientStatus, string, bool) {
	switch enhanced {
	case "5.1.1", "5.1.0":
		return verdict.StatusUserNotFound, "UserNotFound", true
	case "4.2.1", "4.3.0", "4.4.7":
		return verdict.StatusTemporaryFailure, "Temporary", true
	case "5.7.1":
		return verdict.StatusBlacklisted, "BlockedByBlacklist", true
	}
	return "", "", false
}

// tagOrTextOverride lets a blacklist-flavored message win the tag even
// when the enhanced code alone didn't indicate it, so 5.1.1 replies that
// also mention spamhaus still surface a blacklist tag in logs.
func tagOrTextOverride(code int, tag string, lowerText string) string {
	if containsAny(lowerText, "blacklist", "spamhaus", "blocked") {
		return "BlockedByBlacklist"
	}
	return tag
}

func classifyCode(code int, lowerText string) (verdict.RecipientStatus, string) {
	switch {
	case code >= 250 && code <= 259:
		return verdict.StatusValid, diagnosticTagForCode(code, lowerText)

	case code == 252 || (code >= 400 && code <= 499):
		return verdict.StatusTemporaryFailure, diagnosticTagForCode(code, lowerText)

	case code == 550 || containsAny(lowerText, "user unknown", "no such user", "recipient address rejected"):
		return verdict.StatusUserNotFound, diagnosticTagForCode(code, lowerText)

	case containsAny(lowerText, "blacklist", "spamhaus", "blocked"):
		return verdict.StatusBlacklisted, diagnosticTagForCode(code, lowerText)

	case code >= 500 && code <= 599:
		return verdict.StatusUnknownFailure, diagnosticTagForCode(code, lowerText)
	}

	return verdict.StatusUnknownFailure, "Unclassified"
}

// diagnosticTagForCode maps an SMTP code to a tag, with text fallbacks
// taking precedence over the bare code for 550/451/554 where the
// remote server's wording disambiguates the reason.
func diagnosticTagForCode(code int, lowerText string) string {
	if strings.Contains(lowerText, "relay access denied") {
		return "RelayDenied"
	}
	if strings.Contains(lowerText, "not permitted") {
		return "AccessDenied"
	}
	if strings.Contains(lowerText, "greylist") {
		return "Greylisted"
	}

	switch code {
	case 250:
		return "Accepted"
	case 251:
		return "Forwarded"
	case 252:
		return "CannotVerify"
	case 421:
		return "ServiceUnavailable"
	case 450:
		return "MailboxBusy"
	case 451:
		if containsAny(lowerText, "greylist") {
			return "Greylisted"
		}
		return "LocalError"
	case 452:
		return "InsufficientStorage"
	case 550:
		switch {
		case containsAny(lowerText, "spamhaus"):
			return "BlockedBySpamhaus"
		case containsAny(lowerText, "blacklist", "blocked"):
			return "BlockedByBlacklist"
		default:
			return "UserNotFound"
		}
	case 551:
		return "UserNotLocal"
	case 552:
		return "StorageExceeded"
	case 553:
		return "MailboxNameInvalid"
	case 554:
		return "Rejected"
	}

	return "Unclassified"
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
