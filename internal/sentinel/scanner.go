package sentinel

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Canonical severity weights per violation category.
const (
	WeightSQLInjection      = 25
	WeightXSS               = 10
	WeightPathTraversal     = 10
	WeightOversized         = 3
	WeightMaliciousFilename = 15
)

// MaxFieldLength is the oversized-payload cutoff for a single string field.
const MaxFieldLength = 10000

// MaxUploadBytes is the oversized cutoff for an uploaded file.
const MaxUploadBytes = 5 << 20

// Patterns are compiled once at init. Matching is case-insensitive where the
// attack is; `(?i)` keeps each rule self-contained.
var (
	reSQLStacked   = regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|alter|truncate)\b`)
	reSQLUnion     = regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)
	reSQLTautology = regexp.MustCompile(`(?i)'\s*or\s*'?\d*'?\s*=\s*'`)
	reSQLComment   = regexp.MustCompile(`(--|/\*.*\*/|#\s*$)`)
	reXSSScript    = regexp.MustCompile(`(?i)<\s*script`)
	reXSSProto     = regexp.MustCompile(`(?i)javascript\s*:`)
	reXSSHandler   = regexp.MustCompile(`(?i)\bon\w+\s*=`)
	reXSSIframe    = regexp.MustCompile(`(?i)<\s*iframe`)
	reTraversal    = regexp.MustCompile(`\.\./|\.\.\\`)
	reLocalFile    = regexp.MustCompile(`(?i)/etc/passwd|/etc/shadow|c:\\windows`)
)

// maliciousExtensions are rejected on uploaded filenames regardless of
// declared content type.
var maliciousExtensions = map[string]struct{}{
	".exe": {}, ".bat": {}, ".cmd": {}, ".scr": {}, ".vbs": {},
	".jar": {}, ".php": {}, ".asp": {}, ".jsp": {},
}

// categoryRule binds an ordered set of patterns to one violation category.
// Rule order decides which category is attributed when several could match.
type categoryRule struct {
	category ViolationCategory
	severity int
	patterns []*regexp.Regexp
}

// ScanResult reports what, if anything, matched a scanned value.
type ScanResult struct {
	Matched  bool
	Category ViolationCategory
	Severity int
	// Fault is set when the matcher itself failed; the value is then treated
	// as clean (fail-open) and the caller records the fault.
	Fault      bool
	FaultCause string
}

// Scanner classifies a single string value against the ordered rule list.
// It is stateless and safe for concurrent use.
type Scanner struct {
	rules []categoryRule
}

// NewScanner builds the scanner with the canonical rule ordering. SQL runs
// first because its severity dominates; the length check runs last and only
// wins when no content rule matched.
func NewScanner() *Scanner {
	return &Scanner{
		rules: []categoryRule{
			{ViolationSQLInjection, WeightSQLInjection, []*regexp.Regexp{
				reSQLStacked, reSQLUnion, reSQLTautology, reSQLComment,
			}},
			{ViolationXSS, WeightXSS, []*regexp.Regexp{
				reXSSScript, reXSSProto, reXSSHandler, reXSSIframe,
			}},
			{ViolationPathTraversal, WeightPathTraversal, []*regexp.Regexp{
				reTraversal, reLocalFile,
			}},
		},
	}
}

// Scan classifies one string value. A matcher failure is swallowed and
// reported through Fault so a scanner bug cannot become a request-path
// denial-of-service.
func (s *Scanner) Scan(value string) (res ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ScanResult{Fault: true, FaultCause: fmt.Sprint(r)}
		}
	}()

	for _, rule := range s.rules {
		for _, p := range rule.patterns {
			if p.MatchString(value) {
				return ScanResult{Matched: true, Category: rule.category, Severity: rule.severity}
			}
		}
	}
	if len(value) > MaxFieldLength {
		return ScanResult{Matched: true, Category: ViolationOversized, Severity: WeightOversized}
	}
	return ScanResult{}
}

// ScanFilename classifies an uploaded file's name. The extension check runs
// first and only here; a clean extension still gets the general scan so a
// traversal-laced filename is caught.
func (s *Scanner) ScanFilename(name string) (res ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ScanResult{Fault: true, FaultCause: fmt.Sprint(r)}
		}
	}()

	ext := strings.ToLower(filepath.Ext(name))
	if _, bad := maliciousExtensions[ext]; bad {
		return ScanResult{Matched: true, Category: ViolationMaliciousFilename, Severity: WeightMaliciousFilename}
	}
	return s.Scan(name)
}

// ScanUploadSize flags a file larger than the upload cutoff.
func (s *Scanner) ScanUploadSize(size int64) ScanResult {
	if size > MaxUploadBytes {
		return ScanResult{Matched: true, Category: ViolationOversized, Severity: WeightOversized}
	}
	return ScanResult{}
}

// EventTypeFor maps a violation category to its audit event type.
func EventTypeFor(c ViolationCategory) EventType {
	switch c {
	case ViolationSQLInjection:
		return EventSQLInjectionAttempt
	case ViolationXSS:
		return EventXSSAttempt
	case ViolationPathTraversal:
		return EventPathTraversal
	case ViolationOversized:
		return EventOversizedPayload
	case ViolationMaliciousFilename:
		return EventMaliciousFilename
	default:
		return EventScannerFault
	}
}
