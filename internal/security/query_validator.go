package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"dbgateway/internal/core"
)

// Options fixes the validator's configurable limits at construction time.
type Options struct {
	MaxQueryLength         int
	DefaultRowLimit        int
	MaxRowLimit            int
	AllowInformationSchema bool
}

// QueryValidator classifies caller-supplied query text as ALLOW,
// ALLOW_WITH_LIMIT or REJECT before any execution is attempted. It is
// stateless and safe for fully parallel use.
//
// Rules are ordered most restrictive first; the first match wins. Any
// internal fault during classification yields REJECT, never ALLOW.
type QueryValidator struct {
	opts Options
}

func NewQueryValidator(opts Options) *QueryValidator {
	if opts.MaxQueryLength <= 0 {
		opts.MaxQueryLength = 10000
	}
	if opts.DefaultRowLimit <= 0 {
		opts.DefaultRowLimit = 100
	}
	if opts.MaxRowLimit <= 0 {
		opts.MaxRowLimit = 1000
	}
	return &QueryValidator{opts: opts}
}

// Rule names surfaced in Verdict.MatchedRule and audit logs.
const (
	RuleEmpty         = "empty-query"
	RuleLength        = "query-too-long"
	RuleEncoding      = "malformed-encoding"
	RuleStatementType = "statement-not-permitted"
	RuleStacking      = "statement-stacking"
	RuleComment       = "comment-obfuscation"
	RuleFileOp        = "file-operation"
	RuleSelectInto    = "select-into"
	RuleDoS           = "dos-function"
	RuleUnionExfil    = "union-exfiltration"
	RuleMetadata      = "metadata-access"
	RuleInternal      = "internal-error"
)

var allowedFirstKeywords = map[string]bool{
	"SELECT": true, "SHOW": true, "DESCRIBE": true, "DESC": true, "EXPLAIN": true,
}

// dangerousKeywords are mutating or side-effecting verbs blocked anywhere
// in the statement, scanned on comment/string-stripped text with word
// boundaries so column names like created_at never false-positive.
var dangerousKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"GRANT", "REVOKE", "CREATE", "EXEC", "EXECUTE", "CALL",
	"MERGE", "REPLACE", "SET", "DECLARE", "HANDLER", "RENAME", "LOAD",
}

var dangerousKeywordRes = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(dangerousKeywords))
	for _, kw := range dangerousKeywords {
		m[kw] = regexp.MustCompile(`(?i)(?:^|[^a-zA-Z0-9_])` + kw + `(?:[^a-zA-Z0-9_]|$)`)
	}
	return m
}()

var fileOpPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`(?i)\binto\s+outfile\b`), "INTO OUTFILE"},
	{regexp.MustCompile(`(?i)\binto\s+dumpfile\b`), "INTO DUMPFILE"},
	{regexp.MustCompile(`(?i)\bload_file\s*\(`), "LOAD_FILE()"},
	{regexp.MustCompile(`(?i)\bxp_cmdshell\b`), "xp_cmdshell"},
	{regexp.MustCompile(`(?i)\bsp_executesql\b`), "sp_executesql"},
	{regexp.MustCompile(`(?i)\bopenrowset\b`), "OPENROWSET"},
	{regexp.MustCompile(`(?i)\bopendatasource\b`), "OPENDATASOURCE"},
	{regexp.MustCompile(`(?i)\bpg_read_(?:binary_)?file\s*\(`), "pg_read_file()"},
	{regexp.MustCompile(`(?i)\bpg_ls_dir\s*\(`), "pg_ls_dir()"},
	{regexp.MustCompile(`(?i)\blo_(?:im|ex)port\s*\(`), "lo_import()/lo_export()"},
	{regexp.MustCompile(`(?i)\bcopy\s+\S+\s+(?:to|from)\b`), "COPY TO/FROM"},
	// Absolute filesystem paths inside literals (checked on raw text,
	// since the stripper blanks string contents).
	{regexp.MustCompile(`(?i)'(?:/etc/|/proc/|/sys/|/dev/|/root/|[a-z]:\\)`), "filesystem path literal"},
}

var dosPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`(?i)\bpg_sleep(?:_for|_until)?\s*\(`), "pg_sleep()"},
	{regexp.MustCompile(`(?i)\bsleep\s*\(`), "SLEEP()"},
	{regexp.MustCompile(`(?i)\bbenchmark\s*\(`), "BENCHMARK()"},
	{regexp.MustCompile(`(?i)\bget_lock\s*\(`), "GET_LOCK()"},
	{regexp.MustCompile(`(?i)\bwaitfor\s+delay\b`), "WAITFOR DELAY"},
	{regexp.MustCompile(`(?i)\bpg_advisory(?:_xact)?_lock\s*\(`), "pg_advisory_lock()"},
}

// selectIntoRe catches SELECT ... INTO ... FROM, which creates a table
// (postgres, mssql) or assigns session variables (mysql) despite the
// read-only first keyword. INTO OUTFILE/DUMPFILE are caught separately.
var selectIntoRe = regexp.MustCompile(`(?is)\bselect\b.*\binto\b.*\bfrom\b`)

var unionExfilPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\s+(?:all\s+)?select\b.*\binformation_schema\b`),
	regexp.MustCompile(`(?i)\bunion\s+(?:all\s+)?select\b.*\bpassword\b`),
}

var metadataRe = regexp.MustCompile(`(?i)\b(?:information_schema|pg_catalog|pg_tables|pg_class|pg_namespace|pg_attribute|pg_stats|sqlite_master|performance_schema|sys\.[a-z_]+)\b`)

var (
	limitClauseRe  = regexp.MustCompile(`(?i)\b(?:limit\s+\d+|fetch\s+first\s+\d+|top\s+\d+)\b`)
	limitValueRe   = regexp.MustCompile(`(?i)\blimit\s+(\d+)\b`)
	selectStarRe   = regexp.MustCompile(`(?i)\bselect\s+(?:\w+\s*\(\s*)?\*`)
	whereClauseRe  = regexp.MustCompile(`(?i)\bwhere\b`)
	leadingSpaceRe = regexp.MustCompile(`^\s+`)
)

// Validate classifies a query. It is a pure function of the text and the
// validator's options; identical input always yields an identical verdict.
func (v *QueryValidator) Validate(query string) (verdict core.Verdict) {
	// Fail closed: a panic anywhere below must become REJECT.
	defer func() {
		if r := recover(); r != nil {
			verdict = core.Verdict{
				Decision:    core.Reject,
				Reason:      fmt.Sprintf("internal validation error: %v", r),
				MatchedRule: RuleInternal,
				RiskScore:   100,
			}
		}
	}()

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return reject(RuleEmpty, "empty query", 0)
	}

	// Rule 1: length gate.
	if len(query) > v.opts.MaxQueryLength {
		return reject(RuleLength, fmt.Sprintf("query too long (max %d characters)", v.opts.MaxQueryLength), 100)
	}

	if !utf8.ValidString(query) {
		return reject(RuleEncoding, "query is not valid UTF-8", 100)
	}

	stripped, comments := stripLiterals(trimmed)
	risk := v.riskScore(trimmed, stripped, comments)

	// Rule 2: statement-type whitelist on the first keyword after leading
	// comments are removed.
	first := firstKeyword(stripped)
	if !allowedFirstKeywords[first] {
		return reject(RuleStatementType,
			"statement not permitted: only SELECT, SHOW, DESCRIBE and EXPLAIN are allowed", risk)
	}

	// Rule 3: stacking guard. Any semicolon not at the extreme end of the
	// stripped text means a second statement could ride along.
	if idx := strings.Index(stripped, ";"); idx >= 0 {
		if strings.TrimSpace(stripped[idx+1:]) != "" {
			return reject(RuleStacking, "multiple statements not permitted", risk)
		}
	}

	// Rule 4a: comments in the middle of the statement are treated as
	// obfuscation; a single leading or trailing block is tolerated.
	if len(interiorComments(trimmed, comments)) > 0 {
		return reject(RuleComment, "mid-statement comment not permitted", risk)
	}

	// Rule 4b: file and OS access constructs, scanned on raw text so that
	// path literals inside strings are still visible.
	for _, p := range fileOpPatterns {
		if p.re.MatchString(trimmed) {
			return reject(RuleFileOp, "file operation not permitted: "+p.desc, risk)
		}
	}

	// Rule 4c: SELECT INTO writes rows to a new table even though the
	// statement starts with an allowed keyword.
	if selectIntoRe.MatchString(stripped) {
		return reject(RuleSelectInto, "SELECT INTO not permitted", risk)
	}

	// Rule 4d: mutating or side-effecting verbs anywhere in the statement.
	for _, kw := range dangerousKeywords {
		if dangerousKeywordRes[kw].MatchString(stripped) {
			return reject("dangerous-keyword:"+kw, "statement contains forbidden keyword: "+kw, risk)
		}
	}

	// Rule 4e: delay and lock functions used for timing attacks.
	for _, p := range dosPatterns {
		if p.re.MatchString(stripped) {
			return reject(RuleDoS, "forbidden function: "+p.desc, risk)
		}
	}

	// Rule 4f: UNION shapes associated with credential exfiltration.
	for _, re := range unionExfilPatterns {
		if re.MatchString(stripped) {
			return reject(RuleUnionExfil, "suspicious UNION construct", risk)
		}
	}

	// Rule 5: system catalog access is configuration-gated.
	if metadataRe.MatchString(stripped) && !v.opts.AllowInformationSchema {
		return reject(RuleMetadata, "metadata access disabled", risk)
	}

	// Rule 6: bare SELECTs get the default row limit; SHOW, DESCRIBE and
	// EXPLAIN are always plain ALLOW.
	if first == "SELECT" && !limitClauseRe.MatchString(stripped) {
		return core.Verdict{
			Decision:     core.AllowWithLimit,
			Reason:       fmt.Sprintf("allowed with default row limit %d", v.opts.DefaultRowLimit),
			RiskScore:    risk,
			DefaultLimit: v.opts.DefaultRowLimit,
		}
	}

	return core.Verdict{
		Decision:  core.Allow,
		Reason:    "allowed",
		RiskScore: risk,
	}
}

// riskScore is additive over observed soft signals and clamped to 100.
// It informs audit reporting only; the binary decision never depends on it.
func (v *QueryValidator) riskScore(raw, stripped string, comments []commentSpan) int {
	score := 0
	if selectStarRe.MatchString(stripped) {
		score += 15
	}
	if strings.HasPrefix(strings.ToUpper(firstKeyword(stripped)), "SELECT") && !whereClauseRe.MatchString(stripped) {
		score += 10
	}
	if m := limitValueRe.FindStringSubmatch(stripped); m != nil {
		var declared int
		fmt.Sscanf(m[1], "%d", &declared)
		if declared > v.opts.MaxRowLimit {
			score += 15
		}
	}
	if metadataRe.MatchString(stripped) {
		score += 20
	}
	if len(comments) > 0 {
		score += 10
	}
	if depth := strings.Count(stripped, "("); depth > 2 {
		score += (depth - 2) * 10
	}
	if len(raw) > v.opts.MaxQueryLength/2 {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

// firstKeyword returns the first bare word of the statement, uppercased,
// skipping whitespace left over from stripped leading comments.
func firstKeyword(stripped string) string {
	s := leadingSpaceRe.ReplaceAllString(stripped, "")
	end := 0
	for end < len(s) {
		c := s[end]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			end++
			continue
		}
		break
	}
	return strings.ToUpper(s[:end])
}

func reject(rule, reason string, risk int) core.Verdict {
	if risk < 50 {
		risk = 50 // rejection is itself a strong signal
	}
	return core.Verdict{
		Decision:    core.Reject,
		Reason:      reason,
		MatchedRule: rule,
		RiskScore:   risk,
	}
}
