package password

import (
	"strings"
	"time"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// ReasonCode identifies one failed policy rule. A rejected candidate carries
// every code that applies, not just the first.
type ReasonCode string

const (
	// TooShort: fewer than MinLength characters.
	TooShort ReasonCode = "too_short"
	// TooLong: more than MaxLength characters.
	TooLong ReasonCode = "too_long"
	// MissingUppercase: no A-Z character.
	MissingUppercase ReasonCode = "missing_uppercase"
	// MissingLowercase: no a-z character.
	MissingLowercase ReasonCode = "missing_lowercase"
	// MissingDigit: no 0-9 character.
	MissingDigit ReasonCode = "missing_digit"
	// MissingSymbol: no character from the accepted punctuation set.
	MissingSymbol ReasonCode = "missing_symbol"
	// LowStrength: estimator score below MinScore.
	LowStrength ReasonCode = "low_strength"
	// PasswordReused: candidate matches one of the recent prior hashes.
	PasswordReused ReasonCode = "password_reused"
)

// symbolSet is the accepted punctuation, matching what the login UI
// documents to the administrator.
const symbolSet = `!@#$%^&*(),.?":{}|<>`

// Result is the outcome of one policy evaluation.
type Result struct {
	Accepted bool
	Reasons  []ReasonCode
}

// Has reports whether the result carries the given reason code.
func (r Result) Has(code ReasonCode) bool {
	for _, c := range r.Reasons {
		if c == code {
			return true
		}
	}
	return false
}

// PolicyConfig tunes the composition, strength, history, and age rules.
type PolicyConfig struct {
	MinLength int
	MaxLength int
	// MinScore is the minimum acceptable zxcvbn score (0-4). The estimator
	// is the Go port of Dropbox's zxcvbn; a score of 3 roughly corresponds
	// to >10^8 guesses, enough to resist online and throttled offline
	// attacks. Scores are estimator-specific and may differ slightly from
	// other zxcvbn ports for the same input.
	MinScore int
	// HistorySize bounds how many prior hashes the reuse rule inspects and
	// how many the change flow retains.
	HistorySize int
	MaxAgeDays  int
}

// DefaultPolicyConfig mirrors the deployed admin-account policy: 12-128
// chars, score >= 3, last 5 passwords barred, 90-day expiry.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinLength:   12,
		MaxLength:   128,
		MinScore:    3,
		HistorySize: 5,
		MaxAgeDays:  90,
	}
}

// Policy evaluates candidate passwords. It is stateless given its inputs;
// the hasher is only used to compare the candidate against prior hashes.
type Policy struct {
	config PolicyConfig
	hasher *Hasher
}

// NewPolicy creates a policy that verifies reuse through the given hasher.
func NewPolicy(cfg PolicyConfig, hasher *Hasher) *Policy {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 12
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 128
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 90
	}
	return &Policy{config: cfg, hasher: hasher}
}

// Config returns the active policy parameters.
func (p *Policy) Config() PolicyConfig { return p.config }

// Evaluate checks every rule against the candidate and reports all failures.
// contextTokens carry identity-derived strings (username, site name) that
// the strength estimator penalizes when they appear inside the candidate.
// priorHashes is ordered most recent first; only the first HistorySize
// entries participate in the reuse rule.
func (p *Policy) Evaluate(candidate string, contextTokens []string, priorHashes []string) Result {
	var reasons []ReasonCode

	length := len([]rune(candidate))
	if length < p.config.MinLength {
		reasons = append(reasons, TooShort)
	}
	if length > p.config.MaxLength {
		reasons = append(reasons, TooLong)
	}

	reasons = append(reasons, missingClasses(candidate)...)

	if score := p.Score(candidate, contextTokens); score < p.config.MinScore {
		reasons = append(reasons, LowStrength)
	}

	history := priorHashes
	if len(history) > p.config.HistorySize {
		history = history[:p.config.HistorySize]
	}
	for _, prior := range history {
		if ok, err := p.hasher.Verify(candidate, prior); err == nil && ok {
			reasons = append(reasons, PasswordReused)
			break
		}
	}

	return Result{Accepted: len(reasons) == 0, Reasons: reasons}
}

// Score runs the strength estimator alone, for UIs that show a live meter.
func (p *Policy) Score(candidate string, contextTokens []string) int {
	return zxcvbn.PasswordStrength(candidate, contextTokens).Score
}

// IsExpired reports whether a password set at lastChangeAt has outlived the
// maximum age at now. A zero lastChangeAt counts as expired: an account that
// never recorded a change must rotate on next login.
func (p *Policy) IsExpired(lastChangeAt, now time.Time) bool {
	if lastChangeAt.IsZero() {
		return true
	}
	maxAge := time.Duration(p.config.MaxAgeDays) * 24 * time.Hour
	return now.Sub(lastChangeAt) > maxAge
}

func missingClasses(candidate string) []ReasonCode {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(symbolSet, r):
			hasSymbol = true
		}
	}

	var reasons []ReasonCode
	if !hasUpper {
		reasons = append(reasons, MissingUppercase)
	}
	if !hasLower {
		reasons = append(reasons, MissingLowercase)
	}
	if !hasDigit {
		reasons = append(reasons, MissingDigit)
	}
	if !hasSymbol {
		reasons = append(reasons, MissingSymbol)
	}
	return reasons
}
