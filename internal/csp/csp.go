// Package csp parses Content-Security-Policy values and evaluates how well
// they defend against cross-site scripting. The checks follow the
// strict-CSP guidance: nonces or hashes over host allowlists, object-src
// locked down, base-uri pinned.
package csp

import (
	"fmt"
	"strings"
)

// Severity ranks a finding. High findings defeat the policy's XSS defense,
// Medium weakens it, Possible marks syntax that is probably a mistake, and
// Info is advisory.
type Severity string

const (
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityPossible Severity = "possible"
	SeverityInfo     Severity = "info"
)

// Finding is one problem discovered in a policy.
type Finding struct {
	Check     string
	Severity  Severity
	Directive string
	Value     string
	Message   string
}

// Policy is one parsed Content-Security-Policy value. Directive names are
// lowercased; when a directive appears twice the first occurrence wins, as
// browsers do, and the repeat is recorded in Duplicates.
type Policy struct {
	Directives map[string][]string
	Duplicates []string

	order []string
}

// Directive returns the named directive's values.
func (p *Policy) Directive(name string) ([]string, bool) {
	values, ok := p.Directives[name]
	return values, ok
}

// Parse splits a policy into directives. Parsing never fails; syntax
// problems surface later as findings.
func Parse(policy string) *Policy {
	p := &Policy{Directives: map[string][]string{}}
	for _, chunk := range strings.Split(policy, ";") {
		tokens := strings.Fields(chunk)
		if len(tokens) == 0 {
			continue
		}
		name := strings.ToLower(tokens[0])
		if _, dup := p.Directives[name]; dup {
			p.Duplicates = append(p.Duplicates, name)
			continue
		}
		p.Directives[name] = tokens[1:]
		p.order = append(p.order, name)
	}
	return p
}

var knownDirectives = map[string]bool{}

var deprecatedDirectives = map[string]bool{}

func init() {
	for _, name := range []string{
		"default-src", "script-src", "script-src-elem", "script-src-attr",
		"style-src", "style-src-elem", "style-src-attr", "img-src",
		"font-src", "connect-src", "media-src", "object-src", "child-src",
		"frame-src", "worker-src", "frame-ancestors", "base-uri",
		"form-action", "sandbox", "report-uri", "report-to", "manifest-src",
		"prefetch-src", "upgrade-insecure-requests",
		"block-all-mixed-content", "require-trusted-types-for",
		"trusted-types", "navigate-to",
	} {
		knownDirectives[name] = true
	}
	for _, name := range []string{"reflected-xss", "referrer", "disown-opener"} {
		deprecatedDirectives[name] = true
	}
}

// Check IDs, stable across releases so assertions can reference them.
const (
	CheckMissingScriptSrc    = "missing-script-src"
	CheckMissingObjectSrc    = "missing-object-src"
	CheckUnsafeObjectSrc     = "unsafe-object-src"
	CheckMissingBaseURI      = "missing-base-uri"
	CheckUnsafeInline        = "unsafe-inline"
	CheckUnsafeEval          = "unsafe-eval"
	CheckWildcardSource      = "wildcard-source"
	CheckPlainURLScheme      = "plain-url-scheme"
	CheckInsecureSource      = "insecure-source"
	CheckShortNonce          = "short-nonce"
	CheckDeprecatedDirective = "deprecated-directive"
	CheckUnknownDirective    = "unknown-directive"
	CheckDuplicateDirective  = "duplicate-directive"
	CheckMetaDelivered       = "meta-delivered"
)

// Evaluate runs every check against the policy.
func (p *Policy) Evaluate() []Finding {
	var findings []Finding

	scriptSrc, scriptDirective := p.effective("script-src")
	if scriptSrc == nil {
		findings = append(findings, Finding{
			Check:     CheckMissingScriptSrc,
			Severity:  SeverityHigh,
			Directive: "script-src",
			Message:   "script-src directive is missing and no default-src fallback exists",
		})
	} else {
		findings = append(findings, p.evaluateScriptSrc(scriptDirective, scriptSrc)...)
	}

	objectSrc, objectDirective := p.effective("object-src")
	switch {
	case objectSrc == nil:
		findings = append(findings, Finding{
			Check:     CheckMissingObjectSrc,
			Severity:  SeverityHigh,
			Directive: "object-src",
			Message:   "object-src should be set to 'none' to block plugin-based script execution",
		})
	default:
		for _, value := range objectSrc {
			if strings.ToLower(value) != "'none'" {
				findings = append(findings, Finding{
					Check:     CheckUnsafeObjectSrc,
					Severity:  SeverityHigh,
					Directive: objectDirective,
					Value:     value,
					Message:   fmt.Sprintf("%s allows %s, expected 'none'", objectDirective, value),
				})
			}
		}
	}

	if scriptSrc != nil && usesNonceOrHash(scriptSrc) {
		if _, ok := p.Directives["base-uri"]; !ok {
			findings = append(findings, Finding{
				Check:     CheckMissingBaseURI,
				Severity:  SeverityHigh,
				Directive: "base-uri",
				Message:   "base-uri is missing; injected <base> tags can redirect nonced scripts",
			})
		}
	}

	findings = append(findings, p.evaluateSyntax()...)
	return findings
}

// effective resolves a fetch directive through the default-src fallback.
func (p *Policy) effective(name string) ([]string, string) {
	if values, ok := p.Directives[name]; ok {
		return values, name
	}
	if values, ok := p.Directives["default-src"]; ok {
		return values, "default-src"
	}
	return nil, ""
}

func (p *Policy) evaluateScriptSrc(directive string, values []string) []Finding {
	var findings []Finding
	hasNonceOrHash := usesNonceOrHash(values)
	hasStrictDynamic := false
	for _, value := range values {
		if strings.ToLower(value) == "'strict-dynamic'" {
			hasStrictDynamic = true
		}
	}

	for _, value := range values {
		lower := strings.ToLower(value)
		switch {
		case lower == "'unsafe-inline'":
			if hasNonceOrHash {
				// Browsers ignore unsafe-inline once a nonce or hash is
				// present, so it is only a compatibility shim here.
				continue
			}
			severity := SeverityHigh
			message := "'unsafe-inline' allows the execution of unsafe in-page scripts"
			if hasStrictDynamic {
				severity = SeverityInfo
				message = "'unsafe-inline' is ignored by browsers that support 'strict-dynamic'"
			}
			findings = append(findings, Finding{
				Check: CheckUnsafeInline, Severity: severity,
				Directive: directive, Value: value, Message: message,
			})
		case lower == "'unsafe-eval'":
			findings = append(findings, Finding{
				Check: CheckUnsafeEval, Severity: SeverityMedium,
				Directive: directive, Value: value,
				Message: "'unsafe-eval' allows string evaluation, a common XSS vector",
			})
		case lower == "*":
			findings = append(findings, Finding{
				Check: CheckWildcardSource, Severity: SeverityHigh,
				Directive: directive, Value: value,
				Message: "a wildcard source allows scripts from any origin",
			})
		case lower == "https:" || lower == "http:" || lower == "data:":
			findings = append(findings, Finding{
				Check: CheckPlainURLScheme, Severity: SeverityHigh,
				Directive: directive, Value: value,
				Message: fmt.Sprintf("the bare scheme %s allows scripts from any %s origin", value, strings.TrimSuffix(lower, ":")),
			})
		case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "ws://"):
			findings = append(findings, Finding{
				Check: CheckInsecureSource, Severity: SeverityMedium,
				Directive: directive, Value: value,
				Message: "allowlisted source is fetched over an insecure scheme",
			})
		case strings.HasPrefix(lower, "'nonce-"):
			nonce := strings.TrimSuffix(strings.TrimPrefix(value, "'nonce-"), "'")
			if len(nonce) < 8 {
				findings = append(findings, Finding{
					Check: CheckShortNonce, Severity: SeverityMedium,
					Directive: directive, Value: value,
					Message: "nonces should be at least 8 characters of entropy",
				})
			}
		}
	}
	return findings
}

func (p *Policy) evaluateSyntax() []Finding {
	var findings []Finding
	for _, name := range p.order {
		switch {
		case deprecatedDirectives[name]:
			findings = append(findings, Finding{
				Check: CheckDeprecatedDirective, Severity: SeverityInfo,
				Directive: name,
				Message:   fmt.Sprintf("%s is deprecated and ignored by current browsers", name),
			})
		case !knownDirectives[name]:
			findings = append(findings, Finding{
				Check: CheckUnknownDirective, Severity: SeverityPossible,
				Directive: name,
				Message:   fmt.Sprintf("%s is not a known directive", name),
			})
		}
	}
	for _, name := range p.Duplicates {
		findings = append(findings, Finding{
			Check: CheckDuplicateDirective, Severity: SeverityPossible,
			Directive: name,
			Message:   fmt.Sprintf("%s appears more than once; only the first occurrence applies", name),
		})
	}
	return findings
}

func usesNonceOrHash(values []string) bool {
	for _, value := range values {
		lower := strings.ToLower(value)
		if strings.HasPrefix(lower, "'nonce-") ||
			strings.HasPrefix(lower, "'sha256-") ||
			strings.HasPrefix(lower, "'sha384-") ||
			strings.HasPrefix(lower, "'sha512-") {
			return true
		}
	}
	return false
}

// PolicyFindings pairs a policy with its findings and where it came from.
type PolicyFindings struct {
	Policy   *Policy
	Source   string // "header" or "meta"
	Findings []Finding
}

// Checks that still make sense for meta-delivered policies. A meta tag
// cannot protect against markup injected before it, so the strict-CSP
// checks would overstate what the policy achieves.
var metaAllowedChecks = map[string]bool{
	CheckUnknownDirective:    true,
	CheckDeprecatedDirective: true,
	CheckDuplicateDirective:  true,
	CheckShortNonce:          true,
}

// EvaluateHeaders evaluates every policy a page delivered. Header policies
// get the full check set; meta policies get syntax checks plus a note that
// meta delivery weakens the policy.
func EvaluateHeaders(headers []string, metaPolicies []string) []PolicyFindings {
	var all []PolicyFindings
	for _, raw := range headers {
		policy := Parse(raw)
		all = append(all, PolicyFindings{
			Policy:   policy,
			Source:   "header",
			Findings: policy.Evaluate(),
		})
	}
	for _, raw := range metaPolicies {
		policy := Parse(raw)
		findings := []Finding{{
			Check:    CheckMetaDelivered,
			Severity: SeverityInfo,
			Message:  "policy is delivered in a meta tag; prefer the Content-Security-Policy header",
		}}
		for _, f := range policy.Evaluate() {
			if metaAllowedChecks[f.Check] {
				findings = append(findings, f)
			}
		}
		all = append(all, PolicyFindings{
			Policy:   policy,
			Source:   "meta",
			Findings: findings,
		})
	}
	return all
}

// HasSeverity reports whether any finding reaches the given severity.
func HasSeverity(findings []Finding, severity Severity) bool {
	for _, f := range findings {
		if f.Severity == severity {
			return true
		}
	}
	return false
}
