//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
// These rules catch error-handling patterns that break once errors are wrapped.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// SentinelComparison detects direct == / != comparisons against sentinel
// errors, which silently stop matching once a call site wraps the error
// with fmt.Errorf("%w", ...) or the error builder.
//
// Broken pattern:
//
//	if err == ErrPipelineBusy { ... }
//	if result.Err == audio.ErrTooShort { ... }
//
// Correct pattern:
//
//	if errors.Is(err, ErrPipelineBusy) { ... }
//
// The codebase wraps every sentinel before it crosses a package boundary,
// so direct comparison is wrong everywhere outside the defining package.
//
// See: https://pkg.go.dev/errors#Is
func SentinelComparison(m dsl.Matcher) {
	m.Match(
		`$err == $sentinel`,
	).
		Where(m["err"].Type.Is("error") && m["sentinel"].Text.Matches(`^(\w+\.)?Err[A-Z]\w*$`)).
		Report("use errors.Is($err, $sentinel) so the check survives wrapping").
		Suggest("errors.Is($err, $sentinel)")

	m.Match(
		`$err != $sentinel`,
	).
		Where(m["err"].Type.Is("error") && m["sentinel"].Text.Matches(`^(\w+\.)?Err[A-Z]\w*$`)).
		Report("use !errors.Is($err, $sentinel) so the check survives wrapping").
		Suggest("!errors.Is($err, $sentinel)")
}

// ErrorStringMatching detects dispatching on an error's message text.
// Messages change between library versions and carry wrapped context,
// making substring checks both brittle and wrong for localized errors.
//
// Broken pattern:
//
//	if strings.Contains(err.Error(), "not found") { ... }
//	if err.Error() == "record not found" { ... }
//
// Correct pattern:
//
//	if errors.Is(err, gorm.ErrRecordNotFound) { ... }
//	if errors.IsNotFound(err) { ... }
//
// See: https://pkg.go.dev/errors#Is
func ErrorStringMatching(m dsl.Matcher) {
	m.Match(
		`strings.Contains($err.Error(), $s)`,
	).
		Where(m["err"].Type.Is("error")).
		Report("dispatch on the error value with errors.Is/errors.As, not on its message text")

	m.Match(
		`$err.Error() == $s`,
	).
		Where(m["err"].Type.Is("error") && m["s"].Const).
		Report("dispatch on the error value with errors.Is/errors.As, not on its message text")
}

// SprintfErrorConstruction detects errors built by formatting into
// errors.New, which drops the ability to wrap a cause.
//
// Old pattern:
//
//	errors.New(fmt.Sprintf("decode failed: %v", err))
//
// New pattern:
//
//	fmt.Errorf("decode failed: %w", err)
//
// See: https://pkg.go.dev/fmt#Errorf
func SprintfErrorConstruction(m dsl.Matcher) {
	m.Match(
		`errors.New(fmt.Sprintf($*args))`,
	).
		Report("use fmt.Errorf instead of errors.New(fmt.Sprintf(...)); %w can then wrap the cause").
		Suggest("fmt.Errorf($args)")
}
