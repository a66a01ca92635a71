// File: internal/runner/result.go
package runner

// ResultKind discriminates what an action executor handed back.
type ResultKind int

const (
	// ResultNone means the action produced no meaningful value.
	ResultNone ResultKind = iota
	// ResultBool is a plain yes/no outcome.
	ResultBool
	// ResultText is extracted page content.
	ResultText
	// ResultContinue is a deferred decision: the controller invokes the
	// predicate and silently abandons the run when it returns false.
	ResultContinue
)

// View is the read-only snapshot handed to a continuation predicate. The
// predicate runs inside the step cycle while the controller's lock is held,
// so it must not call back into the controller; everything it may consult is
// copied here.
type View struct {
	Phase    Phase
	Step     int
	UserData map[string]string
}

// Result is the tagged variant returned by the action executor. Exactly the
// field matching Kind is meaningful.
type Result struct {
	Kind     ResultKind
	Bool     bool
	Text     string
	Continue func(View) bool
}

// BoolResult wraps a plain boolean outcome.
func BoolResult(b bool) Result { return Result{Kind: ResultBool, Bool: b} }

// TextResult wraps extracted content.
func TextResult(s string) Result { return Result{Kind: ResultText, Text: s} }

// ContinueResult wraps a continuation predicate.
func ContinueResult(fn func(View) bool) Result {
	return Result{Kind: ResultContinue, Continue: fn}
}

// isTrue reports whether the result is the boolean true, exactly. A truthy
// non-boolean value (e.g. non-empty text) deliberately does not qualify; the
// skip-to-next fast path requires strict boolean equality.
func (r Result) isTrue() bool {
	return r.Kind == ResultBool && r.Bool
}
