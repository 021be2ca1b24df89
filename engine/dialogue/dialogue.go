// Package dialogue holds helpers over the immutable dialogue data model.
package dialogue

import (
	"errors"
	"fmt"

	"github.com/nathoo/parley/types"
)

// MaxResponses is the most responses a page may carry (choice numbers fit in a byte).
const MaxResponses = 255

// GoTo returns a target that enters the given page.
func GoTo(pageID uint16) types.PageTarget {
	return types.PageTarget{Kind: types.TargetGoTo, PageID: pageID}
}

// End returns the end-of-conversation target.
func End() types.PageTarget {
	return types.PageTarget{Kind: types.TargetEnd}
}

// IsEnd reports whether t ends the conversation.
func IsEnd(t types.PageTarget) bool {
	return t.Kind == types.TargetEnd
}

// Page returns the page with the given id, or nil if it is out of range.
func Page(d *types.Dialogue, id uint16) *types.Page {
	if d == nil || int(id) >= len(d.Pages) {
		return nil
	}
	return &d.Pages[id]
}

// Structural violations reported by Validate.
var (
	ErrEmptyDialogue     = errors.New("dialogue has no pages")
	ErrTooManyPages      = errors.New("too many pages")
	ErrPageID            = errors.New("page id does not match its index")
	ErrTooManyResponses  = errors.New("too many responses")
	ErrTargetOutOfRange  = errors.New("response target out of range")
	ErrUnknownTargetKind = errors.New("unknown target kind")
)

// Violation is one broken structural invariant. Page and Response are -1
// when the violation is not specific to one.
type Violation struct {
	Err      error
	Page     int
	Response int
	Detail   string
}

func (v *Violation) Error() string { return v.Detail }
func (v *Violation) Unwrap() error { return v.Err }

func violation(kind error, page, resp int, format string, args ...any) error {
	return &Violation{Err: kind, Page: page, Response: resp, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks the structural invariants of a dialogue and returns every
// violation found, each a *Violation. Predicate names are not checked here.
func Validate(d *types.Dialogue) []error {
	var errs []error
	if len(d.Pages) == 0 {
		return append(errs, violation(ErrEmptyDialogue, -1, -1, "dialogue %d has no pages", d.ID))
	}
	if len(d.Pages) > 0xFFFF {
		errs = append(errs, violation(ErrTooManyPages, -1, -1,
			"dialogue %d has %d pages (max %d)", d.ID, len(d.Pages), 0xFFFF))
	}
	for i, p := range d.Pages {
		if int(p.ID) != i {
			errs = append(errs, violation(ErrPageID, i, -1, "dialogue %d page %d has id %d", d.ID, i, p.ID))
		}
		if len(p.Responses) > MaxResponses {
			errs = append(errs, violation(ErrTooManyResponses, i, -1,
				"dialogue %d page %d has %d responses (max %d)", d.ID, i, len(p.Responses), MaxResponses))
		}
		for j, r := range p.Responses {
			switch r.Target.Kind {
			case types.TargetEnd:
			case types.TargetGoTo:
				if int(r.Target.PageID) >= len(d.Pages) {
					errs = append(errs, violation(ErrTargetOutOfRange, i, j,
						"dialogue %d page %d response %d targets page %d (have %d pages)",
						d.ID, i, j, r.Target.PageID, len(d.Pages)))
				}
			default:
				errs = append(errs, violation(ErrUnknownTargetKind, i, j,
					"dialogue %d page %d response %d has unknown target kind %d", d.ID, i, j, r.Target.Kind))
			}
		}
	}
	return errs
}

// Equal reports structural equality over every field. Nil and empty slices
// are treated as equal.
func Equal(a, b *types.Dialogue) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Title != b.Title || len(a.Pages) != len(b.Pages) {
		return false
	}
	for i := range a.Pages {
		if !pageEqual(&a.Pages[i], &b.Pages[i]) {
			return false
		}
	}
	return true
}

func pageEqual(a, b *types.Page) bool {
	if a.ID != b.ID || a.Text != b.Text || a.IsBranch != b.IsBranch {
		return false
	}
	if !SetEqual(a.Conditions, b.Conditions) || len(a.Responses) != len(b.Responses) {
		return false
	}
	for i := range a.Responses {
		ra, rb := &a.Responses[i], &b.Responses[i]
		if ra.Text != rb.Text || ra.Target != rb.Target || !SetEqual(ra.Conditions, rb.Conditions) {
			return false
		}
		if !stringsEqual(ra.Hooks, rb.Hooks) {
			return false
		}
	}
	return true
}

// SetEqual compares two conditional sets item by item.
func SetEqual(a, b types.ConditionalSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Predicate != b[i].Predicate || a[i].Negate != b[i].Negate {
			return false
		}
		if len(a[i].Params) != len(b[i].Params) {
			return false
		}
		for j := range a[i].Params {
			if a[i].Params[j] != b[i].Params[j] {
				return false
			}
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
