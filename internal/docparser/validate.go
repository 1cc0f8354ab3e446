package docparser

import (
	"fmt"
	"strings"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/paragraph"
)

// Issue codes (E100-E109). Critical issues always abort an edit; the rest
// abort only in strict mode.
const (
	ErrDuplicateID       = "E101" // same id on two blocks
	ErrInvalidID         = "E102" // id fails the checksum
	ErrAttributeSyntax   = "E103" // malformed attribute list
	ErrInvalidReference  = "E104" // bad rd/rp/ra combination
	ErrUnterminatedFence = "E105" // code fence never closed
	ErrAreaReopened      = "E106" // area opened while already open
	ErrAreaNotClosed     = "E107" // area never closed
	ErrAreaNotOpened     = "E108" // area_end without a matching area
	ErrSettingsNotFirst  = "E109" // settings block after content
)

var criticalCodes = map[string]bool{
	ErrDuplicateID:      true,
	ErrInvalidID:        true,
	ErrAttributeSyntax:  true,
	ErrInvalidReference: true,
}

// Issue is one structural problem found by Validate.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	BlockID string `json:"block_id,omitempty"`
}

// Critical reports whether the issue aborts every edit.
func (i Issue) Critical() bool { return criticalCodes[i.Code] }

// Error implements the error interface.
func (i Issue) Error() string {
	if i.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s", i.Code, i.Line, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

// Result collects the issues of one validation run.
type Result struct {
	Issues []Issue `json:"issues"`
}

func (r *Result) add(code string, b Block, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Line:    b.Line,
		BlockID: b.ID,
	})
}

// HasCritical reports whether any issue is critical.
func (r *Result) HasCritical() bool {
	for _, i := range r.Issues {
		if i.Critical() {
			return true
		}
	}
	return false
}

// Err returns a validation error when the result must abort an edit: any
// issue in strict mode, critical issues otherwise. It returns nil if the
// edit may proceed.
func (r *Result) Err(strict bool) error {
	var msgs []string
	details := map[string]string{}
	for _, i := range r.Issues {
		if !strict && !i.Critical() {
			continue
		}
		msgs = append(msgs, i.Error())
		details[i.Code] = i.Message
	}
	if len(msgs) == 0 {
		return nil
	}
	err := docerr.Validation("%s", strings.Join(msgs, "; "))
	err.Details = details
	return err
}

// DuplicateIDs returns the ids that appear on more than one block.
func DuplicateIDs(blocks []Block) []string {
	seen := map[string]int{}
	var dups []string
	for _, b := range blocks {
		if b.ID == "" {
			continue
		}
		seen[b.ID]++
		if seen[b.ID] == 2 {
			dups = append(dups, b.ID)
		}
	}
	return dups
}

// Validate checks the structure of blocks. It never fails; callers decide
// with Result.Err which issues are fatal.
func Validate(blocks []Block) *Result {
	r := &Result{}
	seen := map[string]bool{}
	open := map[string]Block{}
	var openOrder []string
	contentSeen := false

	for _, b := range blocks {
		if b.attrErr != "" {
			r.add(ErrAttributeSyntax, b, "%s", b.attrErr)
		}
		if b.ID != "" {
			if seen[b.ID] {
				r.add(ErrDuplicateID, b, "duplicate paragraph id %s", b.ID)
			}
			seen[b.ID] = true
			if !paragraph.IsValidID(b.ID) {
				r.add(ErrInvalidID, b, "invalid paragraph id %q", b.ID)
			}
		}
		if err := paragraph.ValidateAttrs(b.Attrs); err != nil {
			r.add(ErrInvalidReference, b, "%s", err.Message)
		}
		if b.openFence {
			r.add(ErrUnterminatedFence, b, "code block is not closed")
		}

		if name, ok := b.Attrs[paragraph.AttrArea]; ok {
			if _, already := open[name]; already {
				r.add(ErrAreaReopened, b, "area %s is already open", name)
			} else {
				open[name] = b
				openOrder = append(openOrder, name)
			}
		}
		if name, ok := b.Attrs[paragraph.AttrAreaEnd]; ok {
			if _, isOpen := open[name]; isOpen {
				delete(open, name)
			} else {
				r.add(ErrAreaNotOpened, b, "area %s is closed but never opened", name)
			}
		}

		if _, ok := b.Attrs[paragraph.AttrSettings]; ok {
			if contentSeen {
				r.add(ErrSettingsNotFirst, b, "settings must be at the beginning of the document")
			}
		} else {
			contentSeen = true
		}
	}

	for _, name := range openOrder {
		if b, ok := open[name]; ok {
			r.add(ErrAreaNotClosed, b, "area %s is not closed", name)
		}
	}
	return r
}
