package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalid = errors.New("invalid scenario")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Check enforces the structural shape of a scenario (title, option texts,
// branch types) and that every branch type is defined once across the
// script, since branch lists are keyed by type. It does not look at how
// blocks relate to each other otherwise; see Validate.
func Check(s Scenario) error {
	var msgs []string
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}
	msgs = append(msgs, duplicateBranchTypes(s)...)
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func duplicateBranchTypes(s Scenario) []string {
	var msgs []string
	seen := map[string]int{}
	for i, b := range s.Script {
		for _, o := range b.BranchOptions {
			if o.Type == "" {
				continue
			}
			if first, dup := seen[o.Type]; dup {
				msgs = append(msgs, fmt.Sprintf("script.%d: branch type %q already defined in script.%d", i, o.Type, first))
				continue
			}
			seen[o.Type] = i
		}
	}
	return msgs
}

const (
	WarnMissingBranchBreakpoint = "missing_branch_breakpoint"
	WarnUnknownBranchTarget     = "unknown_branch_target"
	WarnDuplicateBranchType     = "duplicate_branch_type"
	WarnEmptyBranch             = "empty_branch"
	WarnAnchorContentIgnored    = "anchor_content_ignored"
	WarnReservedBranchType      = "reserved_branch_type"
)

// ReservedBranchType is the list key of the main line; a branch may not use it.
const ReservedBranchType = "main"

// Warning is a non-fatal authoring problem. Index is the script block it
// concerns.
type Warning struct {
	Index   int    `json:"index" yaml:"index"`
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

// Validate reports relational problems that leave the scenario playable but
// make some content unreachable or surprising.
func Validate(s Scenario) []Warning {
	var out []Warning
	seen := map[string]int{}
	for i, b := range s.Script {
		next, hasNext := nextBlock(s.Script, i)
		if hasNext && next.IsAnchor() && !hasBranchingBreakpoint(b) {
			out = append(out, Warning{i, WarnMissingBranchBreakpoint,
				fmt.Sprintf("Block %d: Missing branching breakpoint before next section.", i)})
		}
		if b.Breakpoint != nil {
			for j, opt := range b.Breakpoint.Options {
				if opt.BranchTarget == "" {
					continue
				}
				if !hasNext || !next.IsAnchor() {
					out = append(out, Warning{i, WarnUnknownBranchTarget,
						fmt.Sprintf("Block %d option %d: branch target %q but next block is not a branch section", i, j, opt.BranchTarget)})
					continue
				}
				if _, ok := next.Branch(opt.BranchTarget); !ok {
					out = append(out, Warning{i, WarnUnknownBranchTarget,
						fmt.Sprintf("Block %d option %d: branch target %q not found in block %d", i, j, opt.BranchTarget, i+1)})
				}
			}
		}
		if !b.IsAnchor() {
			continue
		}
		if b.HasContent() {
			out = append(out, Warning{i, WarnAnchorContentIgnored,
				fmt.Sprintf("Block %d: role, dialogue and image on a branch section are not played", i)})
		}
		for _, o := range b.BranchOptions {
			if o.Type == ReservedBranchType {
				out = append(out, Warning{i, WarnReservedBranchType,
					fmt.Sprintf("Block %d: branch type %q is reserved and will never play", i, o.Type)})
				continue
			}
			if first, dup := seen[o.Type]; dup {
				out = append(out, Warning{i, WarnDuplicateBranchType,
					fmt.Sprintf("Block %d: branch type %q already defined in block %d", i, o.Type, first)})
			} else {
				seen[o.Type] = i
			}
			if len(o.Dialogue) == 0 {
				out = append(out, Warning{i, WarnEmptyBranch,
					fmt.Sprintf("Block %d: branch %q has no dialogue", i, o.Type)})
			}
		}
	}
	return out
}

// EnsureBranchSafety returns a copy of s in which every block preceding a
// branch section routes to at least one branch. Blocks without a breakpoint
// get an auto-generated one; blocks with a non-branching breakpoint get a
// default option appended. The first branch type of the section is used.
func EnsureBranchSafety(s Scenario) Scenario {
	out := s.Clone()
	for i := 0; i+1 < len(out.Script); i++ {
		next := out.Script[i+1]
		if !next.IsAnchor() || hasBranchingBreakpoint(out.Script[i]) || len(next.BranchOptions) == 0 {
			continue
		}
		def := next.BranchOptions[0].Type
		if def == "" {
			continue
		}
		b := &out.Script[i]
		if b.Breakpoint == nil {
			b.Breakpoint = &BreakpointQuestion{
				Question: "Auto-generated branch decision",
				Options: []BreakpointOption{{
					Text:         fmt.Sprintf("Continue to %q", def),
					IsCorrect:    true,
					BranchTarget: def,
				}},
			}
			continue
		}
		b.Breakpoint.Options = append(b.Breakpoint.Options, BreakpointOption{
			Text:         fmt.Sprintf("Default: continue to %q", def),
			IsCorrect:    true,
			BranchTarget: def,
		})
	}
	return out
}

func hasBranchingBreakpoint(b ScriptBlock) bool {
	if b.Breakpoint == nil {
		return false
	}
	for _, o := range b.Breakpoint.Options {
		if o.BranchTarget != "" {
			return true
		}
	}
	return false
}

func nextBlock(script []ScriptBlock, i int) (ScriptBlock, bool) {
	if i+1 >= len(script) {
		return ScriptBlock{}, false
	}
	return script[i+1], true
}
