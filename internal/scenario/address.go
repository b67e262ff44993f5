package scenario

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadAddress = errors.New("address does not resolve to a line")

// Address points at one editable line of a scenario: either a main script
// block or a dialogue line inside a branch of an anchor block.
type Address interface {
	isAddress()
	String() string
}

type MainBlock struct {
	Index int
}

type BranchBlock struct {
	AnchorIndex   int
	BranchIndex   int
	DialogueIndex int
}

func (MainBlock) isAddress()   {}
func (BranchBlock) isAddress() {}

func (a MainBlock) String() string { return "script." + strconv.Itoa(a.Index) }

func (a BranchBlock) String() string {
	return fmt.Sprintf("script.%d.branch_options.%d.dialogue.%d", a.AnchorIndex, a.BranchIndex, a.DialogueIndex)
}

// ParseAddress converts the dotted path form produced by authoring tools
// ("script.3" or "script.3.branch_options.1.dialogue.0") into an Address.
func ParseAddress(path string) (Address, error) {
	parts := strings.Split(strings.TrimSpace(path), ".")
	nums := func(idx ...int) ([]int, error) {
		out := make([]int, 0, len(idx))
		for _, i := range idx {
			n, err := strconv.Atoi(parts[i])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad index %q in %q", ErrBadAddress, parts[i], path)
			}
			out = append(out, n)
		}
		return out, nil
	}
	switch {
	case len(parts) == 2 && parts[0] == "script":
		n, err := nums(1)
		if err != nil {
			return nil, err
		}
		return MainBlock{Index: n[0]}, nil
	case len(parts) == 6 && parts[0] == "script" && parts[2] == "branch_options" && parts[4] == "dialogue":
		n, err := nums(1, 3, 5)
		if err != nil {
			return nil, err
		}
		return BranchBlock{AnchorIndex: n[0], BranchIndex: n[1], DialogueIndex: n[2]}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized path %q", ErrBadAddress, path)
	}
}

// Resolve returns a copy of the line at addr.
func (s Scenario) Resolve(addr Address) (DialogueLine, error) {
	switch a := addr.(type) {
	case MainBlock:
		if a.Index < 0 || a.Index >= len(s.Script) {
			return DialogueLine{}, fmt.Errorf("%w: %s", ErrBadAddress, a)
		}
		b := s.Script[a.Index]
		return DialogueLine{Role: b.Role, Dialogue: b.Dialogue, Image: b.Image}, nil
	case BranchBlock:
		l, err := s.branchLine(a)
		if err != nil {
			return DialogueLine{}, err
		}
		return *l, nil
	default:
		return DialogueLine{}, fmt.Errorf("%w: %v", ErrBadAddress, addr)
	}
}

// Update applies fn to the line at addr and writes the result back.
func (s *Scenario) Update(addr Address, fn func(l *DialogueLine)) error {
	switch a := addr.(type) {
	case MainBlock:
		if a.Index < 0 || a.Index >= len(s.Script) {
			return fmt.Errorf("%w: %s", ErrBadAddress, a)
		}
		b := &s.Script[a.Index]
		l := DialogueLine{Role: b.Role, Dialogue: b.Dialogue, Image: b.Image}
		fn(&l)
		b.Role, b.Dialogue, b.Image = l.Role, l.Dialogue, l.Image
		return nil
	case BranchBlock:
		l, err := s.branchLine(a)
		if err != nil {
			return err
		}
		fn(l)
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrBadAddress, addr)
	}
}

func (s Scenario) branchLine(a BranchBlock) (*DialogueLine, error) {
	if a.AnchorIndex < 0 || a.AnchorIndex >= len(s.Script) {
		return nil, fmt.Errorf("%w: %s", ErrBadAddress, a)
	}
	opts := s.Script[a.AnchorIndex].BranchOptions
	if a.BranchIndex < 0 || a.BranchIndex >= len(opts) {
		return nil, fmt.Errorf("%w: %s", ErrBadAddress, a)
	}
	lines := opts[a.BranchIndex].Dialogue
	if a.DialogueIndex < 0 || a.DialogueIndex >= len(lines) {
		return nil, fmt.Errorf("%w: %s", ErrBadAddress, a)
	}
	return &lines[a.DialogueIndex], nil
}
