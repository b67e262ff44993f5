package scenario

// ImageData is a visual cue. Any subset of the fields may be set: a file
// reference, a generation prompt, or inline base64 bytes.
type ImageData struct {
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Base64 string `json:"base64,omitempty" yaml:"base64,omitempty"`
}

type DialogueLine struct {
	Role     string     `json:"role" yaml:"role"`
	Dialogue string     `json:"dialogue" yaml:"dialogue"`
	Image    *ImageData `json:"image,omitempty" yaml:"image,omitempty"`
}

// HasContent reports whether the line contributes anything playable.
func (l DialogueLine) HasContent() bool {
	return l.Role != "" || l.Dialogue != "" || l.Image != nil
}

type BranchOption struct {
	Type     string         `json:"type" yaml:"type" validate:"required"`
	Dialogue []DialogueLine `json:"dialogue" yaml:"dialogue"`
}

type BreakpointOption struct {
	Text      string `json:"text" yaml:"text" validate:"required"`
	IsCorrect bool   `json:"isCorrect" yaml:"isCorrect"`
	// BranchTarget names a branch type of the block right after the breakpoint.
	BranchTarget string `json:"branchTarget,omitempty" yaml:"branchTarget,omitempty"`
}

type BreakpointQuestion struct {
	Question string             `json:"question" yaml:"question" validate:"required"`
	Options  []BreakpointOption `json:"options" yaml:"options" validate:"required,min=1,dive"`
}

// BranchList is the branch_options of an anchor. A nil list means "not an
// anchor"; an empty one still is, so encoders keep it.
type BranchList []BranchOption

func (b BranchList) IsZero() bool { return b == nil }

// ScriptBlock is one authored unit. A block with BranchOptions set (even to an
// empty list) is a branch anchor and contributes no main-line content.
type ScriptBlock struct {
	Role          string              `json:"role,omitempty" yaml:"role,omitempty"`
	Dialogue      string              `json:"dialogue,omitempty" yaml:"dialogue,omitempty"`
	BranchOptions BranchList          `json:"branch_options,omitzero" yaml:"branch_options,omitempty" validate:"omitempty,dive"`
	Image         *ImageData          `json:"image,omitempty" yaml:"image,omitempty"`
	Breakpoint    *BreakpointQuestion `json:"breakpoint,omitempty" yaml:"breakpoint,omitempty" validate:"omitempty"`
}

func (b ScriptBlock) IsAnchor() bool { return b.BranchOptions != nil }

// HasContent reports whether the block carries role, dialogue or image.
func (b ScriptBlock) HasContent() bool {
	return b.Role != "" || b.Dialogue != "" || b.Image != nil
}

// Branch returns the branch option with the given type.
func (b ScriptBlock) Branch(typ string) (BranchOption, bool) {
	for _, o := range b.BranchOptions {
		if o.Type == typ {
			return o, true
		}
	}
	return BranchOption{}, false
}

type Scenario struct {
	Title  string        `json:"title" yaml:"title" validate:"required"`
	Script []ScriptBlock `json:"script" yaml:"script" validate:"dive"`
	// Characters maps a role name to a voice description.
	Characters map[string]string `json:"characters,omitempty" yaml:"characters,omitempty"`
}

// Clone returns a deep copy so callers can edit without touching the original.
func (s Scenario) Clone() Scenario {
	out := Scenario{Title: s.Title}
	if s.Characters != nil {
		out.Characters = make(map[string]string, len(s.Characters))
		for k, v := range s.Characters {
			out.Characters[k] = v
		}
	}
	if s.Script != nil {
		out.Script = make([]ScriptBlock, len(s.Script))
		for i, b := range s.Script {
			out.Script[i] = cloneBlock(b)
		}
	}
	return out
}

func cloneBlock(b ScriptBlock) ScriptBlock {
	out := b
	out.Image = cloneImage(b.Image)
	if b.Breakpoint != nil {
		bp := *b.Breakpoint
		bp.Options = append([]BreakpointOption(nil), b.Breakpoint.Options...)
		out.Breakpoint = &bp
	}
	if b.BranchOptions != nil {
		out.BranchOptions = make([]BranchOption, len(b.BranchOptions))
		for i, o := range b.BranchOptions {
			lines := make([]DialogueLine, len(o.Dialogue))
			for j, l := range o.Dialogue {
				lines[j] = l
				lines[j].Image = cloneImage(l.Image)
			}
			out.BranchOptions[i] = BranchOption{Type: o.Type, Dialogue: lines}
		}
	}
	return out
}

func cloneImage(img *ImageData) *ImageData {
	if img == nil {
		return nil
	}
	c := *img
	return &c
}
