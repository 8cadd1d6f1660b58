package hostfunc

// Kind names a host call variant.
type Kind string

const (
	KindCallParserFunction      Kind = "callParserFunction"
	KindExpandTemplate          Kind = "expandTemplate"
	KindGetAllExpandedArguments Kind = "getAllExpandedArguments"
	KindGetExpandedArgument     Kind = "getExpandedArgument"
	KindPreprocess              Kind = "preprocess"
	KindUnstrip                 Kind = "unstrip"
)

// FrameID selects a frame relative to the running execution.
type FrameID string

const (
	CurrentFrame FrameID = "current"
	ParentFrame  FrameID = "parent"
)

// UnstripMode selects how strip markers are restored.
type UnstripMode int

const (
	// ModeOrigText turns nowiki markers back into <nowiki> tags and leaves
	// other markers alone.
	ModeOrigText UnstripMode = iota
	// ModeUnstripNoWiki replaces nowiki markers with their content and
	// leaves other markers alone.
	ModeUnstripNoWiki
	// ModeUnstrip replaces nowiki markers with their content and removes
	// every other marker.
	ModeUnstrip
)

func (m UnstripMode) String() string {
	switch m {
	case ModeOrigText:
		return "orig"
	case ModeUnstripNoWiki:
		return "nowiki"
	case ModeUnstrip:
		return "all"
	default:
		return "unknown"
	}
}

// Call is a request from a running script to the host. The set of
// implementations is closed; each one carries its request payload and the
// result fields the host fills in before the script resumes.
type Call interface {
	Kind() Kind
	isCall()
}

// CallParserFunction runs a parser function such as #if or lc.
type CallParserFunction struct {
	Frame FrameID
	Name  string
	Args  []string

	Result string
}

// ExpandTemplate renders a template in the context of a new child frame.
type ExpandTemplate struct {
	Frame FrameID
	Title string
	Args  map[string]string

	Result string
}

// GetAllExpandedArguments fetches every argument of a frame.
type GetAllExpandedArguments struct {
	Frame FrameID

	Result map[string]string
}

// GetExpandedArgument fetches one argument of a frame.
type GetExpandedArgument struct {
	Frame FrameID
	Key   string

	Result string
	Found  bool
}

// Preprocess expands wikitext in the context of a frame.
type Preprocess struct {
	Frame FrameID
	Text  string

	Result string
}

// Unstrip restores strip markers in Text.
type Unstrip struct {
	Text string
	Mode UnstripMode

	Result string
}

func (*CallParserFunction) Kind() Kind      { return KindCallParserFunction }
func (*ExpandTemplate) Kind() Kind          { return KindExpandTemplate }
func (*GetAllExpandedArguments) Kind() Kind { return KindGetAllExpandedArguments }
func (*GetExpandedArgument) Kind() Kind     { return KindGetExpandedArgument }
func (*Preprocess) Kind() Kind              { return KindPreprocess }
func (*Unstrip) Kind() Kind                 { return KindUnstrip }

func (*CallParserFunction) isCall()      {}
func (*ExpandTemplate) isCall()          {}
func (*GetAllExpandedArguments) isCall() {}
func (*GetExpandedArgument) isCall()     {}
func (*Preprocess) isCall()              {}
func (*Unstrip) isCall()                 {}
