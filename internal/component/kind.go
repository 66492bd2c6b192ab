package component

// Kind identifies a component variant. Its wire, stored and display
// tokens come from kindTable and nowhere else.
type Kind int

const (
	KindMessage Kind = iota + 1
	KindGenericTemplate
	KindButtonTemplate
	KindImage
	KindFile
	KindVideo
	KindAudio
	KindQuickReply
	KindFlow
	KindInput
	KindUserAttribute
	KindEntitySearch
	KindFunction
)

type kindTokens struct {
	wire    string
	stored  string
	display string
}

var kindTable = map[Kind]kindTokens{
	KindMessage:         {"message", "message", "message"},
	KindGenericTemplate: {"genericTemplate", "generic_template", "genericTemplate"},
	KindButtonTemplate:  {"buttonTemplate", "button_template", "buttonTemplate"},
	KindImage:           {"imageAttachment", "image", "images"},
	KindFile:            {"fileAttachment", "file", "files"},
	KindVideo:           {"videoAttachment", "video", "videos"},
	KindAudio:           {"audioAttachment", "audio", "audios"},
	KindQuickReply:      {"quickReply", "quick_reply", "quickReply"},
	KindFlow:            {"flow", "flow", "flow"},
	KindInput:           {"input", "input", "input"},
	KindUserAttribute:   {"userAttribute", "user_attribute", "userAttribute"},
	KindEntitySearch:    {"entitySearch", "entity_search", "entitySearch"},
	KindFunction:        {"function", "function", "function"},
}

// legacyStored lists stored tokens written by older portal versions.
// They are read but never written.
var legacyStored = map[string]Kind{
	"text":   KindMessage,
	"images": KindImage,
	"files":  KindFile,
	"videos": KindVideo,
	"audios": KindAudio,
	"custom": KindFunction,
}

var (
	byWire   = make(map[string]Kind, len(kindTable))
	byStored = make(map[string]Kind, len(kindTable))
)

func init() {
	for k, t := range kindTable {
		byWire[t.wire] = k
		byStored[t.stored] = k
	}
}

// Wire returns the camelCase token used at the HTTP boundary.
func (k Kind) Wire() string { return kindTable[k].wire }

// Stored returns the canonical snake_case token persisted in documents.
func (k Kind) Stored() string { return kindTable[k].stored }

// Display returns the token shown in message listings. Attachment kinds
// fold to their plural form; the result is never parsed back.
func (k Kind) Display() string { return kindTable[k].display }

func (k Kind) String() string {
	if t, ok := kindTable[k]; ok {
		return t.wire
	}
	return "unknown"
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindTable[k]
	return ok
}

// IsAttachment reports whether k carries an attachment list.
func (k Kind) IsAttachment() bool {
	switch k {
	case KindImage, KindFile, KindVideo, KindAudio:
		return true
	}
	return false
}

// KindFromWire resolves a wire token.
func KindFromWire(s string) (Kind, bool) {
	k, ok := byWire[s]
	return k, ok
}

// KindFromStored resolves a canonical stored token.
func KindFromStored(s string) (Kind, bool) {
	k, ok := byStored[s]
	return k, ok
}

// kindFromLegacy resolves canonical and legacy stored tokens.
func kindFromLegacy(s string) (Kind, bool) {
	if k, ok := byStored[s]; ok {
		return k, true
	}
	k, ok := legacyStored[s]
	return k, ok
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindTable))
	for k := KindMessage; k <= KindFunction; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k Kind) newData() Data {
	switch k {
	case KindMessage:
		return &MessageData{}
	case KindGenericTemplate:
		return &GenericTemplateData{}
	case KindButtonTemplate:
		return &ButtonTemplateData{}
	case KindImage, KindFile, KindVideo, KindAudio:
		return &AttachmentData{}
	case KindQuickReply:
		return &QuickReplyData{}
	case KindFlow:
		return &FlowJumpData{}
	case KindInput:
		return &InputData{}
	case KindUserAttribute:
		return &UserAttributeData{}
	case KindEntitySearch:
		return &EntitySearchData{}
	case KindFunction:
		return &FunctionData{}
	}
	return nil
}

func (k Kind) accepts(d Data) bool {
	switch d.(type) {
	case *MessageData:
		return k == KindMessage
	case *GenericTemplateData:
		return k == KindGenericTemplate
	case *ButtonTemplateData:
		return k == KindButtonTemplate
	case *AttachmentData:
		return k.IsAttachment()
	case *QuickReplyData:
		return k == KindQuickReply
	case *FlowJumpData:
		return k == KindFlow
	case *InputData:
		return k == KindInput
	case *UserAttributeData:
		return k == KindUserAttribute
	case *EntitySearchData:
		return k == KindEntitySearch
	case *FunctionData:
		return k == KindFunction
	}
	return false
}
