package component

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/juju/mgo/v3/bson"
)

// Localized maps a language code such as "EN" to text.
type Localized map[string]string

func (l Localized) empty() bool {
	for _, v := range l {
		if v != "" {
			return false
		}
	}
	return true
}

// Data is the kind-specific part of a component. Only the types in this
// file implement it.
type Data interface {
	validate() *SchemaError
}

type MessageData struct {
	Text Localized `json:"text" bson:"text"`
}

func (d *MessageData) validate() *SchemaError {
	if d.Text.empty() {
		return invalid("text", "required")
	}
	return nil
}

// Card is one element of a generic template carousel.
type Card struct {
	FileName string    `json:"fileName,omitempty" bson:"file_name,omitempty"`
	ImageURL string    `json:"imageUrl" bson:"image_url"`
	Title    Localized `json:"title" bson:"title"`
	Subtitle Localized `json:"subtitle" bson:"subtitle"`
	Buttons  []Button  `json:"buttons,omitempty" bson:"buttons,omitempty"`
}

type GenericTemplateData struct {
	Elements []Card `json:"elements" bson:"elements"`
}

func (d *GenericTemplateData) validate() *SchemaError {
	if len(d.Elements) == 0 {
		return invalid("elements", "at least one card required")
	}
	for i, card := range d.Elements {
		field := fmt.Sprintf("elements[%d]", i)
		switch {
		case card.ImageURL == "":
			return invalid(field+".imageUrl", "required")
		case card.Title.empty():
			return invalid(field+".title", "required")
		case card.Subtitle.empty():
			return invalid(field+".subtitle", "required")
		}
		if err := validateButtons(field+".buttons", card.Buttons); err != nil {
			return err
		}
	}
	return nil
}

type ButtonTemplateData struct {
	Text    Localized `json:"text" bson:"text"`
	Buttons []Button  `json:"buttons" bson:"buttons"`
}

func (d *ButtonTemplateData) validate() *SchemaError {
	if d.Text.empty() {
		return invalid("text", "required")
	}
	if len(d.Buttons) == 0 {
		return invalid("buttons", "at least one button required")
	}
	return validateButtons("buttons", d.Buttons)
}

type Attachment struct {
	FileName string `json:"fileName,omitempty" bson:"file_name,omitempty"`
	URL      string `json:"url" bson:"url"`
}

// AttachmentData backs the image, file, video and audio kinds.
type AttachmentData struct {
	Attachments []Attachment `json:"attachments" bson:"attachments"`
}

func (d *AttachmentData) validate() *SchemaError {
	if len(d.Attachments) == 0 {
		return invalid("attachments", "at least one attachment required")
	}
	for i, a := range d.Attachments {
		if a.URL == "" {
			return invalid(fmt.Sprintf("attachments[%d].url", i), "required")
		}
	}
	return nil
}

type QuickReply struct {
	Text    Localized `json:"text" bson:"text"`
	Payload Payload   `json:"payload" bson:"payload"`
}

// SetBSON folds the params sibling of legacy quick replies into the flow target.
func (q *QuickReply) SetBSON(raw bson.Raw) error {
	var doc struct {
		Text    Localized `bson:"text"`
		Payload Payload   `bson:"payload"`
		Params  []string  `bson:"params"`
	}
	if err := raw.Unmarshal(&doc); err != nil {
		return err
	}
	if doc.Payload.Kind == PayloadFlow && len(doc.Payload.Target.Params) == 0 && len(doc.Params) > 0 {
		doc.Payload.Target.Params = doc.Params
	}
	q.Text = doc.Text
	q.Payload = doc.Payload
	return nil
}

// SaveTo stores the chosen reply in a user attribute.
type SaveTo struct {
	Attribute string `json:"attribute" bson:"attribute"`
	Temporary bool   `json:"temporary,omitempty" bson:"temporary,omitempty"`
}

type QuickReplyData struct {
	QuickReplies []QuickReply `json:"quickReplies" bson:"quick_replies"`
	SaveTo       *SaveTo      `json:"saveTo,omitempty" bson:"save_to,omitempty"`
}

func (d *QuickReplyData) validate() *SchemaError {
	if len(d.QuickReplies) == 0 {
		return invalid("quickReplies", "at least one reply required")
	}
	for i, r := range d.QuickReplies {
		field := fmt.Sprintf("quickReplies[%d]", i)
		if r.Text.empty() {
			return invalid(field+".text", "required")
		}
		if err := r.Payload.validate(); err != nil {
			return at(field, err)
		}
	}
	if d.SaveTo != nil && d.SaveTo.Attribute == "" {
		return invalid("saveTo.attribute", "required")
	}
	return nil
}

type FlowJumpData struct {
	FlowID FlowRef  `json:"flowId" bson:"flow_id"`
	Params []string `json:"params,omitempty" bson:"params,omitempty"`
}

func (d *FlowJumpData) validate() *SchemaError {
	return FlowTarget{FlowID: d.FlowID, Params: d.Params}.validate()
}

type InputType string

const (
	InputText   InputType = "text"
	InputNumber InputType = "number"
	InputEmail  InputType = "email"
	InputPhone  InputType = "phone"
	InputDate   InputType = "date"
)

type InputData struct {
	Attribute      string    `json:"attribute" bson:"attribute"`
	InputType      InputType `json:"inputType" bson:"input_type"`
	Validation     string    `json:"validation,omitempty" bson:"validation,omitempty"`
	InvalidMessage Localized `json:"invalidMessage,omitempty" bson:"invalid_message,omitempty"`
	Temporary      bool      `json:"temporary,omitempty" bson:"temporary,omitempty"`
}

func (d *InputData) validate() *SchemaError {
	if d.Attribute == "" {
		return invalid("attribute", "required")
	}
	switch d.InputType {
	case InputText, InputNumber, InputEmail, InputPhone, InputDate:
	default:
		return invalid("inputType", fmt.Sprintf("unknown input type %q", d.InputType))
	}
	if d.Validation != "" {
		if _, err := regexp.Compile(d.Validation); err != nil {
			return invalid("validation", err.Error())
		}
	}
	return nil
}

type AttributeAction string

const (
	AttributeSet       AttributeAction = "set"
	AttributeUnset     AttributeAction = "unset"
	AttributeIncrement AttributeAction = "increment"
)

type UserAttributeData struct {
	Action    AttributeAction `json:"action" bson:"action"`
	Attribute string          `json:"attribute" bson:"attribute"`
	Value     string          `json:"value,omitempty" bson:"value,omitempty"`
	Temporary bool            `json:"temporary,omitempty" bson:"temporary,omitempty"`
}

func (d *UserAttributeData) validate() *SchemaError {
	if d.Attribute == "" {
		return invalid("attribute", "required")
	}
	switch d.Action {
	case AttributeSet:
		if d.Value == "" {
			return invalid("value", "required for set")
		}
	case AttributeUnset, AttributeIncrement:
	default:
		return invalid("action", fmt.Sprintf("unknown action %q", d.Action))
	}
	return nil
}

type SearchFilter struct {
	Field    string `json:"field" bson:"field"`
	Operator string `json:"operator" bson:"operator"`
	Value    string `json:"value,omitempty" bson:"value,omitempty"`
}

type SearchSort struct {
	Field      string `json:"field" bson:"field"`
	Descending bool   `json:"descending,omitempty" bson:"descending,omitempty"`
}

type SearchSpec struct {
	Entity  string         `json:"entity" bson:"entity"`
	Filters []SearchFilter `json:"filters,omitempty" bson:"filters,omitempty"`
	Sort    []SearchSort   `json:"sort,omitempty" bson:"sort,omitempty"`
}

type DisplayOptions struct {
	Limit  int      `json:"limit,omitempty" bson:"limit,omitempty"`
	Fields []string `json:"fields,omitempty" bson:"fields,omitempty"`
}

type EntitySearchData struct {
	Search   SearchSpec      `json:"search" bson:"search"`
	Display  *DisplayOptions `json:"display,omitempty" bson:"display,omitempty"`
	Found    *FlowTarget     `json:"found,omitempty" bson:"found,omitempty"`
	NotFound *FlowTarget     `json:"notFound,omitempty" bson:"not_found,omitempty"`
}

var searchOperators = map[string]bool{"eq": true, "ne": true, "contains": true, "gt": true, "lt": true}

func (d *EntitySearchData) validate() *SchemaError {
	if d.Search.Entity == "" {
		return invalid("search.entity", "required")
	}
	for i, f := range d.Search.Filters {
		if f.Field == "" || !searchOperators[f.Operator] {
			return invalid(fmt.Sprintf("search.filters[%d]", i), "field and a known operator required")
		}
	}
	if d.Found != nil {
		if err := d.Found.validate(); err != nil {
			return at("found", err)
		}
	}
	if d.NotFound != nil {
		if err := d.NotFound.validate(); err != nil {
			return at("notFound", err)
		}
	}
	return nil
}

type FunctionData struct {
	Function string `json:"function" bson:"function"`
}

func (d *FunctionData) validate() *SchemaError {
	if d.Function == "" {
		return invalid("function", "required")
	}
	return nil
}

// ButtonType enumerates button behaviours.
type ButtonType int

const (
	ButtonURL ButtonType = iota + 1
	ButtonFlow
	ButtonPostback
	ButtonPhone
	// ButtonShare is deprecated by the messaging platforms but still read.
	ButtonShare
)

var buttonTokens = map[ButtonType][2]string{
	ButtonURL:      {"url", "web_url"},
	ButtonFlow:     {"flow", "flow"},
	ButtonPostback: {"postback", "postback"},
	ButtonPhone:    {"phone", "phone_number"},
	ButtonShare:    {"share", "element_share"},
}

func buttonTypeFrom(token string, stored bool) (ButtonType, bool) {
	idx := 0
	if stored {
		idx = 1
	}
	for t, tokens := range buttonTokens {
		if tokens[idx] == token {
			return t, true
		}
	}
	return 0, false
}

func (t ButtonType) MarshalJSON() ([]byte, error) {
	tokens, ok := buttonTokens[t]
	if !ok {
		return nil, fmt.Errorf("unknown button type %d", int(t))
	}
	return json.Marshal(tokens[0])
}

func (t *ButtonType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	bt, ok := buttonTypeFrom(s, false)
	if !ok {
		return fmt.Errorf("unknown button type %q", s)
	}
	*t = bt
	return nil
}

func (t ButtonType) GetBSON() (interface{}, error) {
	tokens, ok := buttonTokens[t]
	if !ok {
		return nil, fmt.Errorf("unknown button type %d", int(t))
	}
	return tokens[1], nil
}

func (t *ButtonType) SetBSON(raw bson.Raw) error {
	var s string
	if err := raw.Unmarshal(&s); err != nil {
		return err
	}
	bt, ok := buttonTypeFrom(s, true)
	if !ok {
		return fmt.Errorf("unknown stored button type %q", s)
	}
	*t = bt
	return nil
}

type Button struct {
	Title   Localized  `json:"title" bson:"title"`
	Type    ButtonType `json:"type" bson:"type"`
	URL     string     `json:"url,omitempty" bson:"url,omitempty"`
	Payload *Payload   `json:"payload,omitempty" bson:"payload,omitempty"`
}

func (b Button) validate() *SchemaError {
	if b.Title.empty() {
		return invalid("title", "required")
	}
	switch b.Type {
	case ButtonURL:
		if b.URL == "" {
			return invalid("url", "required for url buttons")
		}
	case ButtonFlow:
		if b.Payload == nil || b.Payload.Kind != PayloadFlow {
			return invalid("payload", "flow buttons need a flow target")
		}
		return b.Payload.validate()
	case ButtonPostback, ButtonPhone:
		if b.Payload == nil || b.Payload.Kind != PayloadToken {
			return invalid("payload", "token required")
		}
		return b.Payload.validate()
	case ButtonShare:
	default:
		return invalid("type", "unknown button type")
	}
	return nil
}

func validateButtons(field string, buttons []Button) *SchemaError {
	for i, b := range buttons {
		if err := b.validate(); err != nil {
			return at(fmt.Sprintf("%s[%d]", field, i), err)
		}
	}
	return nil
}
