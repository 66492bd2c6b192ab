// Package component defines the message building blocks of a flow and the
// mapping between their wire form (camelCase keys, wire kind tokens, hex flow
// ids) and their stored form (snake_case keys, stored kind tokens, ObjectIds).
package component

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/schema"
)

// Component is one step of a flow. Data always holds the pointer type that
// matches Kind.
type Component struct {
	Kind Kind
	Data Data
}

// Message returns a message component with a single localized text.
func Message(lang, text string) Component {
	return Component{Kind: KindMessage, Data: &MessageData{Text: Localized{lang: text}}}
}

// Validate checks the component against its kind's rules.
func (c Component) Validate() error {
	if !c.Kind.Valid() {
		return &SchemaError{Field: "type", Reason: "unknown kind"}
	}
	if c.Data == nil || !c.Kind.accepts(c.Data) {
		return &SchemaError{Kind: c.Kind.Wire(), Field: "data", Reason: fmt.Sprintf("%T does not belong to this kind", c.Data)}
	}
	if err := c.Data.validate(); err != nil {
		err.Kind = c.Kind.Wire()
		return err
	}
	return nil
}

// Text returns the localized text of message and button template components.
func (c Component) Text(lang string) string {
	switch d := c.Data.(type) {
	case *MessageData:
		return d.Text[lang]
	case *ButtonTemplateData:
		return d.Text[lang]
	}
	return ""
}

// FlowRefs lists every flow the component can jump to.
func (c Component) FlowRefs() []FlowRef {
	var refs []FlowRef
	addPayload := func(p *Payload) {
		if p != nil && p.Kind == PayloadFlow {
			refs = append(refs, p.Target.FlowID)
		}
	}
	switch d := c.Data.(type) {
	case *FlowJumpData:
		refs = append(refs, d.FlowID)
	case *ButtonTemplateData:
		for i := range d.Buttons {
			addPayload(d.Buttons[i].Payload)
		}
	case *GenericTemplateData:
		for _, card := range d.Elements {
			for i := range card.Buttons {
				addPayload(card.Buttons[i].Payload)
			}
		}
	case *QuickReplyData:
		for i := range d.QuickReplies {
			addPayload(&d.QuickReplies[i].Payload)
		}
	case *EntitySearchData:
		if d.Found != nil {
			refs = append(refs, d.Found.FlowID)
		}
		if d.NotFound != nil {
			refs = append(refs, d.NotFound.FlowID)
		}
	}
	return refs
}

var wireSchemas = sync.OnceValues(func() (*schema.Compiler, error) {
	return schema.NewCompilerWithCache(len(kindTable) + 8)
})

type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeWire parses and validates a component received at the HTTP boundary.
func DecodeWire(raw []byte) (Component, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Component{}, invalid("", "malformed component: "+err.Error())
	}
	kind, ok := KindFromWire(env.Type)
	if !ok {
		return Component{}, &SchemaError{Kind: env.Type, Field: "type", Reason: "unknown kind"}
	}
	if len(env.Data) == 0 {
		return Component{}, &SchemaError{Kind: env.Type, Field: "data", Reason: "required"}
	}

	schemas, err := wireSchemas()
	if err != nil {
		return Component{}, err
	}
	if err := schemas.Validate(kind.Wire(), env.Data); err != nil {
		return Component{}, &SchemaError{Kind: env.Type, Field: "data", Reason: err.Error()}
	}

	data := kind.newData()
	if err := json.Unmarshal(env.Data, data); err != nil {
		return Component{}, &SchemaError{Kind: env.Type, Field: "data", Reason: err.Error()}
	}
	c := Component{Kind: kind, Data: data}
	if err := c.Validate(); err != nil {
		return Component{}, err
	}
	return c, nil
}

// EncodeWire renders the component for the HTTP boundary.
func EncodeWire(c Component) ([]byte, error) {
	if !c.Kind.Valid() || c.Data == nil {
		return nil, &SchemaError{Field: "type", Reason: "unknown kind"}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Data Data   `json:"data"`
	}{c.Kind.Wire(), c.Data})
}

func (c Component) MarshalJSON() ([]byte, error) { return EncodeWire(c) }

func (c *Component) UnmarshalJSON(b []byte) error {
	decoded, err := DecodeWire(b)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// EncodeStorage renders the component as a stored BSON document.
func EncodeStorage(c Component) ([]byte, error) {
	return bson.Marshal(c)
}

func (c Component) GetBSON() (interface{}, error) {
	if !c.Kind.Valid() || c.Data == nil || !c.Kind.accepts(c.Data) {
		return nil, &SchemaError{Kind: c.Kind.String(), Field: "data", Reason: "kind and data disagree"}
	}
	return bson.D{
		{Name: "type", Value: c.Kind.Stored()},
		{Name: "data", Value: c.Data},
	}, nil
}

type storedEnvelope struct {
	Type string   `bson:"type"`
	Data bson.Raw `bson:"data"`
}

// NormalizeLegacy reads a stored component written by any portal version.
func NormalizeLegacy(raw []byte) (Component, error) {
	var env storedEnvelope
	if err := bson.Unmarshal(raw, &env); err != nil {
		return Component{}, invalid("", "malformed stored component: "+err.Error())
	}
	return FromStored(env.Type, env.Data)
}

func (c *Component) SetBSON(raw bson.Raw) error {
	var env storedEnvelope
	if err := raw.Unmarshal(&env); err != nil {
		return err
	}
	decoded, err := FromStored(env.Type, env.Data)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// FromStored decodes a stored kind token and its data document. Messages
// keep the two side by side rather than in an envelope.
func FromStored(token string, data bson.Raw) (Component, error) {
	kind, ok := kindFromLegacy(token)
	if !ok {
		return Component{}, &SchemaError{Kind: token, Field: "type", Reason: "unknown stored kind"}
	}
	if data.Kind != bsonDocument {
		return Component{}, &SchemaError{Kind: kind.Wire(), Field: "data", Reason: "missing"}
	}

	d := kind.newData()
	if err := data.Unmarshal(d); err != nil {
		return Component{}, &SchemaError{Kind: kind.Wire(), Field: "data", Reason: err.Error()}
	}
	if a, ok := d.(*AttachmentData); ok && len(a.Attachments) == 0 {
		// Older attachments held one url directly in data.
		var single Attachment
		if err := data.Unmarshal(&single); err == nil && single.URL != "" {
			a.Attachments = []Attachment{single}
		}
	}
	return Component{Kind: kind, Data: d}, nil
}
