package component

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/juju/mgo/v3/bson"
)

// BSON element kinds probed when reading stored documents.
const (
	bsonString   = 0x02
	bsonDocument = 0x03
	bsonObjectID = 0x07
	bsonNull     = 0x0A
)

// FlowRef is a flow id. It is a hex string on the wire and an ObjectId in
// storage.
type FlowRef string

// Valid reports whether the reference is a well-formed flow id.
func (r FlowRef) Valid() bool { return bson.IsObjectIdHex(string(r)) }

// ObjectId returns the storage identifier. The reference must be Valid.
func (r FlowRef) ObjectId() bson.ObjectId { return bson.ObjectIdHex(string(r)) }

func (r FlowRef) GetBSON() (interface{}, error) {
	if !r.Valid() {
		return nil, invalid("flowId", fmt.Sprintf("%q is not a flow id", string(r)))
	}
	return r.ObjectId(), nil
}

func (r *FlowRef) SetBSON(raw bson.Raw) error {
	switch raw.Kind {
	case bsonObjectID:
		var id bson.ObjectId
		if err := raw.Unmarshal(&id); err != nil {
			return err
		}
		*r = FlowRef(id.Hex())
	case bsonString:
		var s string
		if err := raw.Unmarshal(&s); err != nil {
			return err
		}
		*r = FlowRef(s)
	case bsonNull:
		return bson.SetZero
	default:
		return fmt.Errorf("flow id stored as bson kind 0x%02x", raw.Kind)
	}
	return nil
}

// FlowTarget points at a flow and the parameters passed to it.
type FlowTarget struct {
	FlowID FlowRef  `json:"flowId" bson:"flow_id"`
	Params []string `json:"params,omitempty" bson:"params,omitempty"`
}

func (t FlowTarget) validate() *SchemaError {
	if !t.FlowID.Valid() {
		return invalid("flowId", fmt.Sprintf("%q is not a flow id", string(t.FlowID)))
	}
	return nil
}

// PayloadKind tags the variant held by a Payload.
type PayloadKind int

const (
	PayloadToken PayloadKind = iota + 1
	PayloadFlow
)

// Payload is either a plain token or a flow target. The variant is fixed
// when the payload is decoded.
type Payload struct {
	Kind   PayloadKind
	Token  string
	Target FlowTarget
}

// TokenPayload returns a token payload.
func TokenPayload(token string) Payload {
	return Payload{Kind: PayloadToken, Token: token}
}

// FlowPayload returns a flow target payload.
func FlowPayload(flowID string, params ...string) Payload {
	if len(params) == 0 {
		params = nil
	}
	return Payload{Kind: PayloadFlow, Target: FlowTarget{FlowID: FlowRef(flowID), Params: params}}
}

func (p Payload) validate() *SchemaError {
	switch p.Kind {
	case PayloadToken:
		if p.Token == "" {
			return invalid("payload", "empty token")
		}
		return nil
	case PayloadFlow:
		return at("payload", p.Target.validate())
	}
	return invalid("payload", "missing")
}

func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadToken:
		return json.Marshal(p.Token)
	case PayloadFlow:
		return json.Marshal(p.Target)
	}
	return []byte("null"), nil
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty payload")
	}
	switch b[0] {
	case '"':
		var token string
		if err := json.Unmarshal(b, &token); err != nil {
			return err
		}
		*p = TokenPayload(token)
	case '{':
		var target FlowTarget
		if err := json.Unmarshal(b, &target); err != nil {
			return err
		}
		*p = Payload{Kind: PayloadFlow, Target: target}
	case 'n':
		*p = Payload{}
	default:
		return fmt.Errorf("payload must be a string or an object")
	}
	return nil
}

type storedToken struct {
	Token string `bson:"token"`
}

// GetBSON always writes the structured form.
func (p Payload) GetBSON() (interface{}, error) {
	switch p.Kind {
	case PayloadToken:
		return storedToken{Token: p.Token}, nil
	case PayloadFlow:
		return p.Target, nil
	}
	return nil, nil
}

// SetBSON reads the structured form and the legacy bare string, where an
// ObjectId hex string was a flow id.
func (p *Payload) SetBSON(raw bson.Raw) error {
	switch raw.Kind {
	case bsonString:
		var s string
		if err := raw.Unmarshal(&s); err != nil {
			return err
		}
		if bson.IsObjectIdHex(s) {
			*p = FlowPayload(s)
		} else {
			*p = TokenPayload(s)
		}
	case bsonDocument:
		var doc struct {
			Token  *string  `bson:"token"`
			FlowID FlowRef  `bson:"flow_id"`
			Params []string `bson:"params"`
		}
		if err := raw.Unmarshal(&doc); err != nil {
			return err
		}
		switch {
		case doc.Token != nil:
			*p = TokenPayload(*doc.Token)
		case doc.FlowID != "":
			*p = FlowPayload(string(doc.FlowID), doc.Params...)
		default:
			return fmt.Errorf("payload document has neither token nor flow_id")
		}
	case bsonNull:
		return bson.SetZero
	default:
		return fmt.Errorf("payload stored as bson kind 0x%02x", raw.Kind)
	}
	return nil
}
