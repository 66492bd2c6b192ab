package db

import (
	"time"

	"github.com/juju/mgo/v3/bson"

	"adminhub/internal/component"
)

// Audit holds the bookkeeping fields shared by portal-managed documents.
// User ids are portal account ids.
type Audit struct {
	CreatedAt time.Time `bson:"created_at"`
	CreatedBy string    `bson:"created_by,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
	UpdatedBy string    `bson:"updated_by,omitempty"`
}

// Flow types.
const (
	FlowTypeStoryboard = "storyboard"
	FlowTypeInline     = "inline"
	FlowTypeBroadcast  = "broadcast"
)

// Flow is a stored flow. A nil Name marks an inline response owned by a
// question.
type Flow struct {
	ID             bson.ObjectId         `bson:"_id"`
	Topic          *string               `bson:"topic"`
	Name           *string               `bson:"name"`
	Components     []component.Component `bson:"flow"`
	Type           string                `bson:"type"`
	IsActive       bool                  `bson:"is_active"`
	Platforms      []string              `bson:"platforms,omitempty"`
	Params         []string              `bson:"params,omitempty"`
	TriggeredCount int                   `bson:"triggered_count"`
	ContentHash    string                `bson:"content_hash,omitempty"`
	Audit          `bson:",inline"`
}

type Variation struct {
	ID       string `bson:"id"`
	Text     string `bson:"text"`
	Language string `bson:"language"`
	Internal bool   `bson:"internal"`
}

type AnswerFlow struct {
	FlowID bson.ObjectId `bson:"flow_id"`
}

type Answer struct {
	ID           string     `bson:"id"`
	Flow         AnswerFlow `bson:"flow"`
	BotUserGroup string     `bson:"bot_user_group,omitempty"`
}

type Question struct {
	ID                 bson.ObjectId     `bson:"_id"`
	Text               map[string]string `bson:"text"`
	AlternateQuestions []Variation       `bson:"alternate_questions"`
	Answers            []Answer          `bson:"answers"`
	Topic              string            `bson:"topic"`
	Tags               []string          `bson:"tags,omitempty"`
	ActiveAt           *time.Time        `bson:"active_at,omitempty"`
	ExpireAt           *time.Time        `bson:"expire_at,omitempty"`
	IsActive           bool              `bson:"is_active"`
	Audit              `bson:",inline"`
}

type MatchedQuestion struct {
	QuestionID    bson.ObjectId `bson:"question_id"`
	QuestionText  string        `bson:"question_text"`
	QuestionTopic string        `bson:"question_topic"`
	Score         float64       `bson:"score"`
}

type NLPResponse struct {
	MatchedQuestions []MatchedQuestion `bson:"matched_questions"`
}

type NLP struct {
	Response NLPResponse `bson:"nlp_response"`
}

type Chatbot struct {
	ConvoID    string        `bson:"convo_id,omitempty"`
	QuestionID bson.ObjectId `bson:"qnid,omitempty"`
	FlowID     bson.ObjectId `bson:"flow_id,omitempty"`
	Unanswered bool          `bson:"unanswered,omitempty"`
}

// Grading is the portal's override of the bot's answer. A graded message
// with no Answer was skipped.
type Grading struct {
	Graded bool          `bson:"graded"`
	Answer bson.ObjectId `bson:"answer,omitempty"`
}

// Message keeps its component split into type and data, the way the bot
// runtime writes it.
type Message struct {
	ID          bson.ObjectId `bson:"_id"`
	Type        string        `bson:"type"`
	Data        bson.Raw      `bson:"data"`
	SenderID    bson.ObjectId `bson:"sender_id,omitempty"`
	ReceiverID  bson.ObjectId `bson:"receiver_id,omitempty"`
	Platform    string        `bson:"platform"`
	Handler     string        `bson:"handler,omitempty"`
	Chatbot     *Chatbot      `bson:"chatbot,omitempty"`
	NLP         *NLP          `bson:"nlp,omitempty"`
	AdminPortal *Grading      `bson:"adminportal,omitempty"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   *time.Time    `bson:"updated_at,omitempty"`
	UpdatedBy   string        `bson:"updated_by,omitempty"`
}

// Component decodes the message payload.
func (m Message) Component() (component.Component, error) {
	return component.FromStored(m.Type, m.Data)
}

// Text returns the message text in lang, or "" for non-text messages.
func (m Message) Text(lang string) string {
	c, err := m.Component()
	if err != nil {
		return ""
	}
	return c.Text(lang)
}

// MatchedQuestion returns the question the bot answered with: the
// recorded qnid, else the best NLP match.
func (m Message) MatchedQuestion() bson.ObjectId {
	if m.Chatbot != nil && m.Chatbot.QuestionID != "" {
		return m.Chatbot.QuestionID
	}
	if m.NLP != nil && len(m.NLP.Response.MatchedQuestions) > 0 {
		return m.NLP.Response.MatchedQuestions[0].QuestionID
	}
	return ""
}

// CurrentAnswer is the grading override if present, else MatchedQuestion.
func (m Message) CurrentAnswer() bson.ObjectId {
	if m.AdminPortal != nil && m.AdminPortal.Answer != "" {
		return m.AdminPortal.Answer
	}
	return m.MatchedQuestion()
}

type LastActive struct {
	ReceivedAt        *time.Time    `bson:"received_at,omitempty"`
	ReceivedMessageID bson.ObjectId `bson:"received_message_id,omitempty"`
	SentAt            *time.Time    `bson:"sent_at,omitempty"`
	SentMessageID     bson.ObjectId `bson:"sent_message_id,omitempty"`
}

type PlatformIdentity struct {
	ID        string `bson:"id"`
	FirstName string `bson:"first_name,omitempty"`
	LastName  string `bson:"last_name,omitempty"`
}

type BotUserChatbot struct {
	RegistrationDate *time.Time `bson:"registration_date,omitempty"`
	Note             string     `bson:"note"`
}

type BotUser struct {
	ID                    bson.ObjectId     `bson:"_id"`
	FirstName             string            `bson:"first_name"`
	LastName              string            `bson:"last_name"`
	Email                 string            `bson:"email,omitempty"`
	Gender                string            `bson:"gender,omitempty"`
	ProfilePicURL         string            `bson:"profile_pic_url,omitempty"`
	IsActive              bool              `bson:"is_active"`
	IsBroadcastSubscribed bool              `bson:"is_broadcast_subscribed"`
	LastActive            *LastActive       `bson:"last_active,omitempty"`
	BotUserGroupID        string            `bson:"bot_user_group_id,omitempty"`
	Platforms             []string          `bson:"platforms"`
	Facebook              *PlatformIdentity `bson:"facebook,omitempty"`
	Telegram              *PlatformIdentity `bson:"telegram,omitempty"`
	Tags                  []string          `bson:"tags"`
	Chatbot               *BotUserChatbot   `bson:"chatbot,omitempty"`
	CreatedAt             time.Time         `bson:"created_at"`
	UpdatedAt             time.Time         `bson:"updated_at"`
}

// FullName joins first and last name.
func (u BotUser) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// BroadcastFlow is the inline snapshot of the flow a broadcast sends.
type BroadcastFlow struct {
	Components []component.Component `bson:"flow"`
}

type Broadcast struct {
	ID           bson.ObjectId   `bson:"_id"`
	FlowID       bson.ObjectId   `bson:"flow_id,omitempty"`
	Flow         *BroadcastFlow  `bson:"flow,omitempty"`
	Tags         []string        `bson:"tags"`
	Exclude      []string        `bson:"exclude"`
	SendToAll    bool            `bson:"send_to_all"`
	Platforms    []string        `bson:"platforms,omitempty"`
	Scheduled    bool            `bson:"scheduled"`
	SendAt       time.Time       `bson:"send_at"`
	Total        int             `bson:"total"`
	Sent         int             `bson:"sent"`
	Processed    int             `bson:"processed"`
	Targets      []bson.ObjectId `bson:"targets"`
	Failed       []bson.ObjectId `bson:"failed,omitempty"`
	DispatchedAt *time.Time      `bson:"dispatched_at,omitempty"`
	IsActive     bool            `bson:"is_active"`
	Audit        `bson:",inline"`
}

type BroadcastTemplate struct {
	ID        bson.ObjectId   `bson:"_id"`
	Name      string          `bson:"name"`
	Flow      []bson.ObjectId `bson:"flow"`
	Platforms []string        `bson:"platforms,omitempty"`
	IsActive  bool            `bson:"is_active"`
	Audit     `bson:",inline"`
}

type BotPortal struct {
	AllowedOrigin []string `bson:"allowed_origin"`
	Region        string   `bson:"region"`
}

type Bot struct {
	ID           bson.ObjectId `bson:"_id"`
	Name         string        `bson:"name"`
	Abbreviation string        `bson:"abbreviation"`
	Portal       BotPortal     `bson:"portal"`
	IsActive     bool          `bson:"is_active"`
}
