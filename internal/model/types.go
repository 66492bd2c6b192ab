package model

import (
	"time"

	"adminhub/internal/component"
)

// ListResponse is the envelope of every paged list.
type ListResponse[T any] struct {
	Data    []T  `json:"data"`
	Success bool `json:"success"`
	Total   int  `json:"total"`
}

func NewList[T any](data []T, total int) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{Data: data, Success: true, Total: total}
}

// DashboardResponse wraps dashboard statistics.
type DashboardResponse struct {
	Data   interface{} `json:"data"`
	Status string      `json:"status"`
}

// Audit is the bookkeeping shown with portal-managed entities.
type Audit struct {
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

type Flow struct {
	ID             string                `json:"id"`
	Name           *string               `json:"name"`
	Topic          *string               `json:"topic"`
	Flow           []component.Component `json:"flow"`
	Type           string                `json:"type"`
	Platforms      []string              `json:"platforms,omitempty"`
	Params         []string              `json:"params,omitempty"`
	TriggeredCount int                   `json:"triggeredCount"`
	Audit
}

// FlowInput creates or replaces a named flow. Components are validated
// while the body is decoded.
type FlowInput struct {
	Name      string                `json:"name"`
	Topic     *string               `json:"topic"`
	Flow      []component.Component `json:"flow"`
	Platforms []string              `json:"platforms"`
	Params    []string              `json:"params"`
}

type Variation struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Language string `json:"language"`
	Internal bool   `json:"internal"`
}

type Answer struct {
	ID           string `json:"id"`
	FlowID       string `json:"flowId"`
	BotUserGroup string `json:"botUserGroup,omitempty"`
	Flow         *Flow  `json:"flow,omitempty"`
}

type Question struct {
	ID                 string            `json:"id"`
	Text               map[string]string `json:"text"`
	AlternateQuestions []Variation       `json:"alternateQuestions"`
	Answers            []Answer          `json:"answers"`
	Topic              string            `json:"topic"`
	Tags               []string          `json:"tags,omitempty"`
	ActiveAt           *time.Time        `json:"activeAt,omitempty"`
	ExpireAt           *time.Time        `json:"expireAt,omitempty"`
	Audit
}

// ResponseInput is a question's answer: free text that becomes an inline
// flow, or an existing flow.
type ResponseInput struct {
	Text   string `json:"text,omitempty"`
	FlowID string `json:"flowId,omitempty"`
}

type VariationInput struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Internal bool   `json:"internal"`
}

type QuestionInput struct {
	Text               string           `json:"text"`
	Language           string           `json:"language,omitempty"`
	Topic              string           `json:"topic"`
	AlternateQuestions []VariationInput `json:"alternateQuestions"`
	Response           ResponseInput    `json:"response"`
	BotUserGroup       string           `json:"botUserGroup,omitempty"`
	Tags               []string         `json:"tags,omitempty"`
	ActiveAt           *time.Time       `json:"activeAt,omitempty"`
	ExpireAt           *time.Time       `json:"expireAt,omitempty"`
}

type CreateQuestionResult struct {
	QuestionID  string `json:"questionId"`
	Flow        Flow   `json:"flow"`
	FlowCreated bool   `json:"flowCreated"`
}

type DeleteSummary struct {
	Questions int `json:"questions"`
	Flows     int `json:"flows"`
}

// IDsInput is the body of bulk operations.
type IDsInput struct {
	IDs []string `json:"ids"`
}

type MatchedQuestion struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Topic    string  `json:"topic"`
	Accuracy float64 `json:"accuracy"`
}

// GradingMessage is an incoming message awaiting review.
type GradingMessage struct {
	ID         string           `json:"id"`
	Text       string           `json:"text"`
	Platform   string           `json:"platform"`
	SenderID   string           `json:"senderId,omitempty"`
	ConvoID    string           `json:"convoId,omitempty"`
	Unanswered bool             `json:"unanswered"`
	Matched    *MatchedQuestion `json:"matchedQuestion"`
	Answer     string           `json:"answer,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

type GradeInput struct {
	QuestionID string `json:"questionId"`
}

// GradeResult reports each step of a grading. Updated is false when the
// message already resolved to the chosen question.
type GradeResult struct {
	Updated           bool `json:"updated"`
	Graded            int  `json:"graded"`
	VariationsRemoved int  `json:"variationsRemoved"`
	VariationsAdded   int  `json:"variationsAdded"`
}

type LastActive struct {
	ReceivedAt *time.Time `json:"receivedAt,omitempty"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
}

type BotUser struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	FirstName             string      `json:"firstName"`
	LastName              string      `json:"lastName"`
	Email                 string      `json:"email,omitempty"`
	Gender                string      `json:"gender,omitempty"`
	ProfilePicURL         string      `json:"profilePicUrl,omitempty"`
	Platforms             []string    `json:"platforms"`
	Tags                  []string    `json:"tags"`
	Note                  string      `json:"note"`
	IsActive              bool        `json:"isActive"`
	IsBroadcastSubscribed bool        `json:"isBroadcastSubscribed"`
	LastActive            *LastActive `json:"lastActive,omitempty"`
	RegisteredAt          *time.Time  `json:"registeredAt,omitempty"`
	CreatedAt             time.Time   `json:"createdAt"`
}

type BotUserInput struct {
	Tags []string `json:"tags"`
	Note string   `json:"note"`
}

// ConversationMessage is one message of a conversation. Type is the
// display token of the component kind.
type ConversationMessage struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Data       *component.Component `json:"content,omitempty"`
	FromUser   bool                 `json:"fromUser"`
	Platform   string               `json:"platform"`
	ConvoID    string               `json:"convoId,omitempty"`
	QuestionID string               `json:"questionId,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// Broadcast statuses, derived from the delivery counters.
const (
	BroadcastScheduled = "Scheduled"
	BroadcastSending   = "Sending"
	BroadcastCompleted = "Completed"
	BroadcastFailed    = "Failed"
)

type Broadcast struct {
	ID          string                `json:"id"`
	FlowID      string                `json:"flowId,omitempty"`
	Flow        []component.Component `json:"flow,omitempty"`
	Tags        []string              `json:"tags"`
	Exclude     []string              `json:"exclude"`
	SendToAll   bool                  `json:"sendToAll"`
	Platforms   []string              `json:"platforms,omitempty"`
	SendAt      time.Time             `json:"sendAt"`
	Total       int                   `json:"total"`
	Sent        int                   `json:"sent"`
	Processed   int                   `json:"processed"`
	Failed      int                   `json:"failed"`
	Status      string                `json:"status"`
	CreatorName string                `json:"creatorName,omitempty"`
	Audit
}

type BroadcastInput struct {
	FlowID    string                `json:"flowId,omitempty"`
	Flow      []component.Component `json:"flow,omitempty"`
	Tags      []string              `json:"tags"`
	Exclude   []string              `json:"exclude"`
	SendToAll bool                  `json:"sendToAll"`
	Platforms []string              `json:"platforms,omitempty"`
	SendAt    *time.Time            `json:"sendAt,omitempty"`
}

type TargetsInput struct {
	Tags      []string `json:"tags"`
	Exclude   []string `json:"exclude"`
	SendToAll bool     `json:"sendToAll"`
	Platforms []string `json:"platforms,omitempty"`
}

type TargetsPreview struct {
	Total int `json:"total"`
}

type BroadcastTemplate struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Flow      []string `json:"flow"`
	Platforms []string `json:"platforms,omitempty"`
	Audit
}

type TemplateInput struct {
	Name      string   `json:"name"`
	Flow      []string `json:"flow"`
	Platforms []string `json:"platforms,omitempty"`
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Status           string    `json:"status"`
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expiresAt"`
	CurrentAuthority string    `json:"currentAuthority"`
}

type CurrentUser struct {
	ID          string   `json:"userid"`
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Avatar      string   `json:"avatar"`
	Access      string   `json:"access"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"isActive"`
}

type Bot struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Abbreviation  string   `json:"abbreviation"`
	AllowedOrigin []string `json:"allowedOrigin"`
	Region        string   `json:"region"`
}
