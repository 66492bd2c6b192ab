package db

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/juju/mgo/v3"
	"go.uber.org/zap"
)

// Collection names.
const (
	FlowCollection              = "flow"
	QuestionCollection          = "question"
	MessageCollection           = "message"
	BotUserCollection           = "bot_user"
	BroadcastCollection         = "broadcast"
	BroadcastTemplateCollection = "broadcast_template"
	BotCollection               = "bot"
)

// Store owns the root Mongo session. Every operation runs on a copy of it
// so concurrent requests get their own sockets.
type Store struct {
	session *mgo.Session
	dbName  string
	log     *zap.Logger
}

// Dial connects to Mongo and checks the connection.
func Dial(url, dbName string, timeout time.Duration, log *zap.Logger) (*Store, error) {
	info, err := mgo.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mongo URL: %w", err)
	}
	info.Timeout = timeout
	if dbName == "" {
		dbName = info.Database
	}

	session, err := mgo.DialWithInfo(info)
	if err != nil {
		return nil, fmt.Errorf("failed to dial mongo: %w", err)
	}
	session.SetMode(mgo.Monotonic, true)

	if err := session.Ping(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	log.Info("Connected to mongo", zap.String("database", dbName))
	return &Store{session: session, dbName: dbName, log: log}, nil
}

func (s *Store) Close() {
	s.session.Close()
}

// Ping checks the connection on a fresh session copy.
func (s *Store) Ping() error {
	session := s.session.Copy()
	defer session.Close()
	return session.Ping()
}

// with runs fn against a collection on a copied session.
func (s *Store) with(ctx context.Context, name string, fn func(c *mgo.Collection) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	session := s.session.Copy()
	defer session.Close()
	return fn(session.DB(s.dbName).C(name))
}

// notFound converts mgo.ErrNotFound into a NotFound error naming what was missing.
func notFound(err error, format string, args ...interface{}) error {
	if err == mgo.ErrNotFound {
		return errors.NotFoundf(format, args...)
	}
	return err
}

func (s *Store) Flows() *Flows { return &Flows{s} }
func (s *Store) Questions() *Questions { return &Questions{s} }
func (s *Store) Messages() *Messages { return &Messages{s} }
func (s *Store) BotUsers() *BotUsers { return &BotUsers{s} }
func (s *Store) Broadcasts() *Broadcasts { return &Broadcasts{s} }
func (s *Store) Bots() *Bots { return &Bots{s} }
