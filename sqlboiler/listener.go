package sqlboiler

import (
	"encoding/json"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/nrfta/paging-cache/store"
)

// maxNotifyPayload is below PostgreSQL's 8000 byte NOTIFY payload limit.
const maxNotifyPayload = 7900

// notification is the NOTIFY payload sent on commit.
type notification struct {
	Origin     string   `json:"origin"`
	QueryKeys  []string `json:"query_keys,omitempty"`
	AllQueries bool     `json:"all_queries,omitempty"`
}

func encodeNotification(origin uuid.UUID, change store.Change) (string, error) {
	n := notification{
		Origin:     origin.String(),
		QueryKeys:  change.QueryKeys,
		AllQueries: change.AllQueries,
	}
	if n.AllQueries {
		n.QueryKeys = nil
	}

	data, err := json.Marshal(n)
	if err != nil {
		return "", errors.Wrap(err, "encode change notification")
	}
	if len(data) > maxNotifyPayload {
		// Too many keys to name; wake everyone instead.
		data, err = json.Marshal(notification{Origin: n.Origin, AllQueries: true})
		if err != nil {
			return "", errors.Wrap(err, "encode change notification")
		}
	}
	return string(data), nil
}

func decodeNotification(payload string) (uuid.UUID, store.Change, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return uuid.Nil, store.Change{}, errors.Wrap(err, "decode change notification")
	}

	origin, err := uuid.Parse(n.Origin)
	if err != nil {
		return uuid.Nil, store.Change{}, errors.Wrap(err, "decode notification origin")
	}
	return origin, store.Change{QueryKeys: n.QueryKeys, AllQueries: n.AllQueries}, nil
}

// Listen starts forwarding changes committed by other stores on the same
// database and channel to this store's subscribers. connStr is a lib/pq
// connection string; the listener holds its own connection.
//
// Changes committed through this store are published locally on commit and
// are ignored when they come back over the channel.
func (s *Store) Listen(connStr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	if s.listener != nil {
		return errors.New("sqlboiler: listener already running")
	}

	l := pq.NewListener(connStr, s.opts.minReconnect, s.opts.maxReconnect, s.logListenerEvent)
	if err := l.Listen(s.opts.channel); err != nil {
		_ = l.Close()
		return errors.Wrapf(err, "listen on %s", s.opts.channel)
	}

	s.listener = l
	s.stopped = make(chan struct{})
	go s.forward(l, s.stopped)

	s.log.Debug("listening for change notifications")
	return nil
}

func (s *Store) forward(l *pq.Listener, stopped chan struct{}) {
	defer close(stopped)

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-l.Notify:
			if !ok {
				return
			}
			s.handleNotification(n)
		}
	}
}

func (s *Store) handleNotification(n *pq.Notification) {
	if n == nil {
		// The connection was re-established and notifications may have been
		// missed.
		s.broker.Publish(store.Change{AllQueries: true})
		return
	}

	origin, change, err := decodeNotification(n.Extra)
	if err != nil {
		s.log.WithError(err).Warn("dropping malformed change notification")
		return
	}
	if origin == s.origin {
		return
	}

	s.log.WithFields(logrus.Fields{
		"from":        origin.String(),
		"query_keys":  change.QueryKeys,
		"all_queries": change.AllQueries,
	}).Debug("remote change")
	s.broker.Publish(change)
}

func (s *Store) logListenerEvent(ev pq.ListenerEventType, err error) {
	entry := s.log.WithField("event", int(ev))
	if err != nil {
		entry.WithError(err).Warn("listener connection event")
		return
	}
	entry.Debug("listener connection event")
}
