package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Table string

const (
	TableRooms   Table = "rooms"
	TableQueue   Table = "dj_queue"
	TableVotes   Table = "votes"
	TableHistory Table = "song_history"
)

// Change is one committed row mutation. Row carries the row after the
// change (or before it, for deletes) and may be empty.
type Change struct {
	Op        Op              `json:"op"`
	Table     Table           `json:"table"`
	RoomID    string          `json:"room_id"`
	Row       json.RawMessage `json:"row,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewChange(op Op, table Table, roomID uuid.UUID, row any) Change {
	c := Change{
		Op:        op,
		Table:     table,
		RoomID:    roomID.String(),
		Timestamp: time.Now().UTC(),
	}
	if row != nil {
		if raw, err := json.Marshal(row); err == nil {
			c.Row = raw
		}
	}
	return c
}

// Publisher delivers committed changes to subscribers. Delivery is best
// effort.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// PublishAll sends changes in order, logging failures instead of returning
// them; the mutation they describe is already committed. A nil publisher
// drops everything.
func PublishAll(ctx context.Context, p Publisher, changes ...Change) {
	if p == nil {
		return
	}
	for _, c := range changes {
		if err := p.Publish(ctx, c); err != nil {
			log.Printf("Failed to publish %s %s change for room %s: %v", c.Op, c.Table, c.RoomID, err)
		}
	}
}
