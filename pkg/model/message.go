package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MessageMaxContentLength = 4096

var ErrMessageContentTooLong = fmt.Errorf("message content exceeds %d characters", MessageMaxContentLength)
var ErrMessageContentEmpty = errors.New("message content cannot be empty")

// Message is one entry in a user's persisted message log. For file and
// image transfers the content is a placeholder describing the transfer,
// not the payload itself.
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrMessageContentEmpty
	} else if utf8.RuneCountInString(m.Content) > MessageMaxContentLength {
		return ErrMessageContentTooLong
	}

	return nil
}
