package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"fintrack/internal/core"
)

// NotificationMessage asks the worker to deliver a reminder at FireAt.
type NotificationMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FireAt    time.Time `json:"fireAt"`
	Timestamp time.Time `json:"timestamp"`
}

func NewNotificationMessage(id, userID, title, body string, fireAt time.Time) *NotificationMessage {
	return &NotificationMessage{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Body:      body,
		FireAt:    fireAt,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NotificationMessageFromJSON decodes and checks a notification message.
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("notification message without id")
	}
	if msg.FireAt.IsZero() {
		return nil, errors.New("notification message without fire time")
	}
	return &msg, nil
}

// ChangeEventFromJSON decodes a document change published by the store.
func ChangeEventFromJSON(data []byte) (*core.ChangeEvent, error) {
	var ev core.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.UserID == "" || ev.Collection == "" {
		return nil, errors.New("change event without user or collection")
	}
	return &ev, nil
}
