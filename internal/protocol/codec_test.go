package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	sent := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	events := []Event{
		JoinRoom{ChatID: "chat_1_2"},
		GetHistory{ChatID: "chat_1_2", Limit: 50},
		SendMessage{ChatID: "chat_1_2", SenderID: 1, Content: "hi"},
		ReceiveMessage{Message: ChatMessage{ID: "m1", ChatID: "chat_1_2", SenderID: 2, Content: "hey", Time: sent}},
		JoinedNotificationRoom{UserID: 7, Room: "user:7"},
		LeadUpdated{LeadID: 42, Action: LeadClaimed},
	}
	for _, e := range events {
		t.Run(e.EventName(), func(t *testing.T) {
			frame, err := Encode(e)
			require.NoError(t, err)

			got, err := Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, e, got)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	cases := map[string]struct {
		frame string
		want  error
	}{
		"UnknownEvent":   {`{"event":"deleteMessage","data":{}}`, ErrUnknownEvent},
		"NotJSON":        {`not json`, ErrInvalidPayload},
		"MissingData":    {`{"event":"joinRoom"}`, ErrInvalidPayload},
		"EmptyChat":      {`{"event":"joinRoom","data":{"chatId":" "}}`, ErrInvalidPayload},
		"WrongShape":     {`{"event":"getHistory","data":{"chatId":"c","limit":"ten"}}`, ErrInvalidPayload},
		"NegativeLimit":  {`{"event":"getHistory","data":{"chatId":"c","limit":-1}}`, ErrInvalidPayload},
		"EmptyContent":   {`{"event":"sendMessage","data":{"chatId":"c","senderId":1,"content":""}}`, ErrInvalidPayload},
		"NoUser":         {`{"event":"joinNotificationRoom","data":{"userId":0}}`, ErrInvalidPayload},
		"ForeignMessage": {`{"event":"history","data":{"chatId":"a","messages":[{"id":"1","chatId":"b"}]}}`, ErrInvalidPayload},
		"LocalEvent":     {`{"event":"connect","data":{}}`, ErrUnknownEvent},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEncodeRejects(t *testing.T) {
	_, err := Encode(Connected{})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Encode(SendMessage{ChatID: "c", SenderID: 1, Content: strings.Repeat("x", MaxContentRunes+1)})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
