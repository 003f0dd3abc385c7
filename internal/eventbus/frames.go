package eventbus

import (
	"encoding/json"
	"fmt"
)

type subscribeFrame struct {
	Subscribe string `json:"SUBSCRIBE"`
}

type unsubscribeFrame struct {
	Unsubscribe string `json:"UNSUBSCRIBE"`
}

// SubscribeFrame returns {"SUBSCRIBE": "<eventType>"}.
func SubscribeFrame(eventType string) ([]byte, error) {
	data, err := json.Marshal(subscribeFrame{Subscribe: eventType})
	if err != nil {
		return nil, fmt.Errorf("encode subscribe %s: %w", eventType, err)
	}
	return data, nil
}

// UnsubscribeFrame returns {"UNSUBSCRIBE": "<eventType>"}.
func UnsubscribeFrame(eventType string) ([]byte, error) {
	data, err := json.Marshal(unsubscribeFrame{Unsubscribe: eventType})
	if err != nil {
		return nil, fmt.Errorf("encode unsubscribe %s: %w", eventType, err)
	}
	return data, nil
}

// HasTimestamp reports whether frame is a TIMESTAMP event carrying the
// microsecond field. The startup probe uses it to prove the bus is live.
func HasTimestamp(frame []byte) bool {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return false
	}
	raw, ok := envelope[TypeTimestamp]
	if !ok {
		return false
	}
	_, ok = decodeFields(raw)[FieldTimestampUsec]
	return ok
}
