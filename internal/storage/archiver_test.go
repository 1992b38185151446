package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventKeyLayout(t *testing.T) {
	a := &Archiver{cfg: Config{Prefix: "payment-events"}}

	now := time.Now().UTC()
	datePath := fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day())

	key := a.eventKey("stripe", "evt_123")
	assert.Equal(t, "payment-events/stripe/"+datePath+"/evt_123.json", key)
}

func TestSanitizeKeyPart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"evt_123", "evt_123"},
		{"evt/../../etc", "evt_.._.._etc"},
		{"abc def", "abc_def"},
		{"payment.updated", "payment.updated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeKeyPart(tt.in))
	}
}
