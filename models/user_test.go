package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_Expired(t *testing.T) {
	now := time.Now()

	fresh := Session{Token: "a", CreatedAt: now.Add(-time.Hour)}
	assert.False(t, fresh.Expired(now))

	atTTL := Session{Token: "b", CreatedAt: now.Add(-SessionTTL)}
	assert.True(t, atTTL.Expired(now))

	past := Session{Token: "c", CreatedAt: now.Add(-SessionTTL - time.Minute)}
	assert.True(t, past.Expired(now))
}
