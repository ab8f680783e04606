package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

func TestRollbarLogger(t *testing.T) {
	conf := core.NewTestConfig()

	tests := []struct {
		name  string
		debug bool
		log   func(l *RollbarLogger)
		want  []string
		never []string
	}{
		{
			name: "error with user",
			log: func(l *RollbarLogger) {
				l.Error("saving answer", errors.New("db down"), user.User{ID: "u1", Email: "secret@test.test"})
			},
			want:  []string{"ERROR: saving answer", "db down"},
			never: []string{"secret@test.test"},
		},
		{
			name:  "debug off",
			log:   func(l *RollbarLogger) { l.Debug("state change") },
			never: []string{"state change"},
		},
		{
			name:  "debug on",
			debug: true,
			log:   func(l *RollbarLogger) { l.Debug("state change", map[string]interface{}{"to": "DONE"}) },
			want:  []string{"DEBUG: state change", "map[to:DONE]"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			conf.Debug = tc.debug
			l := NewRollbarLogger(log.New(&buf, "", 0), conf)
			tc.log(l)

			for _, s := range tc.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tc.never {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}
