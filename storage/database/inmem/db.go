package inmemdb

import (
	"sync"

	"github.com/Marwebofficial/studio-sub000/core/chat"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

type (
	// DB keeps every table in memory. It is used by tests and by the API when no database is configured.
	DB struct {
		user         *userTable
		conversation *conversationTable
		usage        *usageTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	conversationTable struct {
		sync.RWMutex
		table map[string]*chat.Conversation
	}

	usageTable struct {
		sync.RWMutex
		rows []usage.Event
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		conversation: &conversationTable{table: make(map[string]*chat.Conversation)},
		usage:        &usageTable{},
	}
}
