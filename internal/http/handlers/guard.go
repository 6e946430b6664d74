package handlers

import (
	"github.com/taskhub/taskhub/internal/domain/task"
	"github.com/taskhub/taskhub/internal/domain/user"
)

// ownerAllowed is the only authorization rule in the system: a task is
// visible and writable to exactly the user stored as its owner.
func ownerAllowed(u user.User, t task.Task) bool {
	return t.UserID == u.ID
}
