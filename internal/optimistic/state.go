package optimistic

import "fmt"

// Status is the lifecycle state of one locally held record.
//
//	Clean         -> PendingCreate | PendingUpdate | PendingDelete  (local mutation)
//	PendingCreate -> Clean (confirmed, new id) | removed (failed)
//	PendingUpdate -> Clean (confirmed or rolled back)
//	PendingDelete -> removed (confirmed) | Clean (rolled back)
type Status int

const (
	Clean Status = iota
	PendingCreate
	PendingUpdate
	PendingDelete
)

func (s Status) String() string {
	switch s {
	case Clean:
		return "clean"
	case PendingCreate:
		return "pending-create"
	case PendingUpdate:
		return "pending-update"
	case PendingDelete:
		return "pending-delete"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) Pending() bool {
	return s != Clean
}

type record struct {
	status  Status
	version uint64
}

func habitKey(id string) string {
	return "habit:" + id
}

func entryKey(habitID, date string) string {
	return "entry:" + habitID + "/" + date
}
