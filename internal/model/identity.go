package model

type Role string

const (
	RoleWorker  Role = "worker"
	RoleManager Role = "manager"
)

// Identity is the authenticated caller, supplied by the auth collaborator.
type Identity struct {
	WorkerID string `json:"workerId"`
	Role     Role   `json:"role"`
}

func (i Identity) IsManager() bool {
	return i.Role == RoleManager
}

// CanRead reports whether the caller may read records owned by workerID.
func (i Identity) CanRead(workerID string) bool {
	return i.IsManager() || i.WorkerID == workerID
}
