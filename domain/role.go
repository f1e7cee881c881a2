package domain

// Role identifies which side of a support conversation a participant is on.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleWorker   Role = "worker"
)
